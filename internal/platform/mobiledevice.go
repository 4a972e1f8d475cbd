package platform

import (
	"context"
	"fmt"

	"platform-sync-service/internal/store"
)

// mobileDeviceHandler pairs with a mobile device by account id and
// secret. All operations are stubs until the device bridge protocol
// is integrated; credentials are validated structurally by the factory.
type mobileDeviceHandler struct {
	conn *store.Connection
}

func newMobileDeviceHandler(conn *store.Connection) *mobileDeviceHandler {
	return &mobileDeviceHandler{conn: conn}
}

func (h *mobileDeviceHandler) Kind() store.PlatformKind {
	return store.KindMobileDevice
}

func (h *mobileDeviceHandler) TestConnection(_ context.Context) error {
	return fmt.Errorf("mobile-device pairing check: %w", ErrNotImplemented)
}

func (h *mobileDeviceHandler) ListItems(_ context.Context, _ string) ([]*store.Item, error) {
	return nil, fmt.Errorf("mobile-device listing: %w", ErrNotImplemented)
}

func (h *mobileDeviceHandler) DownloadFile(_ context.Context, remotePath, _ string) error {
	return fmt.Errorf("mobile-device download %s: %w", remotePath, ErrNotImplemented)
}

func (h *mobileDeviceHandler) UploadFile(_ context.Context, _, remotePath string) error {
	return fmt.Errorf("mobile-device upload %s: %w", remotePath, ErrNotImplemented)
}

func (h *mobileDeviceHandler) CreateDirectory(_ context.Context, path string) error {
	return fmt.Errorf("mobile-device mkdir %s: %w", path, ErrNotImplemented)
}

func (h *mobileDeviceHandler) DeleteItem(_ context.Context, path string) error {
	return fmt.Errorf("mobile-device delete %s: %w", path, ErrNotImplemented)
}

func (h *mobileDeviceHandler) GetItemMetadata(_ context.Context, _ string) (*store.Item, error) {
	return nil, fmt.Errorf("mobile-device metadata: %w", ErrNotImplemented)
}
