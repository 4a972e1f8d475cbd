package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"platform-sync-service/internal/store"
)

// cloudDriveHandler talks to a cloud drive's HTTP API with a bearer
// access token. Connectivity testing is implemented; the data
// operations are stubs until the vendor API integration lands.
type cloudDriveHandler struct {
	conn   *store.Connection
	client *http.Client
}

func newCloudDriveHandler(conn *store.Connection) *cloudDriveHandler {
	return &cloudDriveHandler{
		conn:   conn,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *cloudDriveHandler) Kind() store.PlatformKind {
	return store.KindCloudDrive
}

func (h *cloudDriveHandler) TestConnection(ctx context.Context) error {
	endpoint := h.conn.Credentials["endpoint"]
	if endpoint == "" {
		return fmt.Errorf("cloud-drive connection %s has no endpoint configured", h.conn.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.conn.Credentials["accessToken"])

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloud drive unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("cloud drive returned %s", resp.Status)
	}
	return nil
}

func (h *cloudDriveHandler) ListItems(_ context.Context, _ string) ([]*store.Item, error) {
	return nil, fmt.Errorf("cloud-drive listing: %w", ErrNotImplemented)
}

func (h *cloudDriveHandler) DownloadFile(_ context.Context, remotePath, _ string) error {
	return fmt.Errorf("cloud-drive download %s: %w", remotePath, ErrNotImplemented)
}

func (h *cloudDriveHandler) UploadFile(_ context.Context, _, remotePath string) error {
	return fmt.Errorf("cloud-drive upload %s: %w", remotePath, ErrNotImplemented)
}

func (h *cloudDriveHandler) CreateDirectory(_ context.Context, path string) error {
	return fmt.Errorf("cloud-drive mkdir %s: %w", path, ErrNotImplemented)
}

func (h *cloudDriveHandler) DeleteItem(_ context.Context, path string) error {
	return fmt.Errorf("cloud-drive delete %s: %w", path, ErrNotImplemented)
}

func (h *cloudDriveHandler) GetItemMetadata(_ context.Context, _ string) (*store.Item, error) {
	return nil, fmt.Errorf("cloud-drive metadata: %w", ErrNotImplemented)
}
