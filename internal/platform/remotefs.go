package platform

import (
	"context"
	"fmt"
	"net"
	"time"

	"platform-sync-service/internal/store"
)

// remoteFSHandler reaches a remote filesystem over the network
// (host/port/username plus password or private key). Connectivity
// testing dials the endpoint; the data operations are stubs until the
// transfer protocol client is integrated.
type remoteFSHandler struct {
	conn *store.Connection
}

func newRemoteFSHandler(conn *store.Connection) *remoteFSHandler {
	return &remoteFSHandler{conn: conn}
}

func (h *remoteFSHandler) Kind() store.PlatformKind {
	return store.KindRemoteFilesystem
}

func (h *remoteFSHandler) addr() string {
	return net.JoinHostPort(h.conn.Credentials["host"], h.conn.Credentials["port"])
}

func (h *remoteFSHandler) TestConnection(ctx context.Context) error {
	d := net.Dialer{Timeout: 10 * time.Second}
	c, err := d.DialContext(ctx, "tcp", h.addr())
	if err != nil {
		return fmt.Errorf("remote filesystem %s unreachable: %w", h.addr(), err)
	}
	return c.Close()
}

func (h *remoteFSHandler) ListItems(_ context.Context, _ string) ([]*store.Item, error) {
	return nil, fmt.Errorf("remote-filesystem listing: %w", ErrNotImplemented)
}

func (h *remoteFSHandler) DownloadFile(_ context.Context, remotePath, _ string) error {
	return fmt.Errorf("remote-filesystem download %s: %w", remotePath, ErrNotImplemented)
}

func (h *remoteFSHandler) UploadFile(_ context.Context, _, remotePath string) error {
	return fmt.Errorf("remote-filesystem upload %s: %w", remotePath, ErrNotImplemented)
}

func (h *remoteFSHandler) CreateDirectory(_ context.Context, path string) error {
	return fmt.Errorf("remote-filesystem mkdir %s: %w", path, ErrNotImplemented)
}

func (h *remoteFSHandler) DeleteItem(_ context.Context, path string) error {
	return fmt.Errorf("remote-filesystem delete %s: %w", path, ErrNotImplemented)
}

func (h *remoteFSHandler) GetItemMetadata(_ context.Context, _ string) (*store.Item, error) {
	return nil, fmt.Errorf("remote-filesystem metadata: %w", ErrNotImplemented)
}
