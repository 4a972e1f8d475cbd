package platform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"platform-sync-service/internal/store"
)

// desktopShareHandler is the reference handler implementation: a
// desktop share mounted into the local filesystem at the mountPath
// credential. All operations are real filesystem I/O against the mount.
type desktopShareHandler struct {
	conn      *store.Connection
	mountPath string
}

func newDesktopShareHandler(conn *store.Connection) *desktopShareHandler {
	return &desktopShareHandler{
		conn:      conn,
		mountPath: conn.Credentials["mountPath"],
	}
}

func (h *desktopShareHandler) Kind() store.PlatformKind {
	return store.KindDesktopShare
}

// resolve maps a platform-absolute path onto the mounted share.
func (h *desktopShareHandler) resolve(p string) string {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	return filepath.Join(h.mountPath, filepath.FromSlash(rel))
}

func (h *desktopShareHandler) TestConnection(_ context.Context) error {
	info, err := os.Stat(h.mountPath)
	if err != nil {
		return fmt.Errorf("share mount %s is not accessible: %w", h.mountPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("share mount %s is not a directory", h.mountPath)
	}
	return nil
}

func (h *desktopShareHandler) ListItems(ctx context.Context, listPath string) ([]*store.Item, error) {
	root := h.resolve(listPath)
	base := path.Clean("/" + listPath)

	var items []*store.Item
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		item, err := h.describe(path.Join(base, filepath.ToSlash(rel)), p, d.IsDir())
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return items, fmt.Errorf("failed to list %s: %w", listPath, err)
	}
	return items, nil
}

func (h *desktopShareHandler) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	return copyFile(ctx, h.resolve(remotePath), localPath)
}

func (h *desktopShareHandler) UploadFile(ctx context.Context, localPath, remotePath string) error {
	return copyFile(ctx, localPath, h.resolve(remotePath))
}

func (h *desktopShareHandler) CreateDirectory(_ context.Context, p string) error {
	// MkdirAll succeeds when the directory already exists.
	return os.MkdirAll(h.resolve(p), 0o755)
}

func (h *desktopShareHandler) DeleteItem(_ context.Context, p string) error {
	target := h.resolve(p)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("cannot delete %s: %w", p, err)
	}
	return os.RemoveAll(target)
}

func (h *desktopShareHandler) GetItemMetadata(_ context.Context, p string) (*store.Item, error) {
	target := h.resolve(p)
	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h.describe(path.Clean("/"+p), target, info.IsDir())
}

func (h *desktopShareHandler) describe(platformPath, fsPath string, isDir bool) (*store.Item, error) {
	info, err := os.Stat(fsPath)
	if err != nil {
		return nil, err
	}

	item := &store.Item{
		Path:       platformPath,
		IsDir:      isDir,
		ModifiedAt: info.ModTime().UTC(),
		Status:     store.StatusPending,
	}
	if isDir {
		return item, nil
	}

	item.Size = info.Size()
	if mt, err := mimetype.DetectFile(fsPath); err == nil {
		item.ContentType = mt.String()
	}
	hash, err := hashFile(fsPath)
	if err != nil {
		return nil, err
	}
	item.Hash = hash
	return item, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("cannot create parent of %s: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s failed: %w", src, dst, err)
	}
	return out.Close()
}
