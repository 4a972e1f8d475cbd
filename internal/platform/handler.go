// Package platform holds the per-platform sync handlers. A handler
// performs the platform-specific operations for exactly one connection
// and is stateless beyond the credentials it was constructed with.
//
// Paths passed to and returned from handlers are platform-absolute,
// slash-separated paths rooted at the platform's storage root.
package platform

import (
	"context"
	"errors"
	"fmt"

	"platform-sync-service/internal/store"
)

var (
	// ErrUnsupportedPlatform is returned by the factory for platform
	// kinds without a handler implementation.
	ErrUnsupportedPlatform = errors.New("unsupported platform kind")

	// ErrNotImplemented is returned by stub handlers for operations
	// their platform integration does not implement yet.
	ErrNotImplemented = errors.New("operation not implemented for this platform")

	// ErrInvalidCredentials means the credential blob does not have the
	// structural shape the platform kind requires.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Handler is the capability set every platform integration provides.
//
// ListItems must not fail the pass on transient errors at the engine
// level; whether a listing error is soft is the executor's decision,
// so handlers report errors honestly and return the items they saw.
// GetItemMetadata returns (nil, nil) for a missing path.
type Handler interface {
	Kind() store.PlatformKind
	TestConnection(ctx context.Context) error
	ListItems(ctx context.Context, path string) ([]*store.Item, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	UploadFile(ctx context.Context, localPath, remotePath string) error
	// CreateDirectory is idempotent: an already existing directory is
	// success, not failure.
	CreateDirectory(ctx context.Context, path string) error
	// DeleteItem removes a file, or a directory recursively.
	DeleteItem(ctx context.Context, path string) error
	GetItemMetadata(ctx context.Context, path string) (*store.Item, error)
}

// NewHandler validates the connection's credentials structurally and
// constructs the handler for its platform kind.
func NewHandler(conn *store.Connection) (Handler, error) {
	if err := ValidateCredentials(conn.Kind, conn.Credentials); err != nil {
		return nil, err
	}

	switch conn.Kind {
	case store.KindDesktopShare:
		return newDesktopShareHandler(conn), nil
	case store.KindCloudDrive:
		return newCloudDriveHandler(conn), nil
	case store.KindMobileDevice:
		return newMobileDeviceHandler(conn), nil
	case store.KindRemoteFilesystem:
		return newRemoteFSHandler(conn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, conn.Kind)
	}
}

// ValidateCredentials checks the structural credential shape for a
// platform kind. The engine never interprets credential values beyond
// this check.
func ValidateCredentials(kind store.PlatformKind, creds map[string]string) error {
	switch kind {
	case store.KindCloudDrive:
		return requireKeys(kind, creds, "accessToken")
	case store.KindMobileDevice:
		return requireKeys(kind, creds, "accountId", "secret")
	case store.KindRemoteFilesystem:
		if err := requireKeys(kind, creds, "host", "port", "username"); err != nil {
			return err
		}
		if creds["password"] == "" && creds["privateKey"] == "" {
			return fmt.Errorf("%w: %s requires password or privateKey", ErrInvalidCredentials, kind)
		}
		return nil
	case store.KindDesktopShare:
		return requireKeys(kind, creds, "host", "mountPath")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, kind)
	}
}

func requireKeys(kind store.PlatformKind, creds map[string]string, keys ...string) error {
	for _, key := range keys {
		if creds[key] == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidCredentials, kind, key)
		}
	}
	return nil
}
