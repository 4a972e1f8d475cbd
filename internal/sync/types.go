package sync

import (
	"errors"

	"platform-sync-service/internal/store"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidConfig     = errors.New("invalid connection configuration")
	ErrSyncInProgress    = errors.New("a sync operation is already in progress for this connection")
	ErrNotConflicted     = errors.New("item is not in conflict")
	ErrInvalidResolution = errors.New("invalid conflict resolution")
)

// Stable error codes recorded in an operation's error list.
const (
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeListFailed     = "LIST_FAILED"
	CodeTimeout        = "TIMEOUT"
	CodePassFailed     = "PASS_FAILED"
)

// ConnectionUpdate is a partial update applied to an existing
// connection. Nil fields are left unchanged. Changing Kind or
// Credentials rebinds the handler and is rejected while a sync pass is
// in flight.
type ConnectionUpdate struct {
	Kind              *store.PlatformKind  `json:"kind,omitempty"`
	Name              *string              `json:"name,omitempty"`
	RootPath          *string              `json:"rootPath,omitempty"`
	LocalPath         *string              `json:"localPath,omitempty"`
	Credentials       map[string]string    `json:"credentials,omitempty"`
	Enabled           *bool                `json:"enabled,omitempty"`
	Direction         *store.SyncDirection `json:"direction,omitempty"`
	FrequencyMinutes  *int                 `json:"frequencyMinutes,omitempty"`
	ExcludePaths      *[]string            `json:"excludePaths,omitempty"`
	IncludeExtensions *[]string            `json:"includeExtensions,omitempty"`
	ExcludeExtensions *[]string            `json:"excludeExtensions,omitempty"`
	Metadata          map[string]string    `json:"metadata,omitempty"`
}

func (u ConnectionUpdate) rebindsHandler() bool {
	return u.Kind != nil || u.Credentials != nil
}

func (u ConnectionUpdate) apply(conn *store.Connection) {
	if u.Kind != nil {
		conn.Kind = *u.Kind
	}
	if u.Name != nil {
		conn.Name = *u.Name
	}
	if u.RootPath != nil {
		conn.RootPath = *u.RootPath
	}
	if u.LocalPath != nil {
		conn.LocalPath = *u.LocalPath
	}
	if u.Credentials != nil {
		conn.Credentials = u.Credentials
	}
	if u.Enabled != nil {
		conn.Enabled = *u.Enabled
	}
	if u.Direction != nil {
		conn.Direction = *u.Direction
	}
	if u.FrequencyMinutes != nil {
		conn.FrequencyMinutes = *u.FrequencyMinutes
	}
	if u.ExcludePaths != nil {
		conn.ExcludePaths = *u.ExcludePaths
	}
	if u.IncludeExtensions != nil {
		conn.IncludeExtensions = *u.IncludeExtensions
	}
	if u.ExcludeExtensions != nil {
		conn.ExcludeExtensions = *u.ExcludeExtensions
	}
	if u.Metadata != nil {
		conn.Metadata = u.Metadata
	}
}
