package store

import (
	"time"
)

// PlatformKind identifies the kind of external storage a connection
// points at. "web" is part of the closed enumeration but has no handler
// implementation; registering a web connection is rejected.
type PlatformKind string

const (
	KindCloudDrive       PlatformKind = "cloud-drive"
	KindMobileDevice     PlatformKind = "mobile-device"
	KindRemoteFilesystem PlatformKind = "remote-filesystem"
	KindDesktopShare     PlatformKind = "desktop-share"
	KindWeb              PlatformKind = "web"
)

func (k PlatformKind) IsValid() bool {
	switch k {
	case KindCloudDrive, KindMobileDevice, KindRemoteFilesystem, KindDesktopShare, KindWeb:
		return true
	default:
		return false
	}
}

type SyncDirection string

const (
	DirectionUpload        SyncDirection = "upload-only"
	DirectionDownload      SyncDirection = "download-only"
	DirectionBidirectional SyncDirection = "bidirectional"
)

func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionUpload, DirectionDownload, DirectionBidirectional:
		return true
	default:
		return false
	}
}

// SyncStatus is shared by items and operations. "conflict" is terminal
// for an operation's individual items, never for the operation itself.
type SyncStatus string

const (
	StatusPending    SyncStatus = "pending"
	StatusInProgress SyncStatus = "in-progress"
	StatusCompleted  SyncStatus = "completed"
	StatusFailed     SyncStatus = "failed"
	StatusConflict   SyncStatus = "conflict"
)

// Resolution is the recorded decision for a conflicted item. The
// decision is acted on by the next sync pass, not at resolve time.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
	ResolveRename Resolution = "rename"
	ResolveManual Resolution = "manual"
)

func (r Resolution) IsValid() bool {
	switch r {
	case ResolveLocal, ResolveRemote, ResolveRename, ResolveManual:
		return true
	default:
		return false
	}
}

// Connection is a configured link to one external storage platform.
// Credentials are opaque to the engine beyond structural validation and
// are returned unredacted; redaction is the caller's concern.
type Connection struct {
	ID                string            `db:"id" json:"id"`
	Kind              PlatformKind      `db:"kind" json:"kind"`
	Name              string            `db:"name" json:"name"`
	RootPath          string            `db:"root_path" json:"rootPath"`
	LocalPath         string            `db:"local_path" json:"localPath"`
	Credentials       map[string]string `db:"credentials" json:"credentials"`
	Enabled           bool              `db:"enabled" json:"enabled"`
	Direction         SyncDirection     `db:"direction" json:"direction"`
	FrequencyMinutes  int               `db:"frequency_minutes" json:"frequencyMinutes"`
	ExcludePaths      []string          `db:"exclude_paths" json:"excludePaths,omitempty"`
	IncludeExtensions []string          `db:"include_extensions" json:"includeExtensions,omitempty"`
	ExcludeExtensions []string          `db:"exclude_extensions" json:"excludeExtensions,omitempty"`
	LastSyncAt        *time.Time        `db:"last_sync_at" json:"lastSyncAt,omitempty"`
	Metadata          map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// Item is the engine's record of one observed file or directory.
// Identity is stable per (connection, path): re-observation updates the
// existing record instead of minting a new id.
type Item struct {
	ID           string            `db:"id" json:"id"`
	ConnectionID string            `db:"connection_id" json:"connectionId"`
	Path         string            `db:"path" json:"path"`
	IsDir        bool              `db:"is_dir" json:"isDir"`
	Size         int64             `db:"size" json:"size"`
	ContentType  string            `db:"content_type" json:"contentType,omitempty"`
	Hash         string            `db:"hash" json:"hash,omitempty"`
	ModifiedAt   time.Time         `db:"modified_at" json:"modifiedAt"`
	LastSyncedAt *time.Time        `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
	Status       SyncStatus        `db:"status" json:"status"`
	Metadata     map[string]string `db:"metadata" json:"metadata,omitempty"`
	Resolution   Resolution        `db:"resolution" json:"conflictResolution,omitempty"`
}

// OperationError is one recorded failure within a sync pass. Code is a
// stable machine-readable identifier (UPLOAD_FAILED, TIMEOUT, ...).
type OperationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Operation is one execution of a sync pass for a connection. Once
// Status is completed or failed the record is immutable history.
type Operation struct {
	ID               string           `db:"id" json:"id"`
	ConnectionID     string           `db:"connection_id" json:"connectionId"`
	StartedAt        time.Time        `db:"started_at" json:"startedAt"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	Status           SyncStatus       `db:"status" json:"status"`
	ItemsProcessed   int              `db:"items_processed" json:"itemsProcessed"`
	ItemsTotal       *int             `db:"items_total" json:"itemsTotal,omitempty"`
	BytesTransferred int64            `db:"bytes_transferred" json:"bytesTransferred"`
	Errors           []OperationError `db:"errors" json:"errors,omitempty"`
	ConflictItemIDs  []string         `db:"conflict_item_ids" json:"conflictItemIds,omitempty"`
}

// Terminal reports whether the operation has finished, successfully or
// not.
func (o *Operation) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}
