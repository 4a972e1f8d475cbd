package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"platform-sync-service/internal/store"
)

// action is the per-path decision produced by the diff step.
type action int

const (
	actionEqual action = iota // both sides present, content identical
	actionSkip                // transfer needed but direction forbids it
	actionUpload
	actionDownload
	actionConflict
)

// localFile is one entry of the local inventory built for a pass.
type localFile struct {
	fsPath  string
	isDir   bool
	size    int64
	modTime time.Time
	hash    string
}

// scanLocal builds the local inventory under the connection's local
// root, keyed by platform-absolute path. A missing local root is an
// empty inventory, never an error. File hashing runs on a bounded
// worker group; entries are still returned deterministically.
func scanLocal(ctx context.Context, conn *store.Connection) (map[string]*localFile, error) {
	inventory := make(map[string]*localFile)
	if conn.LocalPath == "" {
		return inventory, nil
	}
	if _, err := os.Stat(conn.LocalPath); os.IsNotExist(err) {
		return inventory, nil
	}

	err := filepath.Walk(conn.LocalPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == conn.LocalPath {
			return nil
		}

		rel, err := filepath.Rel(conn.LocalPath, p)
		if err != nil {
			return err
		}
		platformPath := path.Join(path.Clean("/"+conn.RootPath), filepath.ToSlash(rel))
		inventory[platformPath] = &localFile{
			fsPath:  p,
			isDir:   info.IsDir(),
			size:    info.Size(),
			modTime: info.ModTime().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, lf := range inventory {
		if lf.isDir {
			continue
		}
		lf := lf
		g.Go(func() error {
			hash, err := hashLocalFile(lf.fsPath)
			if err != nil {
				return err
			}
			lf.hash = hash
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inventory, nil
}

func hashLocalFile(p string) (string, error) {
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

// includePath applies the connection's path exclusions and extension
// filters. Directories are only subject to path exclusions.
func includePath(conn *store.Connection, platformPath string, isDir bool) bool {
	cleaned := path.Clean("/" + platformPath)
	for _, excl := range conn.ExcludePaths {
		excl = path.Clean("/" + excl)
		if cleaned == excl || strings.HasPrefix(cleaned, excl+"/") {
			return false
		}
		if ok, _ := path.Match(excl, path.Base(cleaned)); ok {
			return false
		}
	}
	if isDir {
		return true
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(cleaned), "."))
	if len(conn.IncludeExtensions) > 0 && !containsFold(conn.IncludeExtensions, ext) {
		return false
	}
	if containsFold(conn.ExcludeExtensions, ext) {
		return false
	}
	return true
}

func containsFold(list []string, ext string) bool {
	for _, e := range list {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			return true
		}
	}
	return false
}

// decide classifies one path given what each side looks like and when
// the item was last synced. Both sides modified since the last sync is
// a conflict; so is divergence with no sync history to arbitrate it.
func decide(direction store.SyncDirection, remote *store.Item, local *localFile, lastSynced *time.Time) action {
	switch {
	case remote != nil && local == nil:
		if direction == store.DirectionUpload {
			return actionSkip
		}
		return actionDownload
	case remote == nil && local != nil:
		if direction == store.DirectionDownload {
			return actionSkip
		}
		return actionUpload
	}

	if remote.IsDir || local.isDir {
		return actionEqual
	}
	if remote.Hash != "" && remote.Hash == local.hash {
		return actionEqual
	}
	if lastSynced == nil {
		return actionConflict
	}

	remoteChanged := remote.ModifiedAt.After(*lastSynced)
	localChanged := local.modTime.After(*lastSynced)
	switch {
	case remoteChanged && localChanged:
		return actionConflict
	case remoteChanged:
		if direction == store.DirectionUpload {
			return actionSkip
		}
		return actionDownload
	case localChanged:
		if direction == store.DirectionDownload {
			return actionSkip
		}
		return actionUpload
	default:
		// Content differs but neither side moved past the last sync
		// point; only an explicit resolution can arbitrate.
		return actionConflict
	}
}

// localTarget maps a platform-absolute item path onto the connection's
// local root.
func localTarget(conn *store.Connection, platformPath string) string {
	root := path.Clean("/" + conn.RootPath)
	rel := strings.TrimPrefix(path.Clean("/"+platformPath), root)
	rel = strings.TrimPrefix(rel, "/")
	return filepath.Join(conn.LocalPath, filepath.FromSlash(rel))
}

// renamedPath appends a conflict marker before the extension, keeping
// both versions of a renamed conflict.
func renamedPath(platformPath string, ts time.Time) string {
	ext := path.Ext(platformPath)
	base := strings.TrimSuffix(platformPath, ext)
	return base + " (conflict " + ts.Format("20060102-150405") + ")" + ext
}
