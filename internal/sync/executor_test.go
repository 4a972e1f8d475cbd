package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-sync-service/internal/config"
	"platform-sync-service/internal/platform"
	"platform-sync-service/internal/store"
)

// fakeHandler is an in-memory platform handler for engine tests.
type fakeHandler struct {
	mu          sync.Mutex
	kind        store.PlatformKind
	items       []*store.Item
	listErr     error
	uploadErr   map[string]error // remote path -> error
	downloadErr map[string]error
	uploads     []string
	downloads   []string
	block       chan struct{} // when set, ListItems waits for close or ctx
}

func (f *fakeHandler) Kind() store.PlatformKind {
	if f.kind == "" {
		return store.KindDesktopShare
	}
	return f.kind
}

func (f *fakeHandler) TestConnection(context.Context) error { return nil }

func (f *fakeHandler) ListItems(ctx context.Context, _ string) ([]*store.Item, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Item, 0, len(f.items))
	for _, item := range f.items {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeHandler) DownloadFile(_ context.Context, remotePath, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, remotePath)
	return f.downloadErr[remotePath]
}

func (f *fakeHandler) UploadFile(_ context.Context, _, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, remotePath)
	return f.uploadErr[remotePath]
}

func (f *fakeHandler) CreateDirectory(context.Context, string) error { return nil }
func (f *fakeHandler) DeleteItem(context.Context, string) error      { return nil }
func (f *fakeHandler) GetItemMetadata(context.Context, string) (*store.Item, error) {
	return nil, nil
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		HandlerTimeout:  "5s",
		ListingSoftFail: true,
		HistoryLimit:    100,
	}
}

// newTestEngine wires an engine over a fresh memory store with the
// fake handler bound to every connection.
func newTestEngine(t *testing.T, fh *fakeHandler, cfg config.SyncConfig) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	engine := NewEngine(cfg, st)
	engine.registry.newHandler = func(conn *store.Connection) (platform.Handler, error) {
		return fh, nil
	}
	t.Cleanup(engine.Stop)
	return engine, st
}

func addTestConnection(t *testing.T, engine *Engine, mutate func(*store.Connection)) *store.Connection {
	t.Helper()
	conn := &store.Connection{
		Kind:             store.KindDesktopShare,
		Name:             "test share",
		RootPath:         "/data",
		Enabled:          true,
		Direction:        store.DirectionBidirectional,
		FrequencyMinutes: 30,
		Credentials:      map[string]string{"host": "nas", "mountPath": "/mnt/share"},
	}
	if mutate != nil {
		mutate(conn)
	}
	created, err := engine.AddConnection(context.Background(), conn)
	require.NoError(t, err)
	return created
}

// startSync retries while the previous pass's slot is still being
// released; the in-flight flag clears shortly after the operation
// record turns terminal.
func startSync(t *testing.T, engine *Engine, connectionID string) *store.Operation {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		op, err := engine.StartSync(context.Background(), connectionID)
		if err == nil {
			return op
		}
		if !errors.Is(err, ErrSyncInProgress) || time.Now().After(deadline) {
			require.NoError(t, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForOperation(t *testing.T, st store.Store, id string) *store.Operation {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		op, err := st.GetOperation(context.Background(), id)
		require.NoError(t, err)
		if op != nil && op.Terminal() {
			return op
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("operation %s never reached a terminal state", id)
	return nil
}

func remoteFile(path, hash string, size int64, modified time.Time) *store.Item {
	return &store.Item{
		Path:       path,
		Size:       size,
		Hash:       hash,
		ModifiedAt: modified,
		Status:     store.StatusPending,
	}
}

func writeLocalFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestPassRecordsRemoteItems(t *testing.T) {
	now := time.Now().UTC().Add(-time.Hour)
	fh := &fakeHandler{items: []*store.Item{
		remoteFile("/data/a.txt", "h-a", 10, now),
		remoteFile("/data/b.txt", "h-b", 20, now),
		{Path: "/data/docs", IsDir: true, ModifiedAt: now, Status: store.StatusPending},
	}}
	engine, st := newTestEngine(t, fh, testSyncConfig())
	conn := addTestConnection(t, engine, func(c *store.Connection) {
		c.Direction = store.DirectionDownload // no local root: record only
	})

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)
	done := waitForOperation(t, st, op.ID)

	assert.Equal(t, store.StatusCompleted, done.Status)
	require.NotNil(t, done.ItemsTotal)
	assert.Equal(t, 3, *done.ItemsTotal)
	assert.Equal(t, 3, done.ItemsProcessed)
	assert.Empty(t, done.Errors)
	assert.NotNil(t, done.CompletedAt)

	items, err := st.ListItems(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	updated, err := engine.Connection(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastSyncAt)
}

func TestSecondStartIsRejectedWhileInProgress(t *testing.T) {
	fh := &fakeHandler{block: make(chan struct{})}
	engine, st := newTestEngine(t, fh, testSyncConfig())
	conn := addTestConnection(t, engine, nil)

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)

	_, err = engine.StartSync(context.Background(), conn.ID)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(fh.block)
	waitForOperation(t, st, op.ID)

	// The slot frees once the pass is terminal.
	op2 := startSync(t, engine, conn.ID)
	waitForOperation(t, st, op2.ID)
}

func TestUploadFailureDoesNotFailPass(t *testing.T) {
	local := t.TempDir()
	for _, name := range []string{"one.txt", "two.txt", "three.txt", "four.txt", "five.txt"} {
		writeLocalFile(t, local, name, "payload "+name)
	}

	fh := &fakeHandler{uploadErr: map[string]error{
		"/data/three.txt": errors.New("remote rejected write"),
	}}
	engine, st := newTestEngine(t, fh, testSyncConfig())
	conn := addTestConnection(t, engine, func(c *store.Connection) {
		c.Direction = store.DirectionUpload
		c.LocalPath = local
	})

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)
	done := waitForOperation(t, st, op.ID)

	assert.Equal(t, store.StatusCompleted, done.Status)
	assert.Equal(t, 5, done.ItemsProcessed)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, "/data/three.txt", done.Errors[0].Path)
	assert.Equal(t, CodeUploadFailed, done.Errors[0].Code)

	failed, err := st.GetItemByPath(context.Background(), conn.ID, "/data/three.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, failed.Status)
}

func TestConflictDetectionAndResolution(t *testing.T) {
	local := t.TempDir()
	writeLocalFile(t, local, "c.txt", "local version")

	modified := time.Now().UTC().Add(-time.Minute)
	fh := &fakeHandler{items: []*store.Item{
		remoteFile("/data/b.txt", "h-b", 20, modified),
		remoteFile("/data/c.txt", "h-remote", 30, modified),
	}}
	engine, st := newTestEngine(t, fh, testSyncConfig())
	conn := addTestConnection(t, engine, func(c *store.Connection) {
		c.LocalPath = local
	})

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)
	done := waitForOperation(t, st, op.ID)

	// c.txt diverges with no sync history to arbitrate: conflict.
	assert.Equal(t, store.StatusCompleted, done.Status)
	require.Len(t, done.ConflictItemIDs, 1)

	conflicted, err := st.GetItem(context.Background(), done.ConflictItemIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "/data/c.txt", conflicted.Path)
	assert.Equal(t, store.StatusConflict, conflicted.Status)
	assert.Empty(t, conflicted.Resolution)

	other, err := st.GetItemByPath(context.Background(), conn.ID, "/data/b.txt")
	require.NoError(t, err)
	assert.NotEqual(t, store.StatusConflict, other.Status)

	// Resolving records the decision and returns the item to pending.
	resolved, err := engine.ResolveConflict(context.Background(), conflicted.ID, store.ResolveRemote)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, resolved.Status)
	assert.Equal(t, store.ResolveRemote, resolved.Resolution)

	// The next pass acts on the decision: the remote copy is pulled
	// and the item completes instead of re-flagging.
	op2 := startSync(t, engine, conn.ID)
	waitForOperation(t, st, op2.ID)

	after, err := st.GetItem(context.Background(), conflicted.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, after.Status)
	assert.Contains(t, fh.downloads, "/data/c.txt")
}

func TestListingSoftFailure(t *testing.T) {
	fh := &fakeHandler{listErr: errors.New("remote unavailable")}
	engine, st := newTestEngine(t, fh, testSyncConfig())
	conn := addTestConnection(t, engine, nil)

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)
	done := waitForOperation(t, st, op.ID)

	// Soft-failure policy: zero items this pass, not a failure.
	assert.Equal(t, store.StatusCompleted, done.Status)
	require.NotNil(t, done.ItemsTotal)
	assert.Equal(t, 0, *done.ItemsTotal)
	assert.Empty(t, done.Errors)
}

func TestListingHardFailure(t *testing.T) {
	cfg := testSyncConfig()
	cfg.ListingSoftFail = false

	fh := &fakeHandler{listErr: errors.New("remote unavailable")}
	engine, st := newTestEngine(t, fh, cfg)
	conn := addTestConnection(t, engine, nil)

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)
	done := waitForOperation(t, st, op.ID)

	assert.Equal(t, store.StatusFailed, done.Status)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, CodeListFailed, done.Errors[0].Code)
	assert.Equal(t, conn.RootPath, done.Errors[0].Path)

	// Failed passes never advance the last-sync time, so the next due
	// tick retries.
	current, err := engine.Connection(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Nil(t, current.LastSyncAt)
}

func TestHungListingSurfacesTimeoutCode(t *testing.T) {
	cfg := testSyncConfig()
	cfg.HandlerTimeout = "30ms"
	cfg.ListingSoftFail = false

	fh := &fakeHandler{block: make(chan struct{})} // never closed
	engine, st := newTestEngine(t, fh, cfg)
	conn := addTestConnection(t, engine, nil)

	op, err := engine.StartSync(context.Background(), conn.ID)
	require.NoError(t, err)
	done := waitForOperation(t, st, op.ID)

	assert.Equal(t, store.StatusFailed, done.Status)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, CodeTimeout, done.Errors[0].Code)
}

func TestOperationHistoryRetention(t *testing.T) {
	cfg := testSyncConfig()
	cfg.HistoryLimit = 2

	fh := &fakeHandler{}
	engine, st := newTestEngine(t, fh, cfg)
	conn := addTestConnection(t, engine, nil)

	for i := 0; i < 4; i++ {
		op := startSync(t, engine, conn.ID)
		waitForOperation(t, st, op.ID)
	}

	ops, err := st.ListOperations(context.Background(), conn.ID, 0, 0)
	require.NoError(t, err)
	// Two retained terminal operations plus the most recent pass.
	assert.LessOrEqual(t, len(ops), 3)
}

func TestStartSyncReturnsStableSnapshot(t *testing.T) {
	local := t.TempDir()
	for i := 0; i < 20; i++ {
		writeLocalFile(t, local, fmt.Sprintf("f%02d.txt", i), "payload")
	}

	fh := &fakeHandler{}
	engine, st := newTestEngine(t, fh, testSyncConfig())
	conn := addTestConnection(t, engine, func(c *store.Connection) {
		c.Direction = store.DirectionUpload
		c.LocalPath = local
	})

	// The returned record is a snapshot taken before the pass goroutine
	// starts mutating the operation; its fields never reflect pass
	// progress, no matter how the goroutines interleave.
	for i := 0; i < 25; i++ {
		op := startSync(t, engine, conn.ID)
		assert.Equal(t, store.StatusInProgress, op.Status)
		assert.Nil(t, op.ItemsTotal)
		assert.Zero(t, op.ItemsProcessed)
		assert.Empty(t, op.Errors)
		waitForOperation(t, st, op.ID)
	}
}

func TestStartSyncUnknownConnection(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeHandler{}, testSyncConfig())
	_, err := engine.StartSync(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
