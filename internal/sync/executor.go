package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"platform-sync-service/internal/config"
	"platform-sync-service/internal/logger"
	"platform-sync-service/internal/platform"
	"platform-sync-service/internal/store"
)

// Engine runs sync passes. It owns each operation it creates until the
// operation reaches a terminal state; after that the record is
// read-only history. Passes for different connections run
// concurrently; the per-connection slot in the Registry guarantees at
// most one in-progress operation per connection.
type Engine struct {
	cfg      config.SyncConfig
	store    store.Store
	registry *Registry
	resolver *Resolver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(cfg config.SyncConfig, st store.Store) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		store:    st,
		registry: NewRegistry(st),
		resolver: NewResolver(st),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Load binds handlers for all persisted connections. An empty store is
// a valid cold start.
func (e *Engine) Load(ctx context.Context) error {
	return e.registry.Load(ctx)
}

// Stop cancels in-flight passes and waits them out.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	logger.Log.Info("Stopped sync engine")
}

// Connection management, delegated to the registry.

func (e *Engine) AddConnection(ctx context.Context, conn *store.Connection) (*store.Connection, error) {
	return e.registry.AddConnection(ctx, conn)
}

func (e *Engine) UpdateConnection(ctx context.Context, id string, upd ConnectionUpdate) (*store.Connection, error) {
	return e.registry.UpdateConnection(ctx, id, upd)
}

func (e *Engine) DeleteConnection(ctx context.Context, id string) error {
	return e.registry.DeleteConnection(ctx, id)
}

func (e *Engine) Connection(ctx context.Context, id string) (*store.Connection, error) {
	return e.registry.GetConnection(ctx, id)
}

func (e *Engine) Connections(ctx context.Context) ([]*store.Connection, error) {
	return e.registry.ListConnections(ctx)
}

func (e *Engine) TestConnection(ctx context.Context, id string) error {
	return e.registry.TestConnection(ctx, id)
}

// Query surface for operations and items.

func (e *Engine) Operation(ctx context.Context, id string) (*store.Operation, error) {
	op, err := e.store.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrNotFound
	}
	return op, nil
}

func (e *Engine) Operations(ctx context.Context, connectionID string, limit, offset int) ([]*store.Operation, error) {
	if _, err := e.registry.GetConnection(ctx, connectionID); err != nil {
		return nil, err
	}
	return e.store.ListOperations(ctx, connectionID, limit, offset)
}

func (e *Engine) Item(ctx context.Context, id string) (*store.Item, error) {
	item, err := e.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

func (e *Engine) Items(ctx context.Context, connectionID string) ([]*store.Item, error) {
	if _, err := e.registry.GetConnection(ctx, connectionID); err != nil {
		return nil, err
	}
	return e.store.ListItems(ctx, connectionID)
}

func (e *Engine) ResolveConflict(ctx context.Context, itemID string, res store.Resolution) (*store.Item, error) {
	return e.resolver.Resolve(ctx, itemID, res)
}

// StartSync claims the connection's sync slot, registers a new
// operation and hands the pass off to a goroutine. It returns
// ErrSyncInProgress when an operation is already in flight.
func (e *Engine) StartSync(ctx context.Context, connectionID string) (*store.Operation, error) {
	conn, err := e.registry.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	handler, err := e.registry.Handler(connectionID)
	if err != nil {
		return nil, err
	}

	if !e.registry.beginSync(connectionID) {
		return nil, ErrSyncInProgress
	}

	op := &store.Operation{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		StartedAt:    time.Now().UTC(),
		Status:       store.StatusInProgress,
	}
	if err := e.store.CreateOperation(ctx, op); err != nil {
		e.registry.endSync(connectionID)
		return nil, fmt.Errorf("failed to register operation: %w", err)
	}

	if e.cfg.HistoryLimit > 0 {
		if _, err := e.store.PruneOperations(ctx, connectionID, e.cfg.HistoryLimit); err != nil {
			logger.Log.Warn("Failed to prune operation history",
				zap.String("connection", connectionID), zap.Error(err))
		}
	}

	// Snapshot before the handoff: the pass goroutine owns op from the
	// moment it launches, so nothing may read op after this point.
	snapshot := *op
	logger.Log.Info("Started sync operation",
		zap.String("connection", connectionID),
		zap.String("operation", op.ID),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.registry.endSync(connectionID)
		e.runPass(e.ctx, conn, handler, op)
	}()

	return &snapshot, nil
}

// runPass executes one synchronization pass. Items are processed in
// listing order, then local-only paths in lexical order; per-item
// failures are recorded and never abort the remainder of the pass.
func (e *Engine) runPass(ctx context.Context, conn *store.Connection, handler platform.Handler, op *store.Operation) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Sync pass panicked",
				zap.String("connection", conn.ID), zap.Any("panic", r))
			e.failOperation(conn, op, conn.RootPath, fmt.Errorf("pass panicked: %v", r), CodePassFailed)
		}
	}()

	remote, err := e.listRemote(ctx, handler, conn.RootPath)
	if err != nil {
		if !e.cfg.ListingSoftFail {
			e.failOperation(conn, op, conn.RootPath, err, codeFor(err, CodeListFailed))
			return
		}
		// Soft-failure policy: a failed listing is zero items this
		// pass. Nothing is deleted locally as a result.
		logger.Log.Warn("Remote listing failed, treating as empty",
			zap.String("connection", conn.ID), zap.Error(err))
		remote = nil
	}

	local, err := scanLocal(ctx, conn)
	if err != nil {
		e.failOperation(conn, op, conn.LocalPath, err, codeFor(err, CodePassFailed))
		return
	}

	var observed []*store.Item
	seen := make(map[string]bool, len(remote))
	for _, item := range remote {
		if !includePath(conn, item.Path, item.IsDir) {
			continue
		}
		observed = append(observed, item)
		seen[item.Path] = true
	}

	var localOnly []string
	if conn.Direction != store.DirectionDownload {
		for p, lf := range local {
			if lf.isDir || seen[p] || !includePath(conn, p, false) {
				continue
			}
			localOnly = append(localOnly, p)
		}
		sort.Strings(localOnly)
	}

	total := len(observed) + len(localOnly)
	op.ItemsTotal = &total
	if err := e.store.UpdateOperation(ctx, op); err != nil {
		logger.Log.Warn("Failed to persist operation progress", zap.Error(err))
	}

	for _, obs := range observed {
		e.processItem(ctx, conn, handler, op, obs, local[obs.Path])
		op.ItemsProcessed++
	}
	for _, p := range localOnly {
		e.processLocalOnly(ctx, conn, handler, op, p, local[p])
		op.ItemsProcessed++
	}

	e.completeOperation(conn, op)
}

func (e *Engine) listRemote(ctx context.Context, handler platform.Handler, root string) ([]*store.Item, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.GetHandlerTimeout())
	defer cancel()
	return handler.ListItems(cctx, root)
}

// processItem reconciles one remotely observed item against the local
// inventory and the stored record.
func (e *Engine) processItem(ctx context.Context, conn *store.Connection, handler platform.Handler, op *store.Operation, obs *store.Item, lf *localFile) {
	item := e.mergeStored(ctx, conn, obs)

	if item.IsDir {
		if lf == nil && conn.LocalPath != "" && conn.Direction != store.DirectionUpload {
			if err := os.MkdirAll(localTarget(conn, item.Path), 0o755); err != nil {
				item.Status = store.StatusFailed
				op.Errors = append(op.Errors, store.OperationError{
					Path: item.Path, Message: err.Error(), Code: CodeDownloadFailed,
				})
				e.persistItem(ctx, item)
				return
			}
		}
		item.Status = store.StatusCompleted
		e.persistItem(ctx, item)
		return
	}

	if pendingResolution(item) {
		e.applyResolution(ctx, conn, handler, op, item, lf)
		e.persistItem(ctx, item)
		return
	}

	switch decide(conn.Direction, item, lf, item.LastSyncedAt) {
	case actionEqual:
		item.Status = store.StatusCompleted
		item.Resolution = ""
		if item.LastSyncedAt == nil {
			now := time.Now().UTC()
			item.LastSyncedAt = &now
		}
	case actionSkip:
		// Observed and recorded; the configured direction forbids the
		// transfer that would reconcile it.
		item.Status = store.StatusPending
	case actionDownload:
		if conn.LocalPath == "" {
			// No local root to download into; record the observation
			// only.
			item.Status = store.StatusPending
			break
		}
		e.transfer(ctx, handler, op, item, actionDownload, localTarget(conn, item.Path), item.Path)
	case actionUpload:
		item.Size = lf.size
		item.Hash = lf.hash
		item.ModifiedAt = lf.modTime
		e.transfer(ctx, handler, op, item, actionUpload, lf.fsPath, item.Path)
	case actionConflict:
		if item.Status != store.StatusConflict {
			item.Status = store.StatusConflict
			item.Resolution = ""
			op.ConflictItemIDs = append(op.ConflictItemIDs, item.ID)
			logger.Log.Info("Conflict detected",
				zap.String("connection", conn.ID), zap.String("path", item.Path))
		}
	}
	e.persistItem(ctx, item)
}

// processLocalOnly pushes a file that exists locally but was not seen
// in the remote listing. Only reached when the direction allows
// uploads.
func (e *Engine) processLocalOnly(ctx context.Context, conn *store.Connection, handler platform.Handler, op *store.Operation, platformPath string, lf *localFile) {
	obs := &store.Item{
		Path:       platformPath,
		Size:       lf.size,
		Hash:       lf.hash,
		ModifiedAt: lf.modTime,
		Status:     store.StatusPending,
	}
	item := e.mergeStored(ctx, conn, obs)

	if pendingResolution(item) {
		e.applyResolution(ctx, conn, handler, op, item, lf)
		e.persistItem(ctx, item)
		return
	}

	e.transfer(ctx, handler, op, item, actionUpload, lf.fsPath, item.Path)
	e.persistItem(ctx, item)
}

// mergeStored folds the stored record (stable id, sync bookkeeping,
// recorded resolution) into a fresh observation.
func (e *Engine) mergeStored(ctx context.Context, conn *store.Connection, obs *store.Item) *store.Item {
	obs.ConnectionID = conn.ID

	existing, err := e.store.GetItemByPath(ctx, conn.ID, obs.Path)
	if err != nil {
		logger.Log.Warn("Failed to load stored item",
			zap.String("path", obs.Path), zap.Error(err))
	}
	if existing == nil {
		obs.ID = uuid.New().String()
		return obs
	}

	obs.ID = existing.ID
	obs.LastSyncedAt = existing.LastSyncedAt
	obs.Resolution = existing.Resolution
	obs.Status = existing.Status
	return obs
}

// pendingResolution reports whether the item carries a recorded
// conflict decision that the pass still has to act on.
func pendingResolution(item *store.Item) bool {
	return item.Resolution != "" &&
		(item.Status == store.StatusPending || item.Status == store.StatusFailed)
}

// applyResolution acts on a recorded conflict decision. Resolution and
// execution are decoupled: the decision was recorded earlier by the
// resolver, the transfer happens here.
func (e *Engine) applyResolution(ctx context.Context, conn *store.Connection, handler platform.Handler, op *store.Operation, item *store.Item, lf *localFile) {
	switch item.Resolution {
	case store.ResolveManual:
		// The caller reconciles out of band; the item stays pending
		// until its content converges.
		if lf != nil && lf.hash != "" && lf.hash == item.Hash {
			now := time.Now().UTC()
			item.Status = store.StatusCompleted
			item.LastSyncedAt = &now
		}
	case store.ResolveLocal:
		if lf == nil {
			item.Status = store.StatusFailed
			op.Errors = append(op.Errors, store.OperationError{
				Path: item.Path, Message: "local copy missing for resolution", Code: CodeUploadFailed,
			})
			return
		}
		item.Size = lf.size
		item.Hash = lf.hash
		item.ModifiedAt = lf.modTime
		e.transfer(ctx, handler, op, item, actionUpload, lf.fsPath, item.Path)
	case store.ResolveRemote:
		if conn.LocalPath == "" {
			return
		}
		e.transfer(ctx, handler, op, item, actionDownload, localTarget(conn, item.Path), item.Path)
	case store.ResolveRename:
		// Keep both versions: the remote copy lands under a
		// conflict-marked local name, then the local copy is pushed to
		// the original path when the direction permits.
		if conn.LocalPath == "" {
			return
		}
		target := localTarget(conn, renamedPath(item.Path, time.Now().UTC()))
		if !e.transfer(ctx, handler, op, item, actionDownload, target, item.Path) {
			return
		}
		if lf != nil && conn.Direction != store.DirectionDownload {
			item.Size = lf.size
			item.Hash = lf.hash
			item.ModifiedAt = lf.modTime
			e.transfer(ctx, handler, op, item, actionUpload, lf.fsPath, item.Path)
		}
	}
}

// transfer runs one upload or download under the handler timeout and
// records the outcome on both the item and the operation.
func (e *Engine) transfer(ctx context.Context, handler platform.Handler, op *store.Operation, item *store.Item, act action, localPath, remotePath string) bool {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.GetHandlerTimeout())
	defer cancel()

	var err error
	code := CodeDownloadFailed
	if act == actionUpload {
		code = CodeUploadFailed
		err = handler.UploadFile(cctx, localPath, remotePath)
	} else {
		err = handler.DownloadFile(cctx, remotePath, localPath)
	}

	if err != nil {
		item.Status = store.StatusFailed
		op.Errors = append(op.Errors, store.OperationError{
			Path: item.Path, Message: err.Error(), Code: codeFor(err, code),
		})
		return false
	}

	now := time.Now().UTC()
	item.Status = store.StatusCompleted
	item.LastSyncedAt = &now
	op.BytesTransferred += item.Size
	return true
}

func (e *Engine) persistItem(ctx context.Context, item *store.Item) {
	if err := e.store.UpsertItem(ctx, item); err != nil {
		logger.Log.Error("Failed to persist sync item",
			zap.String("path", item.Path), zap.Error(err))
	}
}

// completeOperation marks the pass terminal and advances the
// connection's last-sync timestamp.
func (e *Engine) completeOperation(conn *store.Connection, op *store.Operation) {
	now := time.Now().UTC()
	op.Status = store.StatusCompleted
	op.CompletedAt = &now

	ctx := context.Background()
	if err := e.store.UpdateOperation(ctx, op); err != nil {
		logger.Log.Error("Failed to persist completed operation", zap.Error(err))
	}

	// Refresh before writing: the record may have been renamed or
	// retuned mid-pass.
	if current, err := e.store.GetConnection(ctx, conn.ID); err == nil && current != nil {
		current.LastSyncAt = &now
		current.UpdatedAt = now
		if err := e.store.UpdateConnection(ctx, current); err != nil {
			logger.Log.Error("Failed to advance last sync time", zap.Error(err))
		}
	}

	logger.Log.Info("Sync pass completed",
		zap.String("connection", conn.ID),
		zap.String("operation", op.ID),
		zap.Int("items", op.ItemsProcessed),
		zap.Int64("bytes", op.BytesTransferred),
		zap.Int("errors", len(op.Errors)),
		zap.Int("conflicts", len(op.ConflictItemIDs)),
	)
}

// failOperation marks the pass failed with a single error entry. The
// connection's last-sync timestamp is left unchanged so the scheduler
// retries on the next due tick.
func (e *Engine) failOperation(conn *store.Connection, op *store.Operation, path string, err error, code string) {
	now := time.Now().UTC()
	op.Errors = append(op.Errors, store.OperationError{Path: path, Message: err.Error(), Code: code})
	op.Status = store.StatusFailed
	op.CompletedAt = &now

	if uerr := e.store.UpdateOperation(context.Background(), op); uerr != nil {
		logger.Log.Error("Failed to persist failed operation", zap.Error(uerr))
	}

	logger.Log.Error("Sync pass failed",
		zap.String("connection", conn.ID),
		zap.String("operation", op.ID),
		zap.String("code", code),
		zap.Error(err),
	)
}

func codeFor(err error, fallback string) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return fallback
}
