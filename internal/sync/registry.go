package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"platform-sync-service/internal/logger"
	"platform-sync-service/internal/platform"
	"platform-sync-service/internal/store"
)

// Registry owns the set of configured connections and the handler
// bound to each. Every mutation keeps the binding consistent with the
// connection's current platform kind and credentials; there is no
// state where a bound handler reflects stale credentials.
type Registry struct {
	store store.Store

	// newHandler is swappable in tests.
	newHandler func(*store.Connection) (platform.Handler, error)

	mu       sync.RWMutex
	handlers map[string]platform.Handler
	inFlight map[string]*atomic.Bool
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store:      st,
		newHandler: platform.NewHandler,
		handlers:   make(map[string]platform.Handler),
		inFlight:   make(map[string]*atomic.Bool),
	}
}

// Load binds handlers for every persisted connection. A connection
// whose stored credentials no longer validate is kept but left
// unbound; operations on it fail until it is updated.
func (r *Registry) Load(ctx context.Context) error {
	conns, err := r.store.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}

	for _, conn := range conns {
		handler, err := r.newHandler(conn)
		if err != nil {
			logger.Log.Warn("Skipping handler binding for stored connection",
				zap.String("connection", conn.ID),
				zap.String("kind", string(conn.Kind)),
				zap.Error(err),
			)
			r.track(conn.ID, nil)
			continue
		}
		r.track(conn.ID, handler)
	}

	logger.Log.Info("Loaded connections", zap.Int("count", len(conns)))
	return nil
}

func (r *Registry) AddConnection(ctx context.Context, conn *store.Connection) (*store.Connection, error) {
	if conn.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if !conn.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", platform.ErrUnsupportedPlatform, conn.Kind)
	}
	if conn.Direction == "" {
		conn.Direction = store.DirectionBidirectional
	}
	if !conn.Direction.IsValid() {
		return nil, fmt.Errorf("%w: invalid sync direction %q", ErrInvalidConfig, conn.Direction)
	}
	if conn.FrequencyMinutes < 0 {
		return nil, fmt.Errorf("%w: sync frequency must not be negative", ErrInvalidConfig)
	}

	// Construct the handler first: an unsupported kind or a bad
	// credential shape must reject the registration outright.
	handler, err := r.newHandler(conn)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conn.ID = uuid.New().String()
	conn.LastSyncAt = nil
	conn.CreatedAt = now
	conn.UpdatedAt = now

	if err := r.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to persist connection: %w", err)
	}
	r.track(conn.ID, handler)

	logger.Log.Info("Registered connection",
		zap.String("connection", conn.ID),
		zap.String("kind", string(conn.Kind)),
		zap.String("name", conn.Name),
	)
	return conn, nil
}

func (r *Registry) UpdateConnection(ctx context.Context, id string, upd ConnectionUpdate) (*store.Connection, error) {
	conn, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNotFound
	}

	// Rebinding the handler mid-pass is undefined behavior; reject
	// instead of deferring.
	if upd.rebindsHandler() && r.Syncing(id) {
		return nil, ErrSyncInProgress
	}

	upd.apply(conn)
	if !conn.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", platform.ErrUnsupportedPlatform, conn.Kind)
	}
	if !conn.Direction.IsValid() {
		return nil, fmt.Errorf("%w: invalid sync direction %q", ErrInvalidConfig, conn.Direction)
	}
	conn.UpdatedAt = time.Now().UTC()

	var handler platform.Handler
	if upd.rebindsHandler() {
		handler, err = r.newHandler(conn)
		if err != nil {
			return nil, err
		}
	}

	if err := r.store.UpdateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to persist connection update: %w", err)
	}
	if handler != nil {
		r.track(conn.ID, handler)
	}
	return conn, nil
}

func (r *Registry) DeleteConnection(ctx context.Context, id string) error {
	if r.Syncing(id) {
		return ErrSyncInProgress
	}

	deleted, err := r.store.DeleteConnection(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	r.mu.Lock()
	delete(r.handlers, id)
	delete(r.inFlight, id)
	r.mu.Unlock()

	logger.Log.Info("Deleted connection", zap.String("connection", id))
	return nil
}

func (r *Registry) GetConnection(ctx context.Context, id string) (*store.Connection, error) {
	conn, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNotFound
	}
	return conn, nil
}

func (r *Registry) ListConnections(ctx context.Context) ([]*store.Connection, error) {
	return r.store.ListConnections(ctx)
}

// TestConnection delegates to the bound handler. A deleted or unknown
// id is ErrNotFound, never a stale success.
func (r *Registry) TestConnection(ctx context.Context, id string) error {
	handler, err := r.Handler(id)
	if err != nil {
		return err
	}
	return handler.TestConnection(ctx)
}

func (r *Registry) Handler(id string) (platform.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if handler == nil {
		return nil, fmt.Errorf("connection %s has no usable handler bound", id)
	}
	return handler, nil
}

// beginSync atomically claims the connection's single sync slot. The
// compare-and-swap is what guarantees at most one in-progress
// operation per connection under concurrent triggers.
func (r *Registry) beginSync(id string) bool {
	r.mu.RLock()
	flag, ok := r.inFlight[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return flag.CompareAndSwap(false, true)
}

func (r *Registry) endSync(id string) {
	r.mu.RLock()
	flag, ok := r.inFlight[id]
	r.mu.RUnlock()
	if ok {
		flag.Store(false)
	}
}

func (r *Registry) Syncing(id string) bool {
	r.mu.RLock()
	flag, ok := r.inFlight[id]
	r.mu.RUnlock()
	return ok && flag.Load()
}

// track records the handler binding (which may be nil for a connection
// that failed to bind at load time) and ensures the in-flight flag
// exists.
func (r *Registry) track(id string, handler platform.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = handler
	if _, ok := r.inFlight[id]; !ok {
		r.inFlight[id] = &atomic.Bool{}
	}
}
