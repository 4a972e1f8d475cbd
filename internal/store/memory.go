package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps all state in process memory. It is the default
// backend (cold start, no config) and the backend every test runs on.
type MemoryStore struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	items       map[string]*Item
	itemsByPath map[string]map[string]string // connection id -> path -> item id
	operations  map[string]*Operation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: make(map[string]*Connection),
		items:       make(map[string]*Item),
		itemsByPath: make(map[string]map[string]string),
		operations:  make(map[string]*Operation),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CreateConnection(_ context.Context, conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = copyConnection(conn)
	return nil
}

func (s *MemoryStore) UpdateConnection(_ context.Context, conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = copyConnection(conn)
	return nil
}

func (s *MemoryStore) DeleteConnection(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return false, nil
	}
	delete(s.connections, id)
	for _, itemID := range s.itemsByPath[id] {
		delete(s.items, itemID)
	}
	delete(s.itemsByPath, id)
	for opID, op := range s.operations {
		if op.ConnectionID == id {
			delete(s.operations, opID)
		}
	}
	return true, nil
}

func (s *MemoryStore) GetConnection(_ context.Context, id string) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, nil
	}
	return copyConnection(conn), nil
}

func (s *MemoryStore) ListConnections(_ context.Context) ([]*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		out = append(out, copyConnection(conn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpsertItem(_ context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPath, ok := s.itemsByPath[item.ConnectionID]
	if !ok {
		byPath = make(map[string]string)
		s.itemsByPath[item.ConnectionID] = byPath
	}
	// Stable identity per (connection, path): keep the existing id.
	if existingID, ok := byPath[item.Path]; ok && existingID != item.ID {
		delete(s.items, item.ID)
		item.ID = existingID
	}
	byPath[item.Path] = item.ID
	s.items[item.ID] = copyItem(item)
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

func (s *MemoryStore) GetItemByPath(_ context.Context, connectionID, path string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.itemsByPath[connectionID][path]
	if !ok {
		return nil, nil
	}
	return copyItem(s.items[id]), nil
}

func (s *MemoryStore) ListItems(_ context.Context, connectionID string) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Item, 0, len(s.itemsByPath[connectionID]))
	for _, id := range s.itemsByPath[connectionID] {
		out = append(out, copyItem(s.items[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *MemoryStore) CreateOperation(_ context.Context, op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[op.ID] = copyOperation(op)
	return nil
}

func (s *MemoryStore) UpdateOperation(_ context.Context, op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[op.ID] = copyOperation(op)
	return nil
}

func (s *MemoryStore) GetOperation(_ context.Context, id string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, nil
	}
	return copyOperation(op), nil
}

func (s *MemoryStore) ListOperations(_ context.Context, connectionID string, limit, offset int) ([]*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Same default page size as the SQL backends.
	if limit <= 0 {
		limit = 100
	}
	all := s.operationsFor(connectionID)
	if offset >= len(all) {
		return []*Operation{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	out := make([]*Operation, 0, len(all))
	for _, op := range all {
		out = append(out, copyOperation(op))
	}
	return out, nil
}

func (s *MemoryStore) PruneOperations(_ context.Context, connectionID string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var terminal []*Operation
	for _, op := range s.operationsFor(connectionID) {
		if op.Terminal() {
			terminal = append(terminal, op)
		}
	}
	if keep < 0 || len(terminal) <= keep {
		return 0, nil
	}
	pruned := 0
	for _, op := range terminal[keep:] {
		delete(s.operations, op.ID)
		pruned++
	}
	return pruned, nil
}

// operationsFor returns the connection's operations newest first.
// Callers must hold the lock.
func (s *MemoryStore) operationsFor(connectionID string) []*Operation {
	var ops []*Operation
	for _, op := range s.operations {
		if op.ConnectionID == connectionID {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].StartedAt.After(ops[j].StartedAt) })
	return ops
}

func copyConnection(c *Connection) *Connection {
	out := *c
	out.Credentials = copyStringMap(c.Credentials)
	out.Metadata = copyStringMap(c.Metadata)
	out.ExcludePaths = append([]string(nil), c.ExcludePaths...)
	out.IncludeExtensions = append([]string(nil), c.IncludeExtensions...)
	out.ExcludeExtensions = append([]string(nil), c.ExcludeExtensions...)
	out.LastSyncAt = copyTime(c.LastSyncAt)
	return &out
}

func copyItem(i *Item) *Item {
	out := *i
	out.Metadata = copyStringMap(i.Metadata)
	out.LastSyncedAt = copyTime(i.LastSyncedAt)
	return &out
}

func copyOperation(o *Operation) *Operation {
	out := *o
	out.Errors = append([]OperationError(nil), o.Errors...)
	out.ConflictItemIDs = append([]string(nil), o.ConflictItemIDs...)
	out.CompletedAt = copyTime(o.CompletedAt)
	if o.ItemsTotal != nil {
		total := *o.ItemsTotal
		out.ItemsTotal = &total
	}
	return &out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
