package store

import (
	"context"
)

// Store is the persistence collaborator for connections, items and
// operation history. Getters return (nil, nil) for missing records; an
// empty store is a valid cold start.
type Store interface {
	// Connections
	CreateConnection(ctx context.Context, conn *Connection) error
	UpdateConnection(ctx context.Context, conn *Connection) error
	// DeleteConnection removes the connection together with its items
	// and operation history, reporting whether it existed.
	DeleteConnection(ctx context.Context, id string) (bool, error)
	GetConnection(ctx context.Context, id string) (*Connection, error)
	ListConnections(ctx context.Context) ([]*Connection, error)

	// Items
	UpsertItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	GetItemByPath(ctx context.Context, connectionID, path string) (*Item, error)
	ListItems(ctx context.Context, connectionID string) ([]*Item, error)

	// Operations
	CreateOperation(ctx context.Context, op *Operation) error
	UpdateOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	ListOperations(ctx context.Context, connectionID string, limit, offset int) ([]*Operation, error)
	// PruneOperations drops the oldest terminal operations for a
	// connection beyond keep, returning how many were removed.
	PruneOperations(ctx context.Context, connectionID string, keep int) (int, error)

	// General
	Close() error
}
