package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"platform-sync-service/internal/logger"
	"platform-sync-service/internal/store"
)

// Resolver records conflict decisions. It only records: the item goes
// back to pending and the next sync pass performs whatever transfer
// the decision calls for, so the resolving caller never waits on a
// slow transfer.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve applies a resolution choice to a conflicted item and returns
// it to a re-syncable state.
func (r *Resolver) Resolve(ctx context.Context, itemID string, res store.Resolution) (*store.Item, error) {
	if !res.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, res)
	}

	item, err := r.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if item.Status != store.StatusConflict {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConflicted, itemID, item.Status)
	}

	item.Resolution = res
	item.Status = store.StatusPending
	if err := r.store.UpsertItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}

	logger.Log.Info("Conflict resolved",
		zap.String("item", itemID),
		zap.String("path", item.Path),
		zap.String("resolution", string(res)),
	)
	return item, nil
}
