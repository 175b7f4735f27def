package storage

import (
	"context"
	"log/slog"
)

// BestEffort wraps a Store so that callers never see a persistence fault.
// Faults are logged and reads degrade to empty results. A nil Store makes
// every call a no-op, which is how the server runs with storage disabled.
type BestEffort struct {
	store  Store
	logger *slog.Logger
}

func NewBestEffort(store Store, logger *slog.Logger) *BestEffort {
	return &BestEffort{store: store, logger: logger}
}

func (b *BestEffort) Put(ctx context.Context, rec *AssetRecord) {
	if b == nil || b.store == nil {
		return
	}
	if err := b.store.PutAsset(ctx, rec); err != nil {
		b.logger.Warn("failed to persist record", "record_id", rec.ID, "status", rec.Status, "error", err)
	}
}

func (b *BestEffort) Get(ctx context.Context, id string) *AssetRecord {
	if b == nil || b.store == nil {
		return nil
	}
	rec, err := b.store.GetAsset(ctx, id)
	if err != nil {
		b.logger.Warn("failed to read record", "record_id", id, "error", err)
		return nil
	}
	return rec
}

func (b *BestEffort) All(ctx context.Context) []*AssetRecord {
	if b == nil || b.store == nil {
		return nil
	}
	recs, err := b.store.ListAssets(ctx)
	if err != nil {
		b.logger.Warn("failed to load records", "error", err)
		return nil
	}
	return recs
}

func (b *BestEffort) Delete(ctx context.Context, id string) {
	if b == nil || b.store == nil {
		return
	}
	if err := b.store.DeleteAsset(ctx, id); err != nil {
		b.logger.Warn("failed to delete record", "record_id", id, "error", err)
	}
}
