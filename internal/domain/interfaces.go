package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// AssetResolver maps a style name to a local weight file, fetching it on
// first use. Implemented by infra/assets.Store.
type AssetResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	Styles() []Style
}

// HistoryStore persists transform records. Implemented by infra/sqlite.DB.
type HistoryStore interface {
	InsertTransform(rec TransformRecord) error
	ListTransforms(limit int) ([]TransformRecord, error)
}
