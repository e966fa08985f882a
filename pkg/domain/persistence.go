package domain

import "context"

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers: an
// append-only resolution log and the installed plugin records.
type PersistentStore interface {
	AppendResolution(ctx context.Context, res Resolution) (Resolution, error)
	ListResolutions(ctx context.Context) ([]Resolution, error)
	GetResolution(ctx context.Context, id string) (Resolution, bool, error)
	PutPluginRecord(ctx context.Context, rec PluginRecord) (PluginRecord, error)
	ListPluginRecords(ctx context.Context) ([]PluginRecord, error)
	Close() error
}
