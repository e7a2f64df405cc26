package usecase

import (
	"context"

	"github.com/totegamma/graphdoc/internal/domain"
)

// RecordRepository defines storage operations for records and their edges.
type RecordRepository interface {
	Get(ctx context.Context, typ, id string, depth int) (map[string]any, error)
	List(ctx context.Context, typ string, page domain.Page, depth int) ([]map[string]any, error)
	Upsert(ctx context.Context, record domain.Record, links []domain.Link) error
	Delete(ctx context.Context, typ, id string) error
}

// DocumentCache keeps rendered documents. Get reports the key a miss should
// be stored under.
type DocumentCache interface {
	Get(ctx context.Context, parts ...string) ([]byte, string, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Invalidate(ctx context.Context) error
}

// SignalPublisher announces changes to realtime subscribers.
type SignalPublisher interface {
	Publish(ctx context.Context, change domain.Change) error
}

// Catalog maps collection names from URLs to registry tags.
type Catalog interface {
	Lookup(name string) (string, bool)
}
