package searchindex

import (
	"context"

	"github.com/picc-digital/storyline/internal/model"
)

// Embeddings produces vector representations for text.
type Embeddings interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index provides hybrid search over story and knowledge documents. Documents
// are written by the indexing pipeline; the API only ever reads, except for
// best-effort upserts when a story is published.
type Index interface {
	Search(ctx context.Context, query string, vec []float32, topK int, alpha float32) ([]model.SearchHit, error)

	// Upsert/Delete are best-effort; the index is rebuilt out-of-band.
	UpsertDocument(ctx context.Context, docID string, vec []float32, payload map[string]interface{}) error
	DeleteDocument(ctx context.Context, docID string) error
}

// HealthPinger is optionally implemented by an Index to expose specialized
// health check logic. Returns nil when healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
