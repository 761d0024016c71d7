package curator

import (
	"context"

	"github.com/nidhogg/agent-memory/internal/model"
)

// VectorStore is the subset of *vectorstore.Client the curator needs.
// Defined here, at the consumer side, so Curator can be driven by a
// hand-written fake in tests without a live Qdrant connection.
type VectorStore interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, meta model.VectorMetadata) error
	Query(ctx context.Context, collection string, vector []float32, topK uint64) ([]model.VectorMatch, error)
	DeleteByID(ctx context.Context, collection, id string) error
}

// MemoryStore is the subset of *store.Store the curator needs.
type MemoryStore interface {
	ListRawCandidates(ctx context.Context, limit int) ([]model.Memory, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Memory, error)
	UpdateTextAndStatus(ctx context.Context, id, text string, tags []string, status model.Status, updatedAt int64) error
	Delete(ctx context.Context, id string) error
}
