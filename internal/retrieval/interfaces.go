package retrieval

import (
	"context"

	"github.com/nidhogg/agent-memory/internal/model"
)

// VectorStore is the subset of *vectorstore.Client the retrieval engine
// needs. Defined here, at the consumer side, so Engine can be driven by a
// hand-written fake in tests without a live Qdrant connection.
type VectorStore interface {
	Query(ctx context.Context, collection string, vector []float32, topK uint64) ([]model.VectorMatch, error)
}

// MemoryStore is the subset of *store.Store the retrieval engine needs.
type MemoryStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]model.Memory, error)
}
