package ingestion

import (
	"context"
	"time"

	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/queue"
)

// Queue is the subset of *queue.Queue the front door and consumer need.
// Defined here, at the consumer side, so both can be driven by a
// hand-written fake in tests without a live Redis connection.
type Queue interface {
	Publish(ctx context.Context, env model.Envelope) error
	Consume(ctx context.Context, consumerName string, count int64, block time.Duration) ([]queue.Message, error)
	Reclaim(ctx context.Context, consumerName string, minIdle time.Duration, count int64) ([]queue.Message, error)
	Ack(ctx context.Context, id string) error
}

// VectorStore is the subset of *vectorstore.Client the consumer needs.
type VectorStore interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, meta model.VectorMetadata) error
}

// MemoryStore is the subset of *store.Store the consumer needs.
type MemoryStore interface {
	Insert(ctx context.Context, id string, env model.Envelope) (model.Memory, error)
}
