package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/errs"
	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/provider"
	"github.com/nidhogg/agent-memory/internal/queue"
	"github.com/nidhogg/agent-memory/internal/signal"
)

const maxAttempts = 3

// Consumer is C5: it drains the queue and drives each envelope through
// embed → vector upsert → relational insert, retrying transient failures
// with exponential backoff before giving the message back to the queue.
type Consumer struct {
	queue       Queue
	vectors     VectorStore
	store       MemoryStore
	gateway     *provider.Gateway
	logs        *signal.Logger
	collection  string
	consumerID  string
	callTimeout time.Duration
	logger      *zap.Logger
}

// Config parameterizes a Consumer.
type Config struct {
	Collection  string
	ConsumerID  string
	CallTimeout time.Duration
}

// New creates a Consumer over the given dependencies.
func New(q Queue, vectors VectorStore, st MemoryStore, gw *provider.Gateway, logs *signal.Logger, cfg Config, logger *zap.Logger) *Consumer {
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	consumerID := cfg.ConsumerID
	if consumerID == "" {
		consumerID = "consumer-1"
	}
	return &Consumer{
		queue:       q,
		vectors:     vectors,
		store:       st,
		gateway:     gw,
		logs:        logs,
		collection:  cfg.Collection,
		consumerID:  consumerID,
		callTimeout: timeout,
		logger:      logger,
	}
}

// RunOnce drains one batch (including reclaimed stale deliveries) and
// processes each message to completion or exhaustion. It's meant to be
// called in a loop by the caller (cmd/memoryd's consumer goroutine).
func (c *Consumer) RunOnce(ctx context.Context, batchSize int64, block time.Duration) (int, error) {
	reclaimed, err := c.queue.Reclaim(ctx, c.consumerID, 30*time.Second, batchSize)
	if err != nil {
		c.logger.Warn("reclaim failed", zap.Error(err))
	}

	msgs, err := c.queue.Consume(ctx, c.consumerID, batchSize, block)
	if err != nil {
		return 0, err
	}
	msgs = append(reclaimed, msgs...)

	processed := 0
	for _, m := range msgs {
		c.process(ctx, m)
		processed++
	}
	return processed, nil
}

func (c *Consumer) process(ctx context.Context, msg queue.Message) {
	// Assigned once, before the retry loop: step 1 of §4.1 happens exactly
	// once per message so every retry of steps 2-4 upserts/inserts under
	// the same id, making the vector upsert and relational insert
	// idempotent on retry instead of minting orphaned duplicates.
	id := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		lastErr = c.attempt(callCtx, id, msg.Envelope)
		cancel()

		if lastErr == nil {
			if err := c.queue.Ack(ctx, msg.ID); err != nil {
				c.logger.Warn("ack failed", zap.String("message_id", msg.ID), zap.Error(err))
			}
			return
		}
		// Only a permanent/invalid-input classification stops the retry
		// loop early; anything else (including unclassified store and
		// network errors) is treated as transient per §4.1 step 5.
		if errs.Is(lastErr, errs.ErrPermanentBackend) || errs.Is(lastErr, errs.ErrInvalidInput) {
			break
		}
	}

	c.logger.Error("ingestion attempt exhausted, leaving for redelivery",
		zap.String("message_id", msg.ID), zap.Error(lastErr))
	if c.logs != nil {
		c.logs.Error(nowMillis(), "ingestion failed after retries: "+lastErr.Error())
	}
	// Deliberately not acked: it stays pending until Reclaim picks it up
	// again, or the queue's own dead-lettering takes over.
}

func (c *Consumer) attempt(ctx context.Context, id string, env model.Envelope) error {
	vec, err := c.gateway.GenerateEmbeddings(ctx, env.Text, provider.EmbeddingOptions{Provider: provider.KindEdge})
	if err != nil {
		return err
	}

	meta := model.VectorMetadata{
		CreatedAt:    env.Timestamp,
		PrimaryTag:   model.PrimaryTag(env.ContextTags),
		PriorityRank: model.PriorityRank(model.StatusRaw),
	}
	if err := c.vectors.Upsert(ctx, c.collection, id, vec, meta); err != nil {
		return err
	}

	if _, err := c.store.Insert(ctx, id, env); err != nil {
		// Re-inserting the same id after a partial retry does not fail:
		// the store's insert is ON CONFLICT DO NOTHING, which gives §4.1's
		// at-least-once note. Any error here is surfaced for the retry loop.
		return err
	}

	if c.logs != nil {
		c.logs.Success(nowMillis(), "ingested memory "+id)
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
