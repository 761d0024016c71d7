// Package queue implements the ingestion topic over Redis Streams,
// adapted from the teacher's MessageBus (internal/orchestrator/messaging.go).
// Unlike the teacher's tail-following XRead, this uses a consumer group so
// messages are acknowledged explicitly and can be reclaimed after a
// crashed consumer, giving the at-least-once semantics §5 requires.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/model"
)

// Queue is a single Redis Stream with one consumer group.
type Queue struct {
	rdb    *redis.Client
	stream string
	group  string
	logger *zap.Logger
}

// New dials Redis and returns a Queue bound to stream/group. Call
// EnsureGroup once at startup before Consume.
func New(redisURL, stream, group string, logger *zap.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Queue{rdb: rdb, stream: stream, group: group, logger: logger}, nil
}

// EnsureGroup creates the stream and consumer group if they don't exist.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("create consumer group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Message is a dequeued envelope paired with the stream id used to ack it.
type Message struct {
	ID       string
	Envelope model.Envelope
}

// Publish appends an envelope to the stream. The ingestion front door calls
// this and returns immediately; it never waits on a consumer.
func (q *Queue) Publish(ctx context.Context, env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	_, err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", q.stream, err)
	}
	return nil
}

// Consume reads up to count new messages for consumerName, blocking up to
// block for at least one. It never blocks past ctx's deadline.
func (q *Queue) Consume(ctx context.Context, consumerName string, count int64, block time.Duration) ([]Message, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("consume from %s: %w", q.stream, err)
	}
	return decodeStreams(res), nil
}

// Reclaim takes ownership of messages idle longer than minIdle (delivered
// to a consumer that crashed before acking) and hands them to
// consumerName for another attempt.
func (q *Queue) Reclaim(ctx context.Context, consumerName string, minIdle time.Duration, count int64) ([]Message, error) {
	pending, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("list pending on %s: %w", q.stream, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	msgs, err := q.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumerName,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim pending on %s: %w", q.stream, err)
	}
	return decodeMessages(msgs), nil
}

// Ack acknowledges successful processing of a message.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := q.rdb.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		return fmt.Errorf("ack %s on %s: %w", id, q.stream, err)
	}
	return nil
}

func decodeStreams(res []redis.XStream) []Message {
	var out []Message
	for _, r := range res {
		out = append(out, decodeMessages(r.Messages)...)
	}
	return out
}

func decodeMessages(raw []redis.XMessage) []Message {
	var out []Message
	for _, m := range raw {
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var env model.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			continue
		}
		out = append(out, Message{ID: m.ID, Envelope: env})
	}
	return out
}

// Close shuts down the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}
