// Package signal implements the process-local operational log of §4.5: a
// bounded ring buffer that every component appends to, fanned out live to
// subscribers (the SSE handler behind GET /api/sse/logs).
//
// Adapted from the teacher's gateway.Broadcaster (internal/gateway/broadcast.go),
// which appended to an in-memory history and pushed to platform adapters;
// here the "platforms" are subscriber channels instead of Slack/Discord.
package signal

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type categorizes a log entry.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeProcess Type = "process"
	TypeError   Type = "error"
)

// Entry is a single operational event.
type Entry struct {
	ID        string `json:"id"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Type      Type   `json:"type"`
	Message   string `json:"message"`
}

const ringCapacity = 50

// Logger is the only in-process mutable global per §5's shared-resource
// policy: writes are serialized under mu, reads are snapshots.
type Logger struct {
	mu          sync.Mutex
	ring        []Entry
	nextSeq     uint64
	subscribers map[string]chan Entry
	logger      *zap.Logger
}

// New creates an empty Logger.
func New(logger *zap.Logger) *Logger {
	return &Logger{
		ring:        make([]Entry, 0, ringCapacity),
		subscribers: make(map[string]chan Entry),
		logger:      logger,
	}
}

// Append records an event and fans it out to live subscribers. ts is an
// epoch-millis timestamp supplied by the caller (components already have
// one from their own now_ms() call; the logger itself stays a pure function
// of its inputs, with no hidden clock dependency).
func (l *Logger) Append(ts int64, typ Type, message string) Entry {
	l.mu.Lock()
	e := Entry{
		ID:        uuid.New().String(),
		Seq:       l.nextSeq,
		Timestamp: ts,
		Type:      typ,
		Message:   message,
	}
	l.nextSeq++
	l.ring = append(l.ring, e)
	if len(l.ring) > ringCapacity {
		l.ring = l.ring[len(l.ring)-ringCapacity:]
	}
	subs := make([]chan Entry, 0, len(l.subscribers))
	for _, ch := range l.subscribers {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber; drop rather than block the writer.
		}
	}

	if l.logger != nil {
		switch typ {
		case TypeError:
			l.logger.Error(message, zap.Uint64("signal_seq", e.Seq))
		default:
			l.logger.Debug(message, zap.String("signal_type", string(typ)), zap.Uint64("signal_seq", e.Seq))
		}
	}
	return e
}

func (l *Logger) Info(ts int64, message string) Entry    { return l.Append(ts, TypeInfo, message) }
func (l *Logger) Success(ts int64, message string) Entry { return l.Append(ts, TypeSuccess, message) }
func (l *Logger) Process(ts int64, message string) Entry { return l.Append(ts, TypeProcess, message) }
func (l *Logger) Error(ts int64, message string) Entry   { return l.Append(ts, TypeError, message) }

// Tail returns a snapshot of the current ring, oldest first.
func (l *Logger) Tail() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.ring))
	copy(out, l.ring)
	return out
}

// Subscribe registers a new live-tail channel and returns it plus an
// unsubscribe function. The channel receives the current tail's contents
// are NOT replayed here; callers should call Tail() first, then Subscribe,
// to get "current tail then live appends" per §4.5.
func (l *Logger) Subscribe() (<-chan Entry, func()) {
	id := uuid.New().String()
	ch := make(chan Entry, ringCapacity)

	l.mu.Lock()
	l.subscribers[id] = ch
	l.mu.Unlock()

	unsubscribe := func() {
		l.mu.Lock()
		if sub, ok := l.subscribers[id]; ok {
			delete(l.subscribers, id)
			close(sub)
		}
		l.mu.Unlock()
	}
	return ch, unsubscribe
}
