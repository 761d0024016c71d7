// Package ingestion implements the two halves of the ingestion pipeline
// (§4.1): the front door that accepts a memory and acks immediately, and
// the consumer that does the actual embedding and dual-write off the
// request path.
package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/agent-memory/internal/errs"
	"github.com/nidhogg/agent-memory/internal/model"
)

// FrontDoor is C4: it validates, stamps, and enqueues, never touching the
// vector or relational stores itself.
type FrontDoor struct {
	queue Queue
}

// NewFrontDoor wires a FrontDoor to its outbound queue.
func NewFrontDoor(q Queue) *FrontDoor {
	return &FrontDoor{queue: q}
}

// SubmitInput is the caller-supplied half of an envelope; Timestamp and
// Version are assigned by Submit.
type SubmitInput struct {
	Text        string
	ContextTags []string
	SourceApp   string
	SessionID   string
}

// Submit validates the input, stamps it, and publishes it to the queue.
// It returns as soon as the publish acks; it never embeds or writes to a
// store inline (that's the consumer's job).
func (f *FrontDoor) Submit(ctx context.Context, in SubmitInput, nowMillis int64) error {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return fmt.Errorf("text is required: %w", errs.ErrInvalidInput)
	}

	env := model.Envelope{
		Version:     model.EnvelopeVersion,
		Text:        text,
		ContextTags: in.ContextTags,
		Timestamp:   nowMillis,
		SourceApp:   in.SourceApp,
		SessionID:   in.SessionID,
	}
	if err := f.queue.Publish(ctx, env); err != nil {
		return fmt.Errorf("submit memory: %w", err)
	}
	return nil
}
