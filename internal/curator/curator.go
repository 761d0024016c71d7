// Package curator implements C7: a scheduled (and manually triggerable)
// consolidation pass over raw memories, adapted from the teacher's
// world.Heartbeat ticker/FireNow pattern (internal/world/heartbeat.go).
package curator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/provider"
	"github.com/nidhogg/agent-memory/internal/retrieval"
	"github.com/nidhogg/agent-memory/internal/signal"
)

// Config parameterizes a Curator invocation, mirroring the constants of
// §4.3: batch size W, near-duplicate threshold T, and cap K.
type Config struct {
	Interval            time.Duration
	BatchSize           int
	SimilarTopK         int
	SimilarityThreshold float64
	MaxConsolidations   int
	RunDeadline         time.Duration
}

// Curator is C7.
type Curator struct {
	store   MemoryStore
	vectors VectorStore
	gateway *provider.Gateway
	logs    *signal.Logger
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// New creates a Curator over the given dependencies.
func New(st MemoryStore, vectors VectorStore, gw *provider.Gateway, logs *signal.Logger, cfg Config, logger *zap.Logger) *Curator {
	if cfg.SimilarTopK <= 0 {
		cfg.SimilarTopK = 3
	}
	return &Curator{store: st, vectors: vectors, gateway: gw, logs: logs, cfg: cfg, logger: logger}
}

// OnTick fires a run if cfg.Interval has elapsed since the last one. It's
// meant to be driven by a time.Ticker in cmd/memoryd.
func (c *Curator) OnTick(ctx context.Context, now time.Time) {
	c.mu.Lock()
	if !c.lastRun.IsZero() && now.Sub(c.lastRun) < c.cfg.Interval {
		c.mu.Unlock()
		return
	}
	c.lastRun = now
	c.mu.Unlock()

	c.Run(ctx)
}

// FireNow runs a consolidation pass immediately, bypassing the interval
// check (used by the manual POST /trigger-curator route).
func (c *Curator) FireNow(ctx context.Context) Summary {
	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()
	return c.Run(ctx)
}

// Summary reports what a single run accomplished.
type Summary struct {
	Candidates     int
	Consolidations int
	Processed      int
	Failures       int
}

// Run executes the algorithm of §4.3 to exhaustion of one W-sized batch,
// capped at K consolidations, within its own deadline.
func (c *Curator) Run(ctx context.Context) Summary {
	deadline := c.cfg.RunDeadline
	if deadline == 0 {
		deadline = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var summary Summary

	candidates, err := c.store.ListRawCandidates(runCtx, c.cfg.BatchSize)
	if err != nil {
		c.logger.Error("curator: list candidates failed", zap.Error(err))
		return summary
	}
	summary.Candidates = len(candidates)

	for _, m := range candidates {
		if runCtx.Err() != nil {
			c.logger.Info("curator: deadline reached, stopping batch early")
			break
		}
		if summary.Consolidations >= c.cfg.MaxConsolidations {
			c.logger.Info("curator: consolidation cap reached", zap.Int("cap", c.cfg.MaxConsolidations))
			break
		}

		consolidated, err := c.processCandidate(runCtx, m)
		if err != nil {
			summary.Failures++
			c.logger.Warn("curator: candidate failed", zap.String("id", m.ID), zap.Error(err))
			if c.logs != nil {
				c.logs.Error(time.Now().UnixMilli(), fmt.Sprintf("curator failed on %s: %v", m.ID, err))
			}
			continue
		}
		if consolidated {
			summary.Consolidations++
		} else {
			summary.Processed++
		}
	}

	if c.logs != nil {
		c.logs.Info(time.Now().UnixMilli(), fmt.Sprintf(
			"curator run: %d candidates, %d consolidated, %d processed, %d failed",
			summary.Candidates, summary.Consolidations, summary.Processed, summary.Failures))
	}
	return summary
}

// processCandidate runs one iteration of the §4.3 loop body. It returns
// true if the candidate was consolidated with duplicates, false if it was
// simply marked processed.
func (c *Curator) processCandidate(ctx context.Context, m model.Memory) (bool, error) {
	vec, err := c.gateway.GenerateEmbeddings(ctx, m.Text, provider.EmbeddingOptions{Provider: provider.KindEdge})
	if err != nil {
		return false, fmt.Errorf("embed candidate: %w", err)
	}

	similar, err := c.vectors.Query(ctx, retrieval.Collection, vec, uint64(c.cfg.SimilarTopK))
	if err != nil {
		return false, fmt.Errorf("similarity query: %w", err)
	}

	threshold := c.cfg.SimilarityThreshold
	var dupIDs []string
	for _, s := range similar {
		if s.ID != m.ID && float64(s.Score) > threshold {
			dupIDs = append(dupIDs, s.ID)
		}
	}

	now := time.Now().UnixMilli()

	if len(dupIDs) == 0 {
		if err := c.store.UpdateTextAndStatus(ctx, m.ID, m.Text, m.Tags, model.StatusProcessed, now); err != nil {
			return false, fmt.Errorf("mark processed: %w", err)
		}
		return false, nil
	}

	dups, err := c.store.GetByIDs(ctx, dupIDs)
	if err != nil {
		return false, fmt.Errorf("hydrate duplicates: %w", err)
	}

	var combined strings.Builder
	combined.WriteString(m.Text)
	for _, d := range dups {
		combined.WriteString("\n---\n")
		combined.WriteString(d.Text)
	}

	consolidatedText, err := c.gateway.GenerateText(ctx, consolidationPrompt(combined.String()),
		"You are a memory curator. Merge these memories accurately.",
		provider.TextOptions{Provider: provider.KindEdge})
	if err != nil {
		return false, fmt.Errorf("consolidate: %w", err)
	}

	if err := c.store.UpdateTextAndStatus(ctx, m.ID, consolidatedText, m.Tags, model.StatusConsolidated, now); err != nil {
		return false, fmt.Errorf("update consolidated: %w", err)
	}

	consolidatedVec, err := c.gateway.GenerateEmbeddings(ctx, consolidatedText, provider.EmbeddingOptions{Provider: provider.KindEdge})
	if err != nil {
		return false, fmt.Errorf("embed consolidated: %w", err)
	}
	meta := model.VectorMetadata{
		CreatedAt:    m.CreatedAt,
		PrimaryTag:   "consolidated",
		PriorityRank: model.PriorityRank(model.StatusConsolidated),
	}
	if err := c.vectors.Upsert(ctx, retrieval.Collection, m.ID, consolidatedVec, meta); err != nil {
		return false, fmt.Errorf("upsert consolidated: %w", err)
	}

	// Deleting duplicates last means a crash after the merge but before
	// cleanup is self-healing: the next run re-detects and re-deletes them.
	for _, id := range dupIDs {
		if err := c.store.Delete(ctx, id); err != nil {
			c.logger.Warn("curator: delete duplicate row failed", zap.String("id", id), zap.Error(err))
		}
		if err := c.vectors.DeleteByID(ctx, retrieval.Collection, id); err != nil {
			c.logger.Warn("curator: delete duplicate point failed", zap.String("id", id), zap.Error(err))
		}
	}

	return true, nil
}

func consolidationPrompt(combined string) string {
	return "Merge the following related memories into a single, accurate, deduplicated memory:\n\n" + combined
}
