// Package retrieval implements C6: basic search and AI-rewritten search,
// both sharing the embed -> vector_query -> hydrate -> merge tail.
// Adapted from the teacher's RAG Orchestrator (internal/rag/rag.go), which
// embedded a query and searched Qdrant collections directly; here the tail
// also hydrates rows from the relational store and merges by id.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/provider"
)

// Collection is the single Qdrant collection all memories are indexed
// into (§6: dimensionality fixed at creation).
const Collection = "memories"

const defaultLimit = 10

// Engine is C6.
type Engine struct {
	vectors VectorStore
	store   MemoryStore
	gateway *provider.Gateway
	logger  *zap.Logger
}

// New creates a retrieval Engine.
func New(vectors VectorStore, st MemoryStore, gw *provider.Gateway, logger *zap.Logger) *Engine {
	return &Engine{vectors: vectors, store: st, gateway: gw, logger: logger}
}

// Result is a single basic-search hit: a hydrated memory plus its
// similarity score.
type Result struct {
	Memory model.Memory
	Score  float32
}

// Search runs §4.2.1: embed the query, take the top-`limit` vector
// matches, hydrate the corresponding rows, and drop any orphaned ids
// (vector match with no relational row).
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	vec, err := e.gateway.GenerateEmbeddings(ctx, query, provider.EmbeddingOptions{Provider: provider.KindEdge})
	if err != nil {
		return nil, fmt.Errorf("search embed: %w", err)
	}

	matches, err := e.vectors.Query(ctx, Collection, vec, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("search vector query: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	rows, err := e.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search hydrate: %w", err)
	}
	byID := make(map[string]model.Memory, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		row, ok := byID[m.ID]
		if !ok {
			continue
		}
		results = append(results, Result{Memory: row, Score: m.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt > results[j].Memory.CreatedAt
	})
	return results, nil
}

// RewrittenQuery is one input to RewrittenSearch.
type RewrittenQuery struct {
	Query   string
	Context *provider.RewriteContext
}

// RewrittenResult is the output of a single query's rewrite-and-search
// pipeline, order-aligned with the corresponding RewrittenQuery input.
type RewrittenResult struct {
	OriginalQuery  string
	RewrittenQuery string
	Matches        []model.VectorMatch
}

// RewrittenSearch runs §4.2.2: for each query, rewrite then embed then
// vector-query, in parallel bounded by the number of queries. A failure
// at any step falls back to searching with the original query text; a
// second failure yields an empty match list rather than aborting the
// batch.
func (e *Engine) RewrittenSearch(ctx context.Context, queries []RewrittenQuery, topK int, opts provider.TextOptions) []RewrittenResult {
	if topK <= 0 {
		topK = defaultLimit
	}

	return runBounded(len(queries), len(queries), func(i int) RewrittenResult {
		q := queries[i]
		if res, ok := e.tryRewrittenSearch(ctx, q, topK, opts); ok {
			return res
		}
		if res, ok := e.trySearchAsIs(ctx, q.Query, topK); ok {
			return res
		}
		return RewrittenResult{OriginalQuery: q.Query, RewrittenQuery: q.Query, Matches: []model.VectorMatch{}}
	})
}

func (e *Engine) tryRewrittenSearch(ctx context.Context, q RewrittenQuery, topK int, opts provider.TextOptions) (RewrittenResult, bool) {
	rewritten, err := e.gateway.RewriteQuestionForMCP(ctx, q.Query, q.Context, opts)
	if err != nil {
		e.logger.Warn("rewrite failed, falling back to original query", zap.String("query", q.Query), zap.Error(err))
		return RewrittenResult{}, false
	}

	vec, err := e.gateway.GenerateEmbeddings(ctx, rewritten, provider.EmbeddingOptions{Provider: provider.KindEdge})
	if err != nil {
		e.logger.Warn("embed of rewritten query failed", zap.String("query", q.Query), zap.Error(err))
		return RewrittenResult{}, false
	}

	matches, err := e.vectors.Query(ctx, Collection, vec, uint64(topK))
	if err != nil {
		e.logger.Warn("vector query failed for rewritten query", zap.String("query", q.Query), zap.Error(err))
		return RewrittenResult{}, false
	}
	return RewrittenResult{OriginalQuery: q.Query, RewrittenQuery: rewritten, Matches: matches}, true
}

func (e *Engine) trySearchAsIs(ctx context.Context, query string, topK int) (RewrittenResult, bool) {
	vec, err := e.gateway.GenerateEmbeddings(ctx, query, provider.EmbeddingOptions{Provider: provider.KindEdge})
	if err != nil {
		return RewrittenResult{}, false
	}
	matches, err := e.vectors.Query(ctx, Collection, vec, uint64(topK))
	if err != nil {
		return RewrittenResult{}, false
	}
	return RewrittenResult{OriginalQuery: query, RewrittenQuery: query, Matches: matches}, true
}
