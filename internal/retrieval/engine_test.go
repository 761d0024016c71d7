package retrieval

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/provider"
)

// fakeVectorStore returns a fixed set of matches regardless of the query
// vector, so Engine.Search's merge/sort logic can be exercised without a
// live Qdrant connection.
type fakeVectorStore struct {
	matches []model.VectorMatch
}

func (v *fakeVectorStore) Query(context.Context, string, []float32, uint64) ([]model.VectorMatch, error) {
	return v.matches, nil
}

// fakeMemoryStore hydrates from an in-memory row set and drops ids with
// no corresponding row, modeling a vector/relational orphan.
type fakeMemoryStore struct {
	rows map[string]model.Memory
}

func (s *fakeMemoryStore) GetByIDs(_ context.Context, ids []string) ([]model.Memory, error) {
	var out []model.Memory
	for _, id := range ids {
		if m, ok := s.rows[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type stubEmbedBackend struct{}

func (stubEmbedBackend) Kind() provider.Kind { return provider.KindEdge }
func (stubEmbedBackend) GenerateText(context.Context, string, string, provider.TextOptions) (string, error) {
	return "rewritten query", nil
}
func (stubEmbedBackend) GenerateStructured(context.Context, string, provider.StructuredOptions) (string, error) {
	return "", nil
}
func (stubEmbedBackend) GenerateEmbeddings(context.Context, string, provider.EmbeddingOptions) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (stubEmbedBackend) SupportsNativeStructured() bool { return false }

func newTestEngine(t *testing.T, vectors *fakeVectorStore, st *fakeMemoryStore) *Engine {
	t.Helper()
	gw, err := provider.NewGateway(zap.NewNop())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	gw.Register(stubEmbedBackend{})
	return New(vectors, st, gw, zap.NewNop())
}

// TestSearchDropsOrphansAndSortsByScoreThenCreatedAt exercises §4.2.1's
// merge contract: vector matches with no hydrated row are dropped, and
// the remainder sort by score descending with created_at descending as
// the tie-break.
func TestSearchDropsOrphansAndSortsByScoreThenCreatedAt(t *testing.T) {
	vectors := &fakeVectorStore{matches: []model.VectorMatch{
		{ID: "low", Score: 0.5},
		{ID: "orphan", Score: 0.99},
		{ID: "tie-old", Score: 0.8},
		{ID: "tie-new", Score: 0.8},
		{ID: "high", Score: 0.9},
	}}
	st := &fakeMemoryStore{rows: map[string]model.Memory{
		"low":     {ID: "low", Text: "low", CreatedAt: 100},
		"tie-old": {ID: "tie-old", Text: "tie-old", CreatedAt: 100},
		"tie-new": {ID: "tie-new", Text: "tie-new", CreatedAt: 200},
		"high":    {ID: "high", Text: "high", CreatedAt: 100},
	}}

	e := newTestEngine(t, vectors, st)
	results, err := e.Search(context.Background(), "query", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected orphan dropped, got %d results: %+v", len(results), results)
	}

	order := make([]string, len(results))
	for i, r := range results {
		order[i] = r.Memory.ID
	}
	want := []string{"high", "tie-new", "tie-old", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order: got %v, want %v", order, want)
		}
	}
}

// TestRewrittenSearchPreservesInputOrder exercises §4.2.2's fan-out
// contract: results are aligned with the input query order regardless of
// fan-out completion order.
func TestRewrittenSearchPreservesInputOrder(t *testing.T) {
	vectors := &fakeVectorStore{matches: []model.VectorMatch{{ID: "m1", Score: 1.0}}}
	st := &fakeMemoryStore{rows: map[string]model.Memory{}}
	e := newTestEngine(t, vectors, st)

	queries := []RewrittenQuery{{Query: "coffee habits"}, {Query: "typescript"}, {Query: "deploy pipeline"}}
	results := e.RewrittenSearch(context.Background(), queries, 3, provider.TextOptions{Provider: provider.KindEdge})

	if len(results) != len(queries) {
		t.Fatalf("expected %d results, got %d", len(queries), len(results))
	}
	for i, q := range queries {
		if results[i].OriginalQuery != q.Query {
			t.Fatalf("result[%d].OriginalQuery = %q, want %q", i, results[i].OriginalQuery, q.Query)
		}
		if results[i].RewrittenQuery == "" {
			t.Fatalf("result[%d].RewrittenQuery is empty", i)
		}
	}
}

// TestRewrittenSearchZeroQueries exercises the §8 boundary behavior:
// zero queries yields an empty result list.
func TestRewrittenSearchZeroQueries(t *testing.T) {
	e := newTestEngine(t, &fakeVectorStore{}, &fakeMemoryStore{rows: map[string]model.Memory{}})
	results := e.RewrittenSearch(context.Background(), nil, 3, provider.TextOptions{Provider: provider.KindEdge})
	if len(results) != 0 {
		t.Fatalf("expected empty result list, got %v", results)
	}
}
