package curator

import (
	"context"
	"sync"

	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/provider"
)

// fakeVectorStore is an in-memory stand-in for *vectorstore.Client: points
// keyed by id, with a record of every call so tests can assert ordering.
type fakeVectorStore struct {
	mu      sync.Mutex
	points  map[string][]float32
	calls   []string
	deleted []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string][]float32)}
}

func (v *fakeVectorStore) Upsert(_ context.Context, _ string, id string, vec []float32, _ model.VectorMetadata) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "upsert:"+id)
	v.points[id] = vec
	return nil
}

// Query returns a match for every stored point, each scored 0.95 and
// capped at topK, so every other stored id looks like a near-duplicate
// of the candidate under any threshold below 0.95.
func (v *fakeVectorStore) Query(_ context.Context, _ string, _ []float32, topK uint64) ([]model.VectorMatch, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	matches := make([]model.VectorMatch, 0, len(v.points))
	for id := range v.points {
		matches = append(matches, model.VectorMatch{ID: id, Score: 0.95})
	}
	if uint64(len(matches)) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (v *fakeVectorStore) DeleteByID(_ context.Context, _ string, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, "delete:"+id)
	v.deleted = append(v.deleted, id)
	delete(v.points, id)
	return nil
}

// fakeMemoryStore is an in-memory stand-in for *store.Store.
type fakeMemoryStore struct {
	mu      sync.Mutex
	rows    map[string]model.Memory
	calls   []string
	deleted []string
}

func newFakeMemoryStore(rows ...model.Memory) *fakeMemoryStore {
	s := &fakeMemoryStore{rows: make(map[string]model.Memory)}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *fakeMemoryStore) ListRawCandidates(_ context.Context, limit int) ([]model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Memory
	for _, m := range s.rows {
		if m.Status == model.StatusRaw {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMemoryStore) GetByIDs(_ context.Context, ids []string) ([]model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Memory
	for _, id := range ids {
		if m, ok := s.rows[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMemoryStore) UpdateTextAndStatus(_ context.Context, id, text string, tags []string, status model.Status, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "update:"+id)
	m, ok := s.rows[id]
	if !ok {
		return nil
	}
	m.Text = text
	m.Tags = tags
	m.Status = status
	m.UpdatedAt = updatedAt
	s.rows[id] = m
	return nil
}

func (s *fakeMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete:"+id)
	s.deleted = append(s.deleted, id)
	delete(s.rows, id)
	return nil
}

// stubCuratorBackend answers embeddings with a fixed vector and text
// generation with a fixed merge string, so the curator can be exercised
// without a live model endpoint.
type stubCuratorBackend struct{}

func (stubCuratorBackend) Kind() provider.Kind { return provider.KindEdge }

func (stubCuratorBackend) GenerateText(_ context.Context, prompt, _ string, _ provider.TextOptions) (string, error) {
	return "merged memory", nil
}

func (stubCuratorBackend) GenerateStructured(context.Context, string, provider.StructuredOptions) (string, error) {
	return "", nil
}

func (stubCuratorBackend) GenerateEmbeddings(context.Context, string, provider.EmbeddingOptions) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (stubCuratorBackend) SupportsNativeStructured() bool { return false }
