package provider

import "testing"

func TestEmbeddingCacheKeyDeterministic(t *testing.T) {
	a := embeddingCacheKey(KindEdge, "bge-small", "hello world")
	b := embeddingCacheKey(KindEdge, "bge-small", "hello world")
	if a != b {
		t.Fatal("expected identical keys for identical inputs")
	}
}

func TestEmbeddingCacheKeyDistinguishesInputs(t *testing.T) {
	base := embeddingCacheKey(KindEdge, "bge-small", "hello world")
	variants := []string{
		embeddingCacheKey(KindOpenAI, "bge-small", "hello world"),
		embeddingCacheKey(KindEdge, "other-model", "hello world"),
		embeddingCacheKey(KindEdge, "bge-small", "goodbye world"),
	}
	for _, v := range variants {
		if v == base {
			t.Fatalf("expected distinct key, got collision: %q", v)
		}
	}
}

func TestEmbeddingCacheGetSet(t *testing.T) {
	c, err := newEmbeddingCache()
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := embeddingCacheKey(KindEdge, "bge-small", "hello world")

	if _, ok := c.get(key); ok {
		t.Fatal("expected cache miss before set")
	}

	vec := []float32{1, 2, 3}
	c.set(key, vec)
	c.c.Wait()

	got, ok := c.get(key)
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if len(got) != len(vec) {
		t.Fatalf("expected %d dims, got %d", len(vec), len(got))
	}
}
