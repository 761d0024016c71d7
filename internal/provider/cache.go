package provider

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
)

// embeddingCache memoizes generate_embeddings results keyed on
// provider+model+text. Embeddings are deterministic for a fixed model, so a
// process-local cache saves a network or CPU round trip on repeated text
// (notably the curator re-embedding a memory's text that the consumer
// already embedded). Only exactly identical text hits the cache.
type embeddingCache struct {
	c *ristretto.Cache
}

func newEmbeddingCache() (*embeddingCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &embeddingCache{c: c}, nil
}

func embeddingCacheKey(provider Kind, model, text string) string {
	h := sha256.Sum256([]byte(string(provider) + "|" + model + "|" + text))
	return hex.EncodeToString(h[:])
}

func (e *embeddingCache) get(key string) ([]float32, bool) {
	v, ok := e.c.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (e *embeddingCache) set(key string, vec []float32) {
	e.c.Set(key, vec, int64(len(vec)*4))
	// Set is buffered; Wait makes the entry visible to the next get.
	e.c.Wait()
}
