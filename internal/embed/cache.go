package embed

import (
	"context"
	"sync"
)

// vectorCache memoizes embeddings by normalized label so duplicate labels
// within a run hit the external service once. Lock-free get-or-compute:
// concurrent computations for the same key may race and both call the
// embedder; the results are identical and the duplicate work is accepted.
type vectorCache struct {
	entries sync.Map // string -> []float32
}

func newVectorCache() *vectorCache {
	return &vectorCache{}
}

// getOrCompute returns the cached vector for key, computing and storing it on
// a miss. Errors are not cached; a failed computation leaves the key absent.
func (c *vectorCache) getOrCompute(ctx context.Context, key string, embedder Embedder, text string) ([]float32, error) {
	if v, ok := c.entries.Load(key); ok {
		return v.([]float32), nil
	}

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.entries.Store(key, vec)
	return vec, nil
}

// size returns the number of cached vectors.
func (c *vectorCache) size() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
