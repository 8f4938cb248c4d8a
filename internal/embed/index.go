package embed

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledgersmith/cellflow/internal/ontology"
)

// categoryVector is one category's unit-normalized representative vector.
type categoryVector struct {
	categoryID string
	vector     []float32
}

// Index holds precomputed category exemplar vectors. Built once at ontology
// load time, then read-only.
type Index struct {
	vectors []categoryVector
}

// NewIndex embeds each category's exemplar phrases and stores their mean as
// the category's representative vector. Categories without exemplars fall
// back to the display name.
func NewIndex(ctx context.Context, ont *ontology.Ontology, embedder Embedder) (*Index, error) {
	idx := &Index{}

	for _, cat := range ont.Categories() {
		phrases := cat.Exemplars
		if len(phrases) == 0 {
			phrases = []string{cat.DisplayName}
		}

		var sum []float32
		for _, phrase := range phrases {
			vec, err := embedder.Embed(ctx, strings.TrimSpace(phrase))
			if err != nil {
				return nil, fmt.Errorf("failed to embed exemplar %q for category %s: %w", phrase, cat.ID, err)
			}
			if sum == nil {
				sum = make([]float32, len(vec))
			}
			if len(vec) != len(sum) {
				return nil, fmt.Errorf("embedding dimension mismatch for category %s", cat.ID)
			}
			for i, v := range vec {
				sum[i] += v
			}
		}

		normalize(sum)
		idx.vectors = append(idx.vectors, categoryVector{categoryID: cat.ID, vector: sum})
	}

	return idx, nil
}

// Scored is one similarity search result.
type Scored struct {
	CategoryID string
	Similarity float64
}

// Search ranks all categories by cosine similarity to the query vector and
// returns the top K.
func (idx *Index) Search(query []float32, topK int) []Scored {
	if topK <= 0 || len(query) == 0 {
		return nil
	}

	results := make([]Scored, 0, len(idx.vectors))
	for _, cv := range idx.vectors {
		results = append(results, Scored{
			CategoryID: cv.categoryID,
			Similarity: cosineSimilarity(query, cv.vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].CategoryID < results[j].CategoryID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched dimensions or zero vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalize scales a vector to unit length in place.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
