package retrieval

import (
	"math"
	"sort"
	"time"
)

// #region index

// Index is an immutable knowledge-base snapshot: chunks, their vectors, and the
// fingerprint and embedder identity they were built from.
type Index struct {
	fingerprint string
	embedder    string
	dimension   int
	builtAt     time.Time
	chunks      []PolicyChunk
}

// NewIndex validates that every chunk has a vector of the same dimension.
func NewIndex(fingerprint, embedder string, builtAt time.Time, chunks []PolicyChunk) (*Index, error) {
	dim := 0
	for i, c := range chunks {
		if i == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) == 0 || len(c.Embedding) != dim {
			return nil, ErrDimension
		}
	}
	return &Index{
		fingerprint: fingerprint,
		embedder:    embedder,
		dimension:   dim,
		builtAt:     builtAt.UTC(),
		chunks:      chunks,
	}, nil
}

// Fingerprint returns the source manifest digest.
func (idx *Index) Fingerprint() string { return idx.fingerprint }

// Embedder returns the identity of the embedding function that built the index.
func (idx *Index) Embedder() string { return idx.embedder }

// Dimension returns the vector width.
func (idx *Index) Dimension() int { return idx.dimension }

// BuiltAt returns when the vectors were computed.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Len returns the number of chunks.
func (idx *Index) Len() int { return len(idx.chunks) }

// Chunks returns a copy of the chunk slice header; callers must not mutate elements.
func (idx *Index) Chunks() []PolicyChunk {
	out := make([]PolicyChunk, len(idx.chunks))
	copy(out, idx.chunks)
	return out
}

// #endregion index

// #region search

// search scores every chunk against a unit-length query, keeps scores >= minScore,
// ranks by score descending then chunk id ascending, and returns at most k.
func (idx *Index) search(query []float32, k int, minScore float32) []Scored {
	var scored []Scored
	seen := make(map[string]bool, len(idx.chunks))
	for _, c := range idx.chunks {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		s := dot(query, c.Embedding)
		// NaN compares false both ways and would break the ordering.
		if math.IsNaN(float64(s)) || s < minScore {
			continue
		}
		scored = append(scored, Scored{Chunk: c, Score: s})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// #endregion search

// #region vector-math

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// finite reports whether every component of v is a real number.
func finite(v []float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

// normalize returns v scaled to unit length. A zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// #endregion vector-math
