package retrieval

import (
	"context"
	"errors"
	"time"
)

// #region config

// Config holds the chunking and embedding parameters of the knowledge base.
type Config struct {
	Dir              string        // directory of policy documents
	ChunkSize        int           // window length in runes
	ChunkOverlap     int           // overlap between consecutive windows, < ChunkSize
	EmbedConcurrency int           // max parallel embedding calls during build
	EmbedTimeout     time.Duration // per-chunk embedding timeout
}

// DefaultConfig returns the 1000/200 rune windowing used for policy PDFs.
func DefaultConfig() Config {
	return Config{
		Dir:              "knowledge_base",
		ChunkSize:        1000,
		ChunkOverlap:     200,
		EmbedConcurrency: 4,
		EmbedTimeout:     30 * time.Second,
	}
}

// #endregion config

// #region policy-chunk

// PolicyChunk is one indexed window of a policy document. Immutable once built.
type PolicyChunk struct {
	ID        string
	Source    string // document file name
	Page      int    // 1-based page (1 for plain-text documents)
	Offset    int    // rune offset of the window within the page
	Text      string
	Embedding []float32 // unit length
}

// #endregion policy-chunk

// #region scored

// Scored pairs a chunk with its cosine similarity to a query.
type Scored struct {
	Chunk PolicyChunk
	Score float32
}

// #endregion scored

// #region collaborators

// Embedder maps text to a fixed-dimension vector. Identity names the model and
// version; an index only answers queries embedded by the identity that built it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Identity() string
}

// PageReader extracts per-page text from a PDF document.
type PageReader interface {
	ReadPages(ctx context.Context, path string) ([]string, error)
}

// #endregion collaborators

// #region stats

// Stats describes the live index for health checks and inspection.
type Stats struct {
	Ready       bool      `json:"ready"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Embedder    string    `json:"embedder,omitempty"`
	Dimension   int       `json:"dimension,omitempty"`
	Chunks      int       `json:"chunks"`
	BuiltAt     time.Time `json:"built_at,omitempty"`
}

// BuildReport summarizes one Build call.
type BuildReport struct {
	Fingerprint string
	Documents   int
	Chunks      int
	Skipped     bool // live index already matched the fingerprint
	Loaded      bool // persisted index matched and was loaded
	Duration    time.Duration
}

// #endregion stats

// #region errors

var (
	ErrNoDocuments      = errors.New("knowledge base has no usable policy documents")
	ErrEmbedderMismatch = errors.New("query embedder differs from the embedder that built the index")
	ErrDimension        = errors.New("embedding dimension mismatch")
	ErrInvalidWindow    = errors.New("chunk overlap must be non-negative and smaller than the window")
	ErrNonFinite        = errors.New("embedding has a NaN or infinite component")
)

// #endregion errors
