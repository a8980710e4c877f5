package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("brand-guardian/policy-chunk"))

// #region engine

// Engine builds and queries the policy knowledge base. The live index is immutable
// and replaced atomically, so readers never see a partial build.
type Engine struct {
	config   Config
	embedder Embedder
	pages    PageReader // nil disables PDF sources
	store    IndexStore // nil disables persistence

	buildMu sync.Mutex
	current atomic.Pointer[Index]
}

// NewEngine creates an Engine. pages and store may be nil.
func NewEngine(config Config, embedder Embedder, pages PageReader, store IndexStore) (*Engine, error) {
	if config.ChunkSize <= 0 || config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, ErrInvalidWindow
	}
	if embedder == nil {
		return nil, fmt.Errorf("retrieval engine requires an embedder")
	}
	if config.EmbedConcurrency < 1 {
		config.EmbedConcurrency = 1
	}
	return &Engine{config: config, embedder: embedder, pages: pages, store: store}, nil
}

// #endregion engine

// #region ready

// Ready reports whether a successful build has installed an index.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// Stats describes the live index.
func (e *Engine) Stats() Stats {
	idx := e.current.Load()
	if idx == nil {
		return Stats{}
	}
	return Stats{
		Ready:       true,
		Fingerprint: idx.fingerprint,
		Embedder:    idx.embedder,
		Dimension:   idx.dimension,
		Chunks:      len(idx.chunks),
		BuiltAt:     idx.builtAt,
	}
}

// Index returns the live index, or nil before the first successful build.
func (e *Engine) Index() *Index {
	return e.current.Load()
}

// #endregion ready

// #region build

// Build makes the live index reflect the documents in the configured directory.
// It is a no-op when the live index already has the current fingerprint and
// embedder, loads the persisted index when that one matches, and otherwise
// re-chunks and re-embeds everything. force skips both shortcuts.
func (e *Engine) Build(ctx context.Context, force bool) (BuildReport, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	files, err := scanSources(e.config.Dir)
	if err != nil {
		return BuildReport{}, err
	}
	if len(files) == 0 {
		return BuildReport{}, fmt.Errorf("%w in %s", ErrNoDocuments, e.config.Dir)
	}
	fp, err := fingerprint(files, e.config.ChunkSize, e.config.ChunkOverlap)
	if err != nil {
		return BuildReport{}, err
	}
	report := BuildReport{Fingerprint: fp, Documents: len(files)}
	identity := e.embedder.Identity()

	if !force {
		if cur := e.current.Load(); cur != nil && cur.fingerprint == fp && cur.embedder == identity {
			report.Skipped = true
			report.Chunks = len(cur.chunks)
			report.Duration = time.Since(start)
			return report, nil
		}
		if e.store != nil {
			stored, err := e.store.Load(ctx)
			if err != nil {
				log.Printf("[KB] persisted index unreadable, rebuilding: %v", err)
			} else if stored != nil && stored.fingerprint == fp && stored.embedder == identity {
				e.current.Store(stored)
				report.Loaded = true
				report.Chunks = len(stored.chunks)
				report.Duration = time.Since(start)
				log.Printf("[KB] loaded persisted index fingerprint=%s chunks=%d", short(fp), len(stored.chunks))
				return report, nil
			}
		}
	}

	chunks, err := e.chunkSources(ctx, files)
	if err != nil {
		return BuildReport{}, err
	}
	if len(chunks) == 0 {
		return BuildReport{}, fmt.Errorf("%w: documents contained no text", ErrNoDocuments)
	}
	log.Printf("[KB] created %d chunks from %d documents", len(chunks), len(files))

	if err := e.embedChunks(ctx, chunks); err != nil {
		return BuildReport{}, err
	}

	idx, err := NewIndex(fp, identity, time.Now(), chunks)
	if err != nil {
		return BuildReport{}, err
	}
	if e.store != nil {
		if err := e.store.Save(ctx, idx); err != nil {
			return BuildReport{}, fmt.Errorf("persist index: %w", err)
		}
	}
	e.current.Store(idx)

	report.Chunks = len(chunks)
	report.Duration = time.Since(start)
	log.Printf("[KB] index ready fingerprint=%s chunks=%d dim=%d in %s",
		short(fp), len(chunks), idx.dimension, report.Duration.Round(time.Millisecond))
	return report, nil
}

// chunkSources reads every document page, cleans it, and windows it into chunks.
func (e *Engine) chunkSources(ctx context.Context, files []sourceFile) ([]PolicyChunk, error) {
	var chunks []PolicyChunk
	for _, f := range files {
		pages, err := e.readPages(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		for p, raw := range pages {
			text := CleanText(raw)
			if text == "" {
				continue
			}
			spans, err := Chunk(text, e.config.ChunkSize, e.config.ChunkOverlap)
			if err != nil {
				return nil, err
			}
			for _, s := range spans {
				chunks = append(chunks, PolicyChunk{
					ID:     chunkID(f.Name, p+1, s.Offset),
					Source: f.Name,
					Page:   p + 1,
					Offset: s.Offset,
					Text:   s.Text,
				})
			}
		}
	}
	return chunks, nil
}

func (e *Engine) readPages(ctx context.Context, f sourceFile) ([]string, error) {
	if f.Kind == "pdf" {
		if e.pages == nil {
			return nil, fmt.Errorf("pdf sources need a page reader")
		}
		return e.pages.ReadPages(ctx, f.Path)
	}
	data, err := readFile(f.Path)
	if err != nil {
		return nil, err
	}
	return []string{data}, nil
}

// embedChunks fills in unit-length embeddings with bounded parallelism.
func (e *Engine) embedChunks(ctx context.Context, chunks []PolicyChunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.EmbedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			callCtx := gctx
			if e.config.EmbedTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, e.config.EmbedTimeout)
				defer cancel()
			}
			vec, err := e.embedder.Embed(callCtx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
			}
			if !finite(vec) {
				return fmt.Errorf("embed chunk %s: %w", chunks[i].ID, ErrNonFinite)
			}
			chunks[i].Embedding = normalize(vec)
			return nil
		})
	}
	return g.Wait()
}

// #endregion build

// #region retrieve

// Retrieve returns up to k chunks scoring at least minScore against queryText,
// best first with ties broken by chunk id. An empty result means no policy text
// cleared the threshold; it is not an error.
func (e *Engine) Retrieve(ctx context.Context, queryText string, k int, minScore float32) ([]Scored, error) {
	idx := e.current.Load()
	if idx == nil {
		return nil, auditerr.New(auditerr.KindIndexNotReady, "knowledge base has not been built")
	}
	if k <= 0 {
		return nil, auditerr.New(auditerr.KindInvalidInput, "k must be positive, got %d", k)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, auditerr.New(auditerr.KindInvalidInput, "query text is empty")
	}
	if identity := e.embedder.Identity(); identity != idx.embedder {
		return nil, auditerr.Wrap(fmt.Errorf("%w: index=%s query=%s", ErrEmbedderMismatch, idx.embedder, identity), auditerr.KindInternal)
	}

	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, auditerr.Wrap(fmt.Errorf("embed query: %w", err), auditerr.KindRetrievalFailed)
	}
	if !finite(vec) {
		return nil, auditerr.Wrap(fmt.Errorf("embed query: %w", ErrNonFinite), auditerr.KindRetrievalFailed)
	}
	if len(vec) != idx.dimension {
		return nil, auditerr.Wrap(fmt.Errorf("%w: index=%d query=%d", ErrDimension, idx.dimension, len(vec)), auditerr.KindInternal)
	}

	results := idx.search(normalize(vec), k, minScore)
	for rank, r := range results {
		log.Printf("[KB]   rank %d: score=%.4f chunk=%s (%s p.%d)", rank+1, r.Score, short(r.Chunk.ID), r.Chunk.Source, r.Chunk.Page)
	}
	log.Printf("[KB] retrieved %d chunks above threshold %.2f", len(results), minScore)
	return results, nil
}

// #endregion retrieve

// #region helpers
func chunkID(source string, page, offset int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s|%d|%d", source, page, offset))).String()
}

func short(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// #endregion helpers
