// Package wiring turns a loaded config into the concrete collaborators shared by
// the auditd and kb-build binaries.
package wiring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/codec"
	"github.com/danielpatrickdp/brand-guardian/internal/config"
	"github.com/danielpatrickdp/brand-guardian/internal/events"
	"github.com/danielpatrickdp/brand-guardian/internal/extraction"
	"github.com/danielpatrickdp/brand-guardian/internal/gemini"
	"github.com/danielpatrickdp/brand-guardian/internal/orchestrator"
	"github.com/danielpatrickdp/brand-guardian/internal/reasoning"
	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
)

// #region closers

// Closers releases resources in reverse order of acquisition.
type Closers []func() error

func (c *Closers) add(fn func() error) {
	*c = append(*c, fn)
}

// Close runs every closer, logging failures.
func (c Closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Printf("[WIRE] close: %v", err)
		}
	}
}

// #endregion

// #region providers

// Providers holds the external clients selected by config.
type Providers struct {
	Codec    *codec.Client
	Gemini   *gemini.Client // nil unless a gemini backend is selected
	Reasoner reasoning.Reasoner
	Embedder retrieval.Embedder
}

// Connect dials the inference sidecar, loads its models, and selects the reasoning
// and embedding backends. The sidecar must be initialized before it serves any
// request, so Init runs here under the configured timeout.
func Connect(ctx context.Context, cfg config.Config, closers *Closers) (*Providers, error) {
	client, err := codec.NewClient(cfg.Codec.Addr, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("connect inference sidecar at %s: %w", cfg.Codec.Addr, err)
	}
	closers.add(client.Close)

	initCtx, cancel := context.WithTimeout(ctx, seconds(cfg.Codec.InitTimeoutSeconds, 5*time.Minute))
	err = client.Init(initCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("initialize inference sidecar: %w", err)
	}

	p := &Providers{Codec: client, Embedder: client}
	if cfg.Reasoning.Backend == "gemini" || cfg.Retrieval.EmbeddingBackend == "gemini" {
		gc, err := gemini.New(ctx, GeminiConfig(cfg))
		if err != nil {
			return nil, err
		}
		closers.add(gc.Close)
		p.Gemini = gc
	}
	if cfg.Retrieval.EmbeddingBackend == "gemini" {
		p.Embedder = p.Gemini
	}
	p.Reasoner = NewReasoner(cfg, p.Gemini)
	return p, nil
}

// NewReasoner returns the configured reasoning backend. gc is used when the
// backend is "gemini".
func NewReasoner(cfg config.Config, gc *gemini.Client) reasoning.Reasoner {
	if cfg.Reasoning.Backend == "gemini" && gc != nil {
		return gc
	}
	return reasoning.NewOllamaClient(reasoning.OllamaConfig{
		BaseURL:     cfg.Reasoning.BaseURL,
		Model:       cfg.Reasoning.Model,
		Temperature: cfg.Reasoning.Temperature,
		MaxTokens:   cfg.Reasoning.MaxTokens,
		Timeout:     seconds(cfg.Reasoning.TimeoutSeconds, 0),
	})
}

// GeminiConfig maps the gemini and reasoning sections onto the client config.
func GeminiConfig(cfg config.Config) gemini.Config {
	return gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		Model:          cfg.Gemini.Model,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
		Temperature:    cfg.Reasoning.Temperature,
		MaxTokens:      cfg.Reasoning.MaxTokens,
	}
}

// #endregion

// #region knowledge-base

// OpenKnowledgeBase creates the retrieval engine backed by the persisted index.
// Building is left to the caller.
func OpenKnowledgeBase(cfg config.Config, embedder retrieval.Embedder, pages retrieval.PageReader, closers *Closers) (*retrieval.Engine, *retrieval.SQLiteIndexStore, error) {
	store, err := retrieval.NewSQLiteIndexStore(cfg.Retrieval.IndexPath)
	if err != nil {
		return nil, nil, err
	}
	closers.add(store.Close)
	engine, err := retrieval.NewEngine(RetrievalConfig(cfg), embedder, pages, store)
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}

// RetrievalConfig maps the retrieval section onto the engine config.
func RetrievalConfig(cfg config.Config) retrieval.Config {
	return retrieval.Config{
		Dir:              cfg.Retrieval.KnowledgeBaseDir,
		ChunkSize:        cfg.Retrieval.ChunkSize,
		ChunkOverlap:     cfg.Retrieval.ChunkOverlap,
		EmbedConcurrency: cfg.Retrieval.EmbedConcurrency,
		EmbedTimeout:     seconds(cfg.Retrieval.EmbedTimeoutSecs, 30*time.Second),
	}
}

// #endregion

// #region pipeline-config

// ExtractionConfig maps the extraction section onto the coordinator config.
func ExtractionConfig(cfg config.Config) extraction.Config {
	e := cfg.Extraction
	return extraction.Config{
		TranscribeTimeout:   seconds(e.TranscribeTimeoutSeconds, 10*time.Minute),
		OCRTimeout:          seconds(e.OCRTimeoutSeconds, 10*time.Minute),
		RequireTranscript:   e.RequireTranscript,
		RequireOnScreenText: e.RequireOnScreenText,
		Language:            e.Language,
		Sampling: extraction.SamplingPolicy{
			IntervalSeconds: float64(e.OCRIntervalSeconds),
			MaxFrames:       e.OCRMaxFrames,
			FrameWidth:      e.OCRFrameWidth,
		},
	}
}

// OrchestratorConfig maps the orchestrator and retrieval sections onto the
// orchestrator config.
func OrchestratorConfig(cfg config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxConcurrent: cfg.Orchestrator.MaxConcurrent,
		TaskTTL:       cfg.Orchestrator.TaskTTL(),
		EvictInterval: cfg.Orchestrator.EvictInterval(),
		AllowedHosts:  cfg.Orchestrator.AllowedHosts,
		Dedupe:        cfg.Orchestrator.Dedupe,
		TopK:          cfg.Retrieval.TopK,
		MinScore:      cfg.Retrieval.MinScore,
	}
}

// #endregion

// #region task-store

// OpenTaskStore returns the configured task store.
func OpenTaskStore(cfg config.Config, closers *Closers) (task.Store, error) {
	if cfg.Store.Backend != "sqlite" {
		return task.NewMemoryStore(), nil
	}
	store, err := task.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	closers.add(store.Close)
	return store, nil
}

// #endregion

// #region events

// NewEmitter always logs terminal events and also publishes them to Pub/Sub when
// enabled.
func NewEmitter(ctx context.Context, cfg config.Config, closers *Closers) (events.Emitter, error) {
	logEmitter := events.NewLogEmitter()
	if !cfg.Events.PubSubEnabled {
		return logEmitter, nil
	}
	ps, err := events.NewPubSubEmitter(ctx, cfg.Events.ProjectID, cfg.Events.TopicID)
	if err != nil {
		return nil, err
	}
	closers.add(ps.Close)
	return events.NewMultiEmitter(logEmitter, ps), nil
}

// #endregion

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
