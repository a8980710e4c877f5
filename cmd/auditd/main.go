package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/api"
	"github.com/danielpatrickdp/brand-guardian/internal/config"
	"github.com/danielpatrickdp/brand-guardian/internal/extraction"
	"github.com/danielpatrickdp/brand-guardian/internal/orchestrator"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
	"github.com/danielpatrickdp/brand-guardian/internal/wiring"
)

// #region main
func main() {
	configPath := envOr("BG_CONFIG", "brand_guardian.yaml")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers wiring.Closers
	defer closers.Close()

	// Inference sidecar and reasoning backend
	providers, err := wiring.Connect(ctx, cfg, &closers)
	if err != nil {
		log.Fatalf("failed to connect providers: %v", err)
	}

	// Knowledge base: load or build before serving; a failure leaves audits
	// failing with index_not_ready until kb-build succeeds and auditd restarts.
	engine, _, err := wiring.OpenKnowledgeBase(cfg, providers.Embedder, providers.Codec, &closers)
	if err != nil {
		log.Fatalf("failed to open knowledge base: %v", err)
	}
	report, err := engine.Build(ctx, false)
	if err != nil {
		log.Printf("[KB] WARNING: knowledge base unavailable: %v", err)
	} else {
		log.Printf("[KB] ready: %d documents, %d chunks (loaded=%v skipped=%v) in %s",
			report.Documents, report.Chunks, report.Loaded, report.Skipped, report.Duration.Round(time.Millisecond))
	}

	coordinator, err := extraction.NewCoordinator(providers.Codec, providers.Codec, wiring.ExtractionConfig(cfg))
	if err != nil {
		log.Fatalf("failed to create extraction coordinator: %v", err)
	}
	generator, err := verdict.NewGenerator(providers.Reasoner, verdict.Config{
		InsufficientEvidenceMaxConfidence: cfg.Reasoning.InsufficientEvidenceMaxConfidence,
	})
	if err != nil {
		log.Fatalf("failed to create verdict generator: %v", err)
	}
	store, err := wiring.OpenTaskStore(cfg, &closers)
	if err != nil {
		log.Fatalf("failed to open task store: %v", err)
	}
	emitter, err := wiring.NewEmitter(ctx, cfg, &closers)
	if err != nil {
		log.Fatalf("failed to create event emitter: %v", err)
	}

	orch, err := orchestrator.New(wiring.OrchestratorConfig(cfg), orchestrator.Deps{
		Store:     store,
		Fetcher:   providers.Codec,
		Extractor: coordinator,
		Retriever: engine,
		Generator: generator,
		Reasoner:  providers.Reasoner,
		Emitter:   emitter,
	})
	if err != nil {
		log.Fatalf("failed to create orchestrator: %v", err)
	}
	orch.Start(ctx)
	defer orch.Stop()

	handler, err := api.NewHandler(orch)
	if err != nil {
		log.Fatalf("failed to create api handler: %v", err)
	}
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("Brand Guardian audit service ready.")
	fmt.Printf("  Listen: %s | Codec: %s | Reasoner: %s | Store: %s\n",
		cfg.Server.ListenAddr, cfg.Codec.Addr, providers.Reasoner.Name(), cfg.Store.Backend)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[API] server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Println("[API] shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] shutdown: %v", err)
	}
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
