package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/config"
	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
	"github.com/danielpatrickdp/brand-guardian/internal/wiring"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("BG_CONFIG", "brand_guardian.yaml"), "path to the YAML config")
	force := flag.Bool("force", false, "re-chunk and re-embed even when the stored index is current")
	jsonOut := flag.Bool("json", false, "print the build report as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var closers wiring.Closers
	defer closers.Close()

	if !*jsonOut {
		fmt.Println("=== Knowledge Base Build ===")
		fmt.Printf("  Dir: %s | Index: %s | Codec: %s\n", cfg.Retrieval.KnowledgeBaseDir, cfg.Retrieval.IndexPath, cfg.Codec.Addr)
		fmt.Printf("  Window: %d runes | Overlap: %d | Embedder: %s\n", cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, cfg.Retrieval.EmbeddingBackend)
	}

	providers, err := wiring.Connect(ctx, cfg, &closers)
	if err != nil {
		closers.Close()
		log.Fatalf("failed to connect providers: %v", err)
	}
	engine, _, err := wiring.OpenKnowledgeBase(cfg, providers.Embedder, providers.Codec, &closers)
	if err != nil {
		closers.Close()
		log.Fatalf("failed to open knowledge base: %v", err)
	}

	report, err := engine.Build(ctx, *force)
	if err != nil {
		closers.Close()
		log.Fatalf("build failed: %v", err)
	}

	if *jsonOut {
		if err := printJSON(buildOutput(report, engine)); err != nil {
			log.Printf("output: %v", err)
		}
		return
	}
	printReport(report, engine)
}

// #endregion main

// #region report

type output struct {
	Fingerprint string         `json:"fingerprint"`
	Embedder    string         `json:"embedder"`
	Dimension   int            `json:"dimension"`
	Documents   int            `json:"documents"`
	Chunks      int            `json:"chunks"`
	PerSource   map[string]int `json:"chunks_per_source"`
	Action      string         `json:"action"`
	DurationMs  int64          `json:"duration_ms"`
}

func action(r retrieval.BuildReport) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Loaded:
		return "loaded"
	default:
		return "rebuilt"
	}
}

func buildOutput(r retrieval.BuildReport, engine *retrieval.Engine) output {
	stats := engine.Stats()
	return output{
		Fingerprint: r.Fingerprint,
		Embedder:    stats.Embedder,
		Dimension:   stats.Dimension,
		Documents:   r.Documents,
		Chunks:      r.Chunks,
		PerSource:   perSource(engine.Index()),
		Action:      action(r),
		DurationMs:  r.Duration.Milliseconds(),
	}
}

func perSource(idx *retrieval.Index) map[string]int {
	counts := make(map[string]int)
	if idx == nil {
		return counts
	}
	for _, c := range idx.Chunks() {
		counts[c.Source]++
	}
	return counts
}

func printReport(r retrieval.BuildReport, engine *retrieval.Engine) {
	out := buildOutput(r, engine)
	fmt.Printf("\n--- Result: %s ---\n", out.Action)
	fmt.Printf("  Fingerprint: %s\n", out.Fingerprint)
	fmt.Printf("  Embedder:    %s (dim %d)\n", out.Embedder, out.Dimension)
	fmt.Printf("  Documents:   %d\n", out.Documents)
	fmt.Printf("  Chunks:      %d\n", out.Chunks)

	sources := make([]string, 0, len(out.PerSource))
	for s := range out.PerSource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Printf("    %-40s %d\n", s, out.PerSource[s])
	}
	fmt.Printf("  Took:        %s\n", time.Duration(out.DurationMs)*time.Millisecond)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion report

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
