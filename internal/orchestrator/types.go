package orchestrator

// #region imports
import (
	"context"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/events"
	"github.com/danielpatrickdp/brand-guardian/internal/extraction"
	"github.com/danielpatrickdp/brand-guardian/internal/media"
	"github.com/danielpatrickdp/brand-guardian/internal/reasoning"
	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
)

// #endregion

// #region stages

const (
	stageQueued     = "queued"
	stageExtracting = "extracting"
	stageRetrieving = "retrieving"
	stageReasoning  = "reasoning"
)

// totalSteps counts fetch, extract, retrieve, reason and done.
const totalSteps = 5

// #endregion

// #region config

// Config bounds execution and retention.
type Config struct {
	MaxConcurrent int
	TaskTTL       time.Duration
	EvictInterval time.Duration
	AllowedHosts  []string // empty accepts any host
	Dedupe        bool
	TopK          int
	MinScore      float32
}

// DefaultConfig runs two audits at a time and keeps finished tasks for an hour.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 2,
		TaskTTL:       time.Hour,
		EvictInterval: time.Minute,
		AllowedHosts:  media.DefaultAllowedHosts(),
		Dedupe:        true,
		TopK:          3,
		MinScore:      0.25,
	}
}

// #endregion

// #region collaborators

// Extractor produces evidence from fetched media.
type Extractor interface {
	Extract(ctx context.Context, h media.Handle) (extraction.Result, error)
}

// Retriever finds policy chunks relevant to evidence.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, minScore float32) ([]retrieval.Scored, error)
	Stats() retrieval.Stats
}

// VerdictGenerator turns evidence and chunks into a verdict.
type VerdictGenerator interface {
	Generate(ctx context.Context, evidence string, chunks []retrieval.Scored) (verdict.Verdict, error)
}

// Deps wires the orchestrator to its collaborators. Reasoner is only used for
// health checks; Emitter may be nil.
type Deps struct {
	Store     task.Store
	Fetcher   media.Fetcher
	Extractor Extractor
	Retriever Retriever
	Generator VerdictGenerator
	Reasoner  reasoning.Reasoner
	Emitter   events.Emitter
}

// #endregion

// #region health

// ReasoningHealth reports whether the reasoning backend answered a ping.
type ReasoningHealth struct {
	Backend   string `json:"backend"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// Health summarizes whether the service can complete audits.
type Health struct {
	Status        string          `json:"status"` // ok | degraded
	KnowledgeBase retrieval.Stats `json:"knowledge_base"`
	Reasoning     ReasoningHealth `json:"reasoning"`
	QueueDepth    int             `json:"queue_depth"`
	Workers       int             `json:"workers"`
}

// #endregion
