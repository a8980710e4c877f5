// Package config provides the service configuration model: defaults, an optional
// YAML file, and BG_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/media"
)

// #region config

// Config is the root configuration shared by auditd, kb-build and inspect.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Reasoning    ReasoningConfig    `yaml:"reasoning"`
	Codec        CodecConfig        `yaml:"codec"`
	Gemini       GeminiConfig       `yaml:"gemini"`
	Store        StoreConfig        `yaml:"store"`
	Events       EventsConfig       `yaml:"events"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// OrchestratorConfig bounds task execution and retention.
type OrchestratorConfig struct {
	MaxConcurrent        int      `yaml:"max_concurrent"`
	TaskTTLSeconds       int      `yaml:"task_ttl_seconds"`
	EvictIntervalSeconds int      `yaml:"evict_interval_seconds"`
	AllowedHosts         []string `yaml:"allowed_hosts"`
	Dedupe               bool     `yaml:"dedupe"`
}

// ExtractionConfig holds per-operation timeouts and the OCR sampling policy.
type ExtractionConfig struct {
	TranscribeTimeoutSeconds int    `yaml:"transcribe_timeout_seconds"`
	OCRTimeoutSeconds        int    `yaml:"ocr_timeout_seconds"`
	RequireTranscript        bool   `yaml:"require_transcript"`
	RequireOnScreenText      bool   `yaml:"require_on_screen_text"`
	Language                 string `yaml:"language"`
	OCRIntervalSeconds       int    `yaml:"ocr_interval_seconds"`
	OCRMaxFrames             int    `yaml:"ocr_max_frames"`
	OCRFrameWidth            int    `yaml:"ocr_frame_width"`
}

// RetrievalConfig controls knowledge-base build and query parameters.
type RetrievalConfig struct {
	KnowledgeBaseDir string  `yaml:"knowledge_base_dir"`
	IndexPath        string  `yaml:"index_path"`
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	TopK             int     `yaml:"top_k"`
	MinScore         float32 `yaml:"min_score"`
	EmbeddingBackend string  `yaml:"embedding_backend"` // codec | gemini
	EmbeddingModel   string  `yaml:"embedding_model"`
	EmbedConcurrency int     `yaml:"embed_concurrency"`
	EmbedTimeoutSecs int     `yaml:"embed_timeout_seconds"`
}

// ReasoningConfig selects and tunes the LLM backend.
type ReasoningConfig struct {
	Backend                           string  `yaml:"backend"` // ollama | gemini
	BaseURL                           string  `yaml:"base_url"`
	Model                             string  `yaml:"model"`
	Temperature                       float64 `yaml:"temperature"`
	MaxTokens                         int     `yaml:"max_tokens"`
	TimeoutSeconds                    int     `yaml:"timeout_seconds"`
	InsufficientEvidenceMaxConfidence float64 `yaml:"insufficient_evidence_max_confidence"`
}

// CodecConfig addresses the Python inference sidecar.
type CodecConfig struct {
	Addr               string `yaml:"addr"`
	InitTimeoutSeconds int    `yaml:"init_timeout_seconds"`
}

// GeminiConfig is used when either backend is "gemini".
type GeminiConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | sqlite
	Path    string `yaml:"path"`
}

// EventsConfig enables Pub/Sub publishing of terminal audit events.
type EventsConfig struct {
	PubSubEnabled bool   `yaml:"pubsub_enabled"`
	ProjectID     string `yaml:"project_id"`
	TopicID       string `yaml:"topic_id"`
}

// #endregion config

// #region defaults

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	return Config{
		Server: ServerConfig{ListenAddr: ":8000"},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent:        2,
			TaskTTLSeconds:       3600,
			EvictIntervalSeconds: 60,
			AllowedHosts:         media.DefaultAllowedHosts(),
			Dedupe:               true,
		},
		Extraction: ExtractionConfig{
			TranscribeTimeoutSeconds: 600,
			OCRTimeoutSeconds:        600,
			Language:                 "en",
			OCRIntervalSeconds:       10,
			OCRMaxFrames:             12,
			OCRFrameWidth:            640,
		},
		Retrieval: RetrievalConfig{
			KnowledgeBaseDir: "knowledge_base",
			IndexPath:        "kb_index.db",
			ChunkSize:        1000,
			ChunkOverlap:     200,
			TopK:             3,
			MinScore:         0.25,
			EmbeddingBackend: "codec",
			EmbeddingModel:   "all-MiniLM-L6-v2",
			EmbedConcurrency: 4,
			EmbedTimeoutSecs: 30,
		},
		Reasoning: ReasoningConfig{
			Backend:                           "ollama",
			BaseURL:                           "http://localhost:11434",
			Model:                             "mistral",
			Temperature:                       0.1,
			MaxTokens:                         3072,
			TimeoutSeconds:                    300,
			InsufficientEvidenceMaxConfidence: 0.5,
		},
		Codec: CodecConfig{Addr: "localhost:50051", InitTimeoutSeconds: 300},
		Gemini: GeminiConfig{
			Model:          "gemini-2.5-flash",
			EmbeddingModel: "text-embedding-004",
		},
		Store: StoreConfig{Backend: "memory", Path: "audit_tasks.db"},
	}
}

// #endregion defaults

// #region validate

// Validate rejects configurations the pipeline cannot honor.
func (c Config) Validate() error {
	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("orchestrator.max_concurrent must be >= 1, got %d", c.Orchestrator.MaxConcurrent)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size), got %d", c.Retrieval.ChunkOverlap)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be in [0,1], got %.3f", c.Retrieval.MinScore)
	}
	switch c.Retrieval.EmbeddingBackend {
	case "codec", "gemini":
	default:
		return fmt.Errorf("unknown retrieval.embedding_backend %q", c.Retrieval.EmbeddingBackend)
	}
	switch c.Reasoning.Backend {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("unknown reasoning.backend %q", c.Reasoning.Backend)
	}
	if (c.Reasoning.Backend == "gemini" || c.Retrieval.EmbeddingBackend == "gemini") && c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini backend selected but gemini.api_key is empty")
	}
	if c.Reasoning.InsufficientEvidenceMaxConfidence < 0 || c.Reasoning.InsufficientEvidenceMaxConfidence > 1 {
		return fmt.Errorf("reasoning.insufficient_evidence_max_confidence must be in [0,1]")
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Events.PubSubEnabled && (c.Events.ProjectID == "" || c.Events.TopicID == "") {
		return fmt.Errorf("events.pubsub_enabled requires project_id and topic_id")
	}
	return nil
}

// #endregion validate

// #region durations

// TaskTTL is the retention period of a terminal task.
func (c OrchestratorConfig) TaskTTL() time.Duration {
	return time.Duration(c.TaskTTLSeconds) * time.Second
}

// EvictInterval is how often the janitor sweeps expired tasks.
func (c OrchestratorConfig) EvictInterval() time.Duration {
	return time.Duration(c.EvictIntervalSeconds) * time.Second
}

// #endregion durations
