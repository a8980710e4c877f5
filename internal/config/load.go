package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region load

// Load builds a Config from defaults, the YAML file at path (skipped when path is
// empty or the file does not exist), and BG_* environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config unmarshal: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("config load: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid: %w", err)
	}
	return cfg, nil
}

// #endregion load

// #region env-overrides

func applyEnvOverrides(c *Config) {
	setString("BG_LISTEN_ADDR", &c.Server.ListenAddr)

	setInt("BG_MAX_CONCURRENT", &c.Orchestrator.MaxConcurrent)
	setInt("BG_TASK_TTL_SECONDS", &c.Orchestrator.TaskTTLSeconds)
	if v := os.Getenv("BG_ALLOWED_HOSTS"); v != "" {
		c.Orchestrator.AllowedHosts = splitList(v)
	}
	setBool("BG_DEDUPE", &c.Orchestrator.Dedupe)

	setInt("BG_TRANSCRIBE_TIMEOUT_SECONDS", &c.Extraction.TranscribeTimeoutSeconds)
	setInt("BG_OCR_TIMEOUT_SECONDS", &c.Extraction.OCRTimeoutSeconds)
	setBool("BG_REQUIRE_TRANSCRIPT", &c.Extraction.RequireTranscript)
	setBool("BG_REQUIRE_ON_SCREEN_TEXT", &c.Extraction.RequireOnScreenText)

	setString("BG_KNOWLEDGE_BASE_DIR", &c.Retrieval.KnowledgeBaseDir)
	setString("BG_INDEX_PATH", &c.Retrieval.IndexPath)
	setInt("BG_TOP_K", &c.Retrieval.TopK)
	if v := os.Getenv("BG_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.Retrieval.MinScore = float32(f)
		}
	}
	setString("BG_EMBEDDING_BACKEND", &c.Retrieval.EmbeddingBackend)
	setString("BG_EMBEDDING_MODEL", &c.Retrieval.EmbeddingModel)

	setString("BG_REASONING_BACKEND", &c.Reasoning.Backend)
	setString("BG_LLM_BASE_URL", &c.Reasoning.BaseURL)
	setString("BG_LLM_MODEL", &c.Reasoning.Model)
	setInt("BG_LLM_TIMEOUT_SECONDS", &c.Reasoning.TimeoutSeconds)

	setString("BG_CODEC_ADDR", &c.Codec.Addr)
	setString("BG_GEMINI_API_KEY", &c.Gemini.APIKey)

	setString("BG_STORE_BACKEND", &c.Store.Backend)
	setString("BG_STORE_PATH", &c.Store.Path)

	setBool("BG_PUBSUB_ENABLED", &c.Events.PubSubEnabled)
	setString("BG_PUBSUB_PROJECT_ID", &c.Events.ProjectID)
	setString("BG_PUBSUB_TOPIC_ID", &c.Events.TopicID)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// #endregion env-overrides
