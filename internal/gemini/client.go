package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/danielpatrickdp/brand-guardian/internal/reasoning"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// #region client

// Config selects the Gemini models.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
}

// Client serves as both a reasoning backend and an embedder.
type Client struct {
	client         *genai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int32
}

// New connects to the Gemini API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    float32(cfg.Temperature),
		maxTokens:      int32(cfg.MaxTokens),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Name identifies the backend for health output.
func (c *Client) Name() string {
	return "gemini:" + c.model
}

// #endregion client

// #region generate

// Generate asks the model for a JSON answer. A model handle is created per call
// because the system instruction lives on it.
func (c *Client) Generate(ctx context.Context, p reasoning.Prompt) (string, error) {
	model := c.client.GenerativeModel(c.model)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(c.temperature)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(c.maxTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", fmt.Errorf("%w: %v", reasoning.ErrUnavailable, err)
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate. A reply with
// no candidates or no content (blocked, or stopped early) yields "" so the caller
// handles it like any other unparseable answer.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		log.Printf("[GEMINI] response has no candidates")
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		log.Printf("[GEMINI] candidate has no content (finish reason %v)", cand.FinishReason)
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// Ping fetches model metadata.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.GenerativeModel(c.model).Info(ctx); err != nil {
		return fmt.Errorf("%w: %v", reasoning.ErrUnavailable, err)
	}
	return nil
}

// #endregion generate

// #region embed

// Embed returns the embedding model's vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.client.EmbeddingModel(c.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	return res.Embedding.Values, nil
}

// Identity names the embedding model.
func (c *Client) Identity() string {
	return "gemini:" + c.embeddingModel
}

// #endregion embed
