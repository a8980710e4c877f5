package gemini

import (
	"context"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"violation":`), genai.Text(`false}`)}},
		}},
	}
	if got := responseText(resp); got != `{"violation":false}` {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestResponseText_EmptyReplyIsBlank(t *testing.T) {
	cases := []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}}}},
	}
	for i, resp := range cases {
		if got := strings.TrimSpace(responseText(resp)); got != "" {
			t.Fatalf("case %d: expected blank text, got %q", i, got)
		}
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{Model: "gemini-2.5-flash"}); err == nil {
		t.Fatal("expected error without api key")
	}
}
