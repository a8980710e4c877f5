package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaGenerate(t *testing.T) {
	t.Parallel()

	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"violation":false}`, "done": true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL + "/", Model: "mistral", Temperature: 0.1, MaxTokens: 3072})
	out, err := client.Generate(context.Background(), Prompt{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"violation":false}` {
		t.Fatalf("unexpected response: %q", out)
	}
	if got.Model != "mistral" || got.System != "sys" || got.Prompt != "usr" || got.Stream {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Options.Temperature != 0.1 || got.Options.NumPredict != 3072 {
		t.Fatalf("unexpected options: %+v", got.Options)
	}
	if client.Name() != "ollama:mistral" {
		t.Fatalf("unexpected name %q", client.Name())
	}
}

func TestOllamaGenerate_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "mistral"})
	_, err := client.Generate(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOllamaGenerate_EmptyResponseIsNotAnOutage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  ", "done": true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "mistral"})
	got, err := client.Generate(context.Background(), Prompt{User: "x"})
	if err != nil {
		t.Fatalf("a reachable server with a blank answer is not unavailable: %v", err)
	}
	if strings.TrimSpace(got) != "" {
		t.Fatalf("expected blank answer, got %q", got)
	}
}

func TestOllamaGenerate_ConnectionRefusedIsUnavailable(t *testing.T) {
	t.Parallel()

	client := NewOllamaClient(OllamaConfig{BaseURL: "127.0.0.1:1", Model: "mistral", Timeout: 2 * time.Second})
	if _, err := client.Generate(context.Background(), Prompt{User: "x"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := client.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ping ErrUnavailable, got %v", err)
	}
}

func TestOllamaPing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "mistral"})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
