package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
)

// #region index-tests

func TestSearch_SkipsNaNScores(t *testing.T) {
	nan := float32(math.NaN())
	idx, err := NewIndex("fp", "test", time.Now(), []PolicyChunk{
		{ID: "a", Embedding: []float32{0.6, 0.8}},
		{ID: "b", Embedding: []float32{nan, 0}},
		{ID: "c", Embedding: []float32{1, 0}},
		{ID: "d", Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	for run := 0; run < 5; run++ {
		got := idx.search([]float32{1, 0}, 10, -1)
		var ids []string
		for _, s := range got {
			ids = append(ids, s.Chunk.ID)
		}
		if strings.Join(ids, ",") != "c,a,d" {
			t.Fatalf("run %d: expected c,a,d, got %v", run, ids)
		}
	}
}

// poisonEmbedder returns a NaN vector for text containing "poison".
type poisonEmbedder struct {
	hashEmbedder
}

func (p *poisonEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := p.hashEmbedder.Embed(ctx, text)
	if err == nil && strings.Contains(text, "poison") {
		v[0] = float32(math.NaN())
	}
	return v, err
}

func TestBuild_RejectsNonFiniteEmbedding(t *testing.T) {
	docs := policyDocs()
	docs["bad.txt"] = "This poison clause cannot be embedded."
	emb := &poisonEmbedder{hashEmbedder{identity: "hash-v1", dim: 64}}
	e := newTestEngine(t, writeDocs(t, docs), emb, nil)

	_, err := e.Build(context.Background(), false)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
	if e.Ready() {
		t.Fatal("a failed build must not install an index")
	}
}

func TestRetrieve_NonFiniteQueryFails(t *testing.T) {
	emb := &poisonEmbedder{hashEmbedder{identity: "hash-v1", dim: 64}}
	e := newTestEngine(t, writeDocs(t, policyDocs()), emb, nil)
	if _, err := e.Build(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	_, err := e.Retrieve(context.Background(), "poison alcohol", 3, 0)
	if !auditerr.Is(err, auditerr.KindRetrievalFailed) || !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected retrieval_failed wrapping ErrNonFinite, got %v", err)
	}
}

// #endregion index-tests
