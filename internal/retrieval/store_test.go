package retrieval

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func tempIndexStore(t *testing.T) *SQLiteIndexStore {
	t.Helper()
	s, err := NewSQLiteIndexStore(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatalf("NewSQLiteIndexStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIndexStore_EmptyLoad(t *testing.T) {
	s := tempIndexStore(t)
	idx, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx != nil {
		t.Fatal("expected nil index from empty store")
	}
}

func TestIndexStore_SaveLoad(t *testing.T) {
	s := tempIndexStore(t)
	built := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	idx, err := NewIndex("fp-1", "hash-v1", built, []PolicyChunk{
		{ID: "a", Source: "x.pdf", Page: 1, Offset: 0, Text: "first", Embedding: []float32{0.6, 0.8}},
		{ID: "b", Source: "x.pdf", Page: 2, Offset: 800, Text: "second", Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	if err := s.Save(context.Background(), idx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Fingerprint() != "fp-1" || got.Embedder() != "hash-v1" || got.Dimension() != 2 || got.Len() != 2 {
		t.Fatalf("unexpected meta: %s %s %d %d", got.Fingerprint(), got.Embedder(), got.Dimension(), got.Len())
	}
	if !got.BuiltAt().Equal(built) {
		t.Fatalf("expected built_at %v, got %v", built, got.BuiltAt())
	}
	chunks := got.Chunks()
	if chunks[1].Offset != 800 || chunks[1].Page != 2 || chunks[0].Embedding[1] != 0.8 {
		t.Fatalf("chunk fields not preserved: %+v", chunks)
	}

	// A second save replaces rather than appends.
	idx2, _ := NewIndex("fp-2", "hash-v1", built, []PolicyChunk{{ID: "c", Text: "only", Embedding: []float32{1, 0}}})
	if err := s.Save(context.Background(), idx2); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ = s.Load(context.Background())
	if got.Fingerprint() != "fp-2" || got.Len() != 1 {
		t.Fatalf("expected replacement index, got %s/%d", got.Fingerprint(), got.Len())
	}
}

func TestNewIndex_DimensionMismatch(t *testing.T) {
	_, err := NewIndex("fp", "e", time.Now(), []PolicyChunk{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{1, 0, 0}},
	})
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	got := decodeVector(encodeVector(v))
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("index %d: expected %f, got %f", i, v[i], got[i])
		}
	}
}
