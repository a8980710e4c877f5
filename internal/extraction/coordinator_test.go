package extraction

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/media"
)

// #region mocks

type mockTranscriber struct {
	segments []Segment
	err      error
	delay    time.Duration
	running  *atomic.Int32
	overlap  *atomic.Bool
}

func (m *mockTranscriber) Transcribe(ctx context.Context, h media.Handle, language string) ([]Segment, error) {
	if m.running != nil {
		if m.running.Add(1) > 1 {
			m.overlap.Store(true)
		}
		defer m.running.Add(-1)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.segments, m.err
}

type mockRecognizer struct {
	snippets []Snippet
	err      error
	delay    time.Duration
	running  *atomic.Int32
	overlap  *atomic.Bool
	policy   SamplingPolicy
}

func (m *mockRecognizer) RecognizeText(ctx context.Context, h media.Handle, policy SamplingPolicy) ([]Snippet, error) {
	m.policy = policy
	if m.running != nil {
		if m.running.Add(1) > 1 {
			m.overlap.Store(true)
		}
		defer m.running.Add(-1)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.snippets, m.err
}

// #endregion mocks

var testHandle = media.Handle{ID: "vid-1", Path: "/tmp/vid-1.mp4"}

func newTestCoordinator(t *testing.T, tr Transcriber, rec TextRecognizer, cfg Config) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(tr, rec, cfg)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func TestExtract_BothSucceed(t *testing.T) {
	tr := &mockTranscriber{segments: []Segment{{Start: 2, End: 4, Text: "second"}, {Start: 0, End: 2, Text: "first"}}}
	rec := &mockRecognizer{snippets: []Snippet{{At: 10, Text: "BUY NOW"}}}
	c := newTestCoordinator(t, tr, rec, DefaultConfig())

	res, err := c.Extract(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if res.Evidence.Transcript[0].Text != "first" {
		t.Fatalf("segments not ordered: %+v", res.Evidence.Transcript)
	}
	want := "Transcript:\n[0.0s-2.0s] first\n[2.0s-4.0s] second\n\nOn-screen text:\n[10.0s] BUY NOW"
	if res.Evidence.MergedText != want {
		t.Fatalf("merged text:\n%q\nwant\n%q", res.Evidence.MergedText, want)
	}
	if rec.policy != DefaultSamplingPolicy() {
		t.Fatalf("sampling policy not passed through: %+v", rec.policy)
	}
}

func TestExtract_RunsInParallel(t *testing.T) {
	var running atomic.Int32
	var overlap atomic.Bool
	tr := &mockTranscriber{segments: []Segment{{Text: "hi there"}}, delay: 50 * time.Millisecond, running: &running, overlap: &overlap}
	rec := &mockRecognizer{snippets: []Snippet{{Text: "logo text"}}, delay: 50 * time.Millisecond, running: &running, overlap: &overlap}
	c := newTestCoordinator(t, tr, rec, DefaultConfig())

	if _, err := c.Extract(context.Background(), testHandle); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !overlap.Load() {
		t.Fatal("expected transcription and text recognition to overlap")
	}
}

func TestExtract_OneFailureIsWarning(t *testing.T) {
	tr := &mockTranscriber{err: errors.New("audio track missing")}
	rec := &mockRecognizer{snippets: []Snippet{{At: 0, Text: "Drink responsibly"}}}
	c := newTestCoordinator(t, tr, rec, DefaultConfig())

	res, err := c.Extract(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "audio track missing") {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	if !strings.Contains(res.Evidence.MergedText, "Transcript:\n(none)") {
		t.Fatalf("expected empty transcript block:\n%s", res.Evidence.MergedText)
	}
}

func TestExtract_BothFail(t *testing.T) {
	speech := errors.New("whisper crashed")
	display := errors.New("ocr crashed")
	c := newTestCoordinator(t, &mockTranscriber{err: speech}, &mockRecognizer{err: display}, DefaultConfig())

	res, err := c.Extract(context.Background(), testHandle)
	if !auditerr.Is(err, auditerr.KindExtractionFailed) {
		t.Fatalf("expected extraction_failed, got %v", err)
	}
	if !errors.Is(err, speech) || !errors.Is(err, display) {
		t.Fatalf("both causes must be carried: %v", err)
	}
	if res.Evidence.MergedText != "" || len(res.Evidence.Transcript) != 0 {
		t.Fatalf("no partial evidence on failure: %+v", res)
	}
}

func TestExtract_RequiredOperationFailureFailsStage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireTranscript = true
	c := newTestCoordinator(t,
		&mockTranscriber{err: errors.New("no audio")},
		&mockRecognizer{snippets: []Snippet{{Text: "plenty of text"}}}, cfg)

	if _, err := c.Extract(context.Background(), testHandle); !auditerr.Is(err, auditerr.KindExtractionFailed) {
		t.Fatalf("expected extraction_failed, got %v", err)
	}
}

func TestExtract_NoTextIsFailure(t *testing.T) {
	c := newTestCoordinator(t,
		&mockTranscriber{segments: []Segment{{Text: "   "}}},
		&mockRecognizer{snippets: []Snippet{{Text: "ok"}}}, DefaultConfig())

	if _, err := c.Extract(context.Background(), testHandle); !auditerr.Is(err, auditerr.KindExtractionFailed) {
		t.Fatalf("expected extraction_failed, got %v", err)
	}
}

func TestExtract_IndependentTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCRTimeout = 20 * time.Millisecond
	tr := &mockTranscriber{segments: []Segment{{Text: "spoken words"}}, delay: 60 * time.Millisecond}
	rec := &mockRecognizer{delay: time.Second}
	c := newTestCoordinator(t, tr, rec, cfg)

	res, err := c.Extract(context.Background(), testHandle)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Evidence.Transcript) != 1 {
		t.Fatal("transcription must outlive the text recognition timeout")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "deadline") {
		t.Fatalf("expected deadline warning, got %v", res.Warnings)
	}
}

func TestExtract_CancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestCoordinator(t,
		&mockTranscriber{delay: time.Second},
		&mockRecognizer{delay: time.Second}, DefaultConfig())

	if _, err := c.Extract(ctx, testHandle); !auditerr.Is(err, auditerr.KindCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestNormalizeSnippets_DedupesAndDropsFragments(t *testing.T) {
	got := normalizeSnippets([]Snippet{
		{At: 20, Text: "buy now"},
		{At: 10, Text: "BUY  NOW"},
		{At: 5, Text: "ab"},
		{At: 30, Text: "Limited offer"},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 snippets, got %+v", got)
	}
	if got[0].Text != "BUY NOW" || got[0].At != 10 {
		t.Fatalf("expected earliest occurrence kept, got %+v", got[0])
	}
}

func TestMerge_Empty(t *testing.T) {
	want := "Transcript:\n(none)\n\nOn-screen text:\n(none)"
	if got := Merge(nil, nil); got != want {
		t.Fatalf("Merge(nil,nil) = %q", got)
	}
}
