package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/media"
)

// #region coordinator

// Coordinator runs transcription and on-screen text recognition in parallel and
// merges what they return.
type Coordinator struct {
	transcriber Transcriber
	recognizer  TextRecognizer
	config      Config
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(transcriber Transcriber, recognizer TextRecognizer, config Config) (*Coordinator, error) {
	if transcriber == nil || recognizer == nil {
		return nil, fmt.Errorf("extraction requires a transcriber and a text recognizer")
	}
	return &Coordinator{transcriber: transcriber, recognizer: recognizer, config: config}, nil
}

// #endregion coordinator

// #region extract

// Extract runs both operations concurrently, each under its own timeout, and waits
// for both. One failure becomes a warning; two failures, a failed required
// operation, or no text at all is KindExtractionFailed.
func (c *Coordinator) Extract(ctx context.Context, h media.Handle) (Result, error) {
	var (
		wg         sync.WaitGroup
		segments   []Segment
		snippets   []Snippet
		speechErr  error
		displayErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		opCtx, cancel := withTimeout(ctx, c.config.TranscribeTimeout)
		defer cancel()
		segments, speechErr = c.transcriber.Transcribe(opCtx, h, c.config.Language)
	}()
	go func() {
		defer wg.Done()
		opCtx, cancel := withTimeout(ctx, c.config.OCRTimeout)
		defer cancel()
		snippets, displayErr = c.recognizer.RecognizeText(opCtx, h, c.config.Sampling)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, auditerr.Wrap(fmt.Errorf("extraction interrupted: %w", err), auditerr.KindCancelled)
	}

	if speechErr != nil && displayErr != nil {
		log.Printf("[EXTRACT] media=%s both operations failed", h.ID)
		return Result{}, auditerr.Wrap(errors.Join(
			fmt.Errorf("transcription: %w", speechErr),
			fmt.Errorf("on-screen text: %w", displayErr),
		), auditerr.KindExtractionFailed)
	}
	if speechErr != nil && c.config.RequireTranscript {
		return Result{}, auditerr.Wrap(fmt.Errorf("transcription (required): %w", speechErr), auditerr.KindExtractionFailed)
	}
	if displayErr != nil && c.config.RequireOnScreenText {
		return Result{}, auditerr.Wrap(fmt.Errorf("on-screen text (required): %w", displayErr), auditerr.KindExtractionFailed)
	}

	var warnings []string
	if speechErr != nil {
		warnings = append(warnings, fmt.Sprintf("transcription failed, continuing with on-screen text only: %v", speechErr))
		segments = nil
	}
	if displayErr != nil {
		warnings = append(warnings, fmt.Sprintf("on-screen text recognition failed, continuing with transcript only: %v", displayErr))
		snippets = nil
	}
	for _, w := range warnings {
		log.Printf("[EXTRACT] media=%s warning: %s", h.ID, w)
	}

	segments = normalizeSegments(segments)
	snippets = normalizeSnippets(snippets)
	if len(segments) == 0 && len(snippets) == 0 {
		return Result{}, auditerr.New(auditerr.KindExtractionFailed, "no transcript or on-screen text could be extracted")
	}

	log.Printf("[EXTRACT] media=%s segments=%d snippets=%d", h.ID, len(segments), len(snippets))
	return Result{
		Evidence: EvidenceDocument{
			Transcript:   segments,
			OnScreenText: snippets,
			MergedText:   Merge(segments, snippets),
		},
		Warnings: warnings,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// #endregion extract
