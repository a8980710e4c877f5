package extraction

import (
	"context"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/media"
)

// #region evidence

// Segment is a span of recognized speech, in seconds from the start of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Snippet is text recognized on a sampled frame at At seconds.
type Snippet struct {
	At   float64 `json:"at"`
	Text string  `json:"text"`
}

// EvidenceDocument is everything extracted from one advertisement. Immutable once
// returned by the coordinator.
type EvidenceDocument struct {
	Transcript   []Segment `json:"transcript"`
	OnScreenText []Snippet `json:"on_screen_text"`
	MergedText   string    `json:"merged_text"`
}

// #endregion evidence

// #region providers

// SamplingPolicy controls which frames text recognition looks at.
type SamplingPolicy struct {
	IntervalSeconds float64
	MaxFrames       int
	FrameWidth      int
}

// DefaultSamplingPolicy samples a 640px-wide frame every 10 seconds, at most 12 times.
func DefaultSamplingPolicy() SamplingPolicy {
	return SamplingPolicy{IntervalSeconds: 10, MaxFrames: 12, FrameWidth: 640}
}

// Transcriber turns the audio track into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, h media.Handle, language string) ([]Segment, error)
}

// TextRecognizer reads on-screen text from sampled frames.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, h media.Handle, policy SamplingPolicy) ([]Snippet, error)
}

// #endregion providers

// #region config

// Config controls timeouts and which operations are mandatory.
type Config struct {
	TranscribeTimeout   time.Duration
	OCRTimeout          time.Duration
	RequireTranscript   bool
	RequireOnScreenText bool
	Language            string
	Sampling            SamplingPolicy
}

// DefaultConfig gives both operations ten minutes and requires neither.
func DefaultConfig() Config {
	return Config{
		TranscribeTimeout: 10 * time.Minute,
		OCRTimeout:        10 * time.Minute,
		Language:          "en",
		Sampling:          DefaultSamplingPolicy(),
	}
}

// Result is the coordinator output: the evidence plus non-fatal warnings about an
// operation that failed while the other one carried the stage.
type Result struct {
	Evidence EvidenceDocument
	Warnings []string
}

// #endregion config
