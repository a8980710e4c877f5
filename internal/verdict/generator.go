package verdict

import (
	"context"
	"fmt"
	"log"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/reasoning"
	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
)

// #region constants

const maxCorrectiveRetries = 1 // one corrective re-prompt = 2 total attempts

// #endregion constants

// #region generator

// Config tunes verdict post-processing.
type Config struct {
	// InsufficientEvidenceMaxConfidence caps confidence when no policy chunk matched.
	InsufficientEvidenceMaxConfidence float64
}

// DefaultConfig returns a 0.5 confidence cap.
func DefaultConfig() Config {
	return Config{InsufficientEvidenceMaxConfidence: 0.5}
}

// Generator produces validated verdicts from a reasoning backend.
type Generator struct {
	reasoner reasoning.Reasoner
	config   Config
}

// NewGenerator creates a Generator and compiles the verdict schema.
func NewGenerator(reasoner reasoning.Reasoner, config Config) (*Generator, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("verdict generator requires a reasoner")
	}
	if config.InsufficientEvidenceMaxConfidence < 0 || config.InsufficientEvidenceMaxConfidence > 1 {
		return nil, fmt.Errorf("insufficient evidence confidence cap must be in [0,1], got %v", config.InsufficientEvidenceMaxConfidence)
	}
	if _, err := compiledSchema(); err != nil {
		return nil, err
	}
	return &Generator{reasoner: reasoner, config: config}, nil
}

// #endregion generator

// #region generate

// Generate asks the reasoner for a verdict on evidence given the retrieved chunks.
// A malformed or inconsistent answer gets one corrective re-prompt; if that also
// fails the result is KindLLMSchemaInvalid, never a defaulted verdict. Backend
// failures are KindLLMUnavailable.
func (g *Generator) Generate(ctx context.Context, evidence string, chunks []retrieval.Scored) (Verdict, error) {
	base := BuildPrompt(evidence, chunks)
	prompt := base

	var lastErr error
	for attempt := 0; attempt <= maxCorrectiveRetries; attempt++ {
		raw, err := g.reasoner.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Verdict{}, auditerr.Wrap(fmt.Errorf("reasoning interrupted: %w", ctx.Err()), auditerr.KindCancelled)
			}
			return Verdict{}, auditerr.Wrap(fmt.Errorf("%s: %w", g.reasoner.Name(), err), auditerr.KindLLMUnavailable)
		}

		v, err := Validate(raw)
		if err == nil {
			if attempt > 0 {
				log.Printf("[VERDICT] corrective re-prompt accepted")
			}
			return g.finalize(v, len(chunks) == 0), nil
		}
		lastErr = err
		log.Printf("[VERDICT] attempt %d rejected: %v", attempt+1, err)
		prompt = correctivePrompt(base, raw, err)
	}
	return Verdict{}, auditerr.Wrap(fmt.Errorf("no valid verdict after %d attempts: %w", maxCorrectiveRetries+1, lastErr), auditerr.KindLLMSchemaInvalid)
}

// finalize marks verdicts reached without matching policy text.
func (g *Generator) finalize(v Verdict, noChunks bool) Verdict {
	if !noChunks {
		return v
	}
	v.InsufficientEvidence = true
	if v.Confidence > g.config.InsufficientEvidenceMaxConfidence {
		v.Confidence = g.config.InsufficientEvidenceMaxConfidence
	}
	log.Printf("[VERDICT] no policy chunks matched; marked insufficient evidence (confidence %.2f)", v.Confidence)
	return v
}

// #endregion generate
