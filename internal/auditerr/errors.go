package auditerr

import (
	"errors"
	"fmt"
)

// #region kind

// Kind classifies an audit failure. Kinds are stable strings surfaced to API clients.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindDownloadFailed   Kind = "download_failed"
	KindExtractionFailed Kind = "extraction_failed"
	KindIndexNotReady    Kind = "index_not_ready"
	KindRetrievalFailed  Kind = "retrieval_failed"
	KindLLMUnavailable   Kind = "llm_unavailable"
	KindLLMSchemaInvalid Kind = "llm_schema_invalid"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

// #endregion kind

// #region error

type classifiedError struct {
	kind  Kind
	stage string
	cause error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	if e.stage != "" {
		return fmt.Sprintf("%s (%s): %v", e.kind, e.stage, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// #endregion error

// #region constructors

// New creates a classified error with a plain message.
func New(kind Kind, format string, args ...any) error {
	return &classifiedError{kind: kind, cause: fmt.Errorf(format, args...)}
}

// Wrap classifies cause. A nil cause yields nil.
func Wrap(cause error, kind Kind) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{kind: kind, cause: cause}
}

// WithStage attaches the failing pipeline stage. Unclassified errors become KindInternal.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var classified *classifiedError
	if errors.As(err, &classified) {
		return &classifiedError{kind: classified.kind, stage: stage, cause: classified.cause}
	}
	return &classifiedError{kind: KindInternal, stage: stage, cause: err}
}

// #endregion constructors

// #region accessors

// KindOf returns the outermost classification of err, or "" if none.
func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

// StageOf returns the stage recorded by WithStage, or "".
func StageOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.stage
	}
	return ""
}

// CauseOf returns the unclassified cause of err.
func CauseOf(err error) error {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.cause
	}
	return err
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// #endregion accessors
