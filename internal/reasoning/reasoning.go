package reasoning

import (
	"context"
	"errors"
)

// #region types

// Prompt is one request to a reasoning backend.
type Prompt struct {
	System string
	User   string
}

// Reasoner turns a prompt into free-form text. Errors mean the backend could not
// be reached or did not answer; they never describe the content of the answer.
type Reasoner interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	Ping(ctx context.Context) error
	Name() string
}

// ErrUnavailable marks transport-level failures: connection refused, timeouts,
// non-2xx responses, and empty bodies.
var ErrUnavailable = errors.New("reasoning service unavailable")

// #endregion types
