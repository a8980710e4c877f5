package task

import (
	"fmt"
	"time"
)

// #region transitions

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusExtracting: {},
		StatusFailed:     {},
	},
	StatusExtracting: {
		StatusRetrieving: {},
		StatusFailed:     {},
	},
	StatusRetrieving: {
		StatusReasoning: {},
		StatusFailed:    {},
	},
	StatusReasoning: {
		StatusDone:   {},
		StatusFailed: {},
	},
	StatusDone:   {},
	StatusFailed: {},
}

// ValidateStatus rejects unknown statuses.
func ValidateStatus(s Status) error {
	if _, ok := allowedTransitions[s]; !ok {
		return fmt.Errorf("invalid task status: %q", s)
	}
	return nil
}

// ValidateTransition allows only forward moves along the pipeline, or a move to
// FAILED from any non-terminal status.
func ValidateTransition(from, to Status) error {
	if err := ValidateStatus(from); err != nil {
		return err
	}
	if err := ValidateStatus(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid task transition: %s -> %s", from, to)
	}
	return nil
}

// #endregion transitions

// #region invariants

// checkInvariants enforces that DONE carries only a result, FAILED carries only
// an error, and a running task carries neither.
func checkInvariants(t Task) error {
	switch t.Status {
	case StatusDone:
		if t.Result == nil || t.Error != nil {
			return fmt.Errorf("task %s: DONE requires a result and no error", t.ID)
		}
	case StatusFailed:
		if t.Error == nil || t.Result != nil {
			return fmt.Errorf("task %s: FAILED requires an error and no result", t.ID)
		}
	default:
		if t.Result != nil || t.Error != nil {
			return fmt.Errorf("task %s: %s must not carry a result or error", t.ID, t.Status)
		}
	}
	return nil
}

// applyUpdate runs fn on a copy of cur and returns the validated next state plus
// the transition it represents, if any.
func applyUpdate(cur Task, fn func(*Task) error, now time.Time) (Task, *Transition, error) {
	if cur.Status.Terminal() {
		return Task{}, nil, fmt.Errorf("%w: %s is %s", ErrTerminal, cur.ID, cur.Status)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return Task{}, nil, err
	}
	if next.ID != cur.ID || next.URL != cur.URL || !next.CreatedAt.Equal(cur.CreatedAt) {
		return Task{}, nil, fmt.Errorf("%w: %s", ErrIdentity, cur.ID)
	}

	if now.Before(cur.UpdatedAt) {
		now = cur.UpdatedAt
	}
	next.UpdatedAt = now

	var tr *Transition
	if next.Status != cur.Status {
		if err := ValidateTransition(cur.Status, next.Status); err != nil {
			return Task{}, nil, err
		}
		if next.Status.Terminal() {
			next.TerminalAt = now
		}
		tr = &Transition{TaskID: cur.ID, From: cur.Status, To: next.Status, Note: next.Progress, At: now}
	}
	if err := checkInvariants(next); err != nil {
		return Task{}, nil, err
	}
	return next, tr, nil
}

// validateNew checks a task passed to Create.
func validateNew(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Status != StatusQueued {
		return fmt.Errorf("task %s: new tasks start QUEUED, got %s", t.ID, t.Status)
	}
	return checkInvariants(t)
}

// expired reports whether a terminal task has outlived ttl.
func expired(t Task, now time.Time, ttl time.Duration) bool {
	return t.Status.Terminal() && !t.TerminalAt.IsZero() && !now.Before(t.TerminalAt.Add(ttl))
}

// #endregion invariants
