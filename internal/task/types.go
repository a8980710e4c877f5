package task

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
)

// #region status

// Status is a task lifecycle state.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusExtracting Status = "EXTRACTING"
	StatusRetrieving Status = "RETRIEVING"
	StatusReasoning  Status = "REASONING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// #endregion status

// #region failure

// Failure is the structured error recorded on a FAILED task.
type Failure struct {
	Kind    auditerr.Kind `json:"kind"`
	Stage   string        `json:"stage,omitempty"`
	Message string        `json:"message"`
	Causes  []string      `json:"causes,omitempty"`
}

// FailureFromError converts a classified error into a Failure. Joined causes are
// listed individually.
func FailureFromError(err error) *Failure {
	if err == nil {
		return nil
	}
	kind := auditerr.KindOf(err)
	if kind == "" {
		kind = auditerr.KindInternal
	}
	f := &Failure{Kind: kind, Stage: auditerr.StageOf(err), Message: err.Error()}
	cause := auditerr.CauseOf(err)
	if joined, ok := cause.(interface{ Unwrap() []error }); ok {
		for _, c := range joined.Unwrap() {
			f.Causes = append(f.Causes, c.Error())
		}
	} else if cause != nil {
		f.Causes = []string{cause.Error()}
	}
	return f
}

// #endregion failure

// #region task

// Task is one audit request and everything known about its progress. Values
// returned by a Store are copies.
type Task struct {
	ID              string           `json:"task_id"`
	URL             string           `json:"url"`
	Status          Status           `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	TerminalAt      time.Time        `json:"terminal_at,omitzero"`
	Progress        string           `json:"progress"`
	Step            int              `json:"step"`
	TotalSteps      int              `json:"total_steps"`
	Warnings        []string         `json:"warnings,omitempty"`
	CancelRequested bool             `json:"cancel_requested,omitempty"`
	Result          *verdict.Verdict `json:"result,omitempty"`
	Error           *Failure         `json:"error,omitempty"`
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	out := t
	out.Warnings = append([]string(nil), t.Warnings...)
	if t.Result != nil {
		r := t.Result.Clone()
		out.Result = &r
	}
	if t.Error != nil {
		e := *t.Error
		e.Causes = append([]string(nil), t.Error.Causes...)
		out.Error = &e
	}
	return out
}

// Transition is one recorded status change.
type Transition struct {
	TaskID string    `json:"task_id"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// #endregion task

// #region store

// Store holds task records. Update runs fn under the record's exclusive lock and
// validates the result before publishing it; readers only ever see committed
// snapshots.
type Store interface {
	Create(t Task) error
	Get(id string) (Task, error)
	Update(id string, fn func(*Task) error) (Task, error)
	List() ([]Task, error)
	EvictExpired(now time.Time, ttl time.Duration) ([]string, error)
	Transitions(id string) ([]Transition, error)
}

var (
	ErrExists   = errors.New("task already exists")
	ErrTerminal = errors.New("task is terminal")
	ErrIdentity = errors.New("task identity is immutable")
)

// #endregion store
