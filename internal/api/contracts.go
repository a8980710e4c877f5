package api

import (
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/task"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
)

// #region requests

// SubmitRequest is the body of POST /audit.
type SubmitRequest struct {
	URL string `json:"url"`
}

// #endregion

// #region responses

// SubmitResponse acknowledges a queued audit.
type SubmitResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// TaskView is the client-facing shape of a task. Outcome is "pending" until the
// task is terminal, then "verdict" or "error".
type TaskView struct {
	TaskID          string           `json:"task_id"`
	URL             string           `json:"url"`
	Status          task.Status      `json:"status"`
	Outcome         string           `json:"outcome"`
	Progress        string           `json:"progress"`
	Step            int              `json:"step"`
	TotalSteps      int              `json:"total_steps"`
	ElapsedSeconds  float64          `json:"elapsed_seconds"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Warnings        []string         `json:"warnings,omitempty"`
	CancelRequested bool             `json:"cancel_requested,omitempty"`
	Result          *verdict.Verdict `json:"result,omitempty"`
	Error           *task.Failure    `json:"error,omitempty"`
}

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// #endregion

// #region view

func newTaskView(t task.Task, now time.Time) TaskView {
	end := now
	if t.Status.Terminal() && !t.TerminalAt.IsZero() {
		end = t.TerminalAt
	}
	v := TaskView{
		TaskID:          t.ID,
		URL:             t.URL,
		Status:          t.Status,
		Outcome:         "pending",
		Progress:        t.Progress,
		Step:            t.Step,
		TotalSteps:      t.TotalSteps,
		ElapsedSeconds:  end.Sub(t.CreatedAt).Round(time.Millisecond).Seconds(),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		Warnings:        t.Warnings,
		CancelRequested: t.CancelRequested,
		Result:          t.Result,
		Error:           t.Error,
	}
	switch {
	case t.Result != nil:
		v.Outcome = "verdict"
	case t.Error != nil:
		v.Outcome = "error"
	}
	return v
}

// #endregion
