package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/orchestrator"
	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
)

// #region fake-auditor

type fakeAuditor struct {
	submitted []string
	submitErr error
	tasks     map[string]task.Task
	cancelled []string
	health    orchestrator.Health
}

func (f *fakeAuditor) Submit(ctx context.Context, rawURL string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, rawURL)
	return "task-1", nil
}

func (f *fakeAuditor) Status(id string) (task.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return task.Task{}, auditerr.New(auditerr.KindNotFound, "task %s not found", id)
	}
	return t, nil
}

func (f *fakeAuditor) Cancel(id string) (task.Task, error) {
	t, err := f.Status(id)
	if err != nil {
		return t, err
	}
	f.cancelled = append(f.cancelled, id)
	t.CancelRequested = true
	return t, nil
}

func (f *fakeAuditor) Health(ctx context.Context) orchestrator.Health {
	return f.health
}

// #endregion

// #region helpers

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, a *fakeAuditor) http.Handler {
	t.Helper()
	h, err := NewHandler(a)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// #endregion

func TestNewHandlerRequiresAuditor(t *testing.T) {
	if _, err := NewHandler(nil); err == nil {
		t.Fatal("expected error for nil auditor")
	}
}

func TestSubmit_Accepted(t *testing.T) {
	a := &fakeAuditor{}
	rec := do(t, newTestHandler(t, a), http.MethodPost, "/audit", `{"url":"https://youtu.be/abc"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: expected 202 got %d (%s)", rec.Code, rec.Body.String())
	}
	got := decode[SubmitResponse](t, rec)
	if got.TaskID != "task-1" || got.Status != task.StatusQueued {
		t.Fatalf("unexpected response: %+v", got)
	}
	if len(a.submitted) != 1 || a.submitted[0] != "https://youtu.be/abc" {
		t.Fatalf("url not forwarded: %v", a.submitted)
	}
}

func TestSubmit_BadRequests(t *testing.T) {
	a := &fakeAuditor{}
	h := newTestHandler(t, a)
	if rec := do(t, h, http.MethodPost, "/audit", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400 got %d", rec.Code)
	}

	a.submitErr = auditerr.New(auditerr.KindInvalidInput, "host %q is not an allowed content source", "evil.example.com")
	rec := do(t, h, http.MethodPost, "/audit", `{"url":"https://evil.example.com/v"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid url: expected 400 got %d", rec.Code)
	}
	got := decode[ErrorResponse](t, rec)
	if got.Kind != string(auditerr.KindInvalidInput) || !strings.Contains(got.Error, "evil.example.com") {
		t.Fatalf("unexpected error body: %+v", got)
	}
}

func TestSubmit_InternalErrorHidesDetail(t *testing.T) {
	a := &fakeAuditor{submitErr: errors.New("disk full at /var/lib/secret")}
	rec := do(t, newTestHandler(t, a), http.MethodPost, "/audit", `{"url":"https://youtu.be/abc"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestStatus_Outcomes(t *testing.T) {
	v := verdict.Verdict{Violation: false, Severity: verdict.SeverityNone, Confidence: 0.9, Explanation: "ok"}
	a := &fakeAuditor{tasks: map[string]task.Task{
		"running": {ID: "running", URL: "https://youtu.be/a", Status: task.StatusRetrieving, Step: 3, TotalSteps: 5, CreatedAt: created, UpdatedAt: created},
		"done": {ID: "done", URL: "https://youtu.be/b", Status: task.StatusDone, Step: 5, TotalSteps: 5,
			CreatedAt: created, UpdatedAt: created.Add(42 * time.Second), TerminalAt: created.Add(42 * time.Second), Result: &v},
		"failed": {ID: "failed", URL: "https://youtu.be/c", Status: task.StatusFailed, TotalSteps: 5,
			CreatedAt: created, UpdatedAt: created.Add(time.Second), TerminalAt: created.Add(time.Second),
			Error: &task.Failure{Kind: auditerr.KindExtractionFailed, Stage: "extracting", Message: "no text"}},
	}}
	h := newTestHandler(t, a)

	cases := map[string]string{"running": "pending", "done": "verdict", "failed": "error"}
	for id, outcome := range cases {
		rec := do(t, h, http.MethodGet, "/audit/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", id, rec.Code)
		}
		got := decode[TaskView](t, rec)
		if got.Outcome != outcome {
			t.Fatalf("%s: expected outcome %s got %s", id, outcome, got.Outcome)
		}
		if got.TotalSteps != 5 {
			t.Fatalf("%s: total_steps missing: %+v", id, got)
		}
	}

	done := decode[TaskView](t, do(t, h, http.MethodGet, "/audit/done", ""))
	if done.ElapsedSeconds != 42 || done.Result == nil || done.Result.Explanation != "ok" {
		t.Fatalf("terminal view should freeze elapsed time and carry the verdict: %+v", done)
	}
	failed := decode[TaskView](t, do(t, h, http.MethodGet, "/audit/failed", ""))
	if failed.Error == nil || failed.Error.Kind != auditerr.KindExtractionFailed || failed.Result != nil {
		t.Fatalf("failed view should carry the error only: %+v", failed)
	}
}

func TestStatus_UnknownTask(t *testing.T) {
	rec := do(t, newTestHandler(t, &fakeAuditor{}), http.MethodGet, "/audit/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Kind != string(auditerr.KindNotFound) {
		t.Fatalf("unexpected error body: %+v", got)
	}
}

func TestCancel(t *testing.T) {
	a := &fakeAuditor{tasks: map[string]task.Task{
		"t1": {ID: "t1", URL: "https://youtu.be/a", Status: task.StatusExtracting, TotalSteps: 5, CreatedAt: created, UpdatedAt: created},
	}}
	h := newTestHandler(t, a)
	rec := do(t, h, http.MethodPost, "/audit/t1/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := decode[TaskView](t, rec); !got.CancelRequested {
		t.Fatalf("cancel flag missing: %+v", got)
	}
	if len(a.cancelled) != 1 {
		t.Fatalf("cancel not forwarded")
	}
	if rec := do(t, h, http.MethodPost, "/audit/missing/cancel", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task: expected 404 got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestHandler(t, &fakeAuditor{}), http.MethodDelete, "/audit/t1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	a := &fakeAuditor{health: orchestrator.Health{
		Status:        "degraded",
		KnowledgeBase: retrieval.Stats{Ready: true, Chunks: 12},
		Reasoning:     orchestrator.ReasoningHealth{Backend: "ollama:mistral", Error: "connection refused"},
		Workers:       2,
	}}
	rec := do(t, newTestHandler(t, a), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`"status":"degraded"`, `"chunks":12`, `"backend":"ollama:mistral"`, `"reachable":false`} {
		if !strings.Contains(body, want) {
			t.Fatalf("health body missing %s: %s", want, body)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[auditerr.Kind]int{
		auditerr.KindInvalidInput:   http.StatusBadRequest,
		auditerr.KindNotFound:       http.StatusNotFound,
		auditerr.KindIndexNotReady:  http.StatusServiceUnavailable,
		auditerr.KindLLMUnavailable: http.StatusServiceUnavailable,
		auditerr.KindInternal:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
