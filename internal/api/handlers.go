// Package api serves the audit HTTP interface: submit, status, cancel and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/orchestrator"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
)

const maxBodyBytes = 1 << 20

// #region auditor

// Auditor is the orchestrator surface the HTTP layer needs.
type Auditor interface {
	Submit(ctx context.Context, rawURL string) (string, error)
	Status(id string) (task.Task, error)
	Cancel(id string) (task.Task, error)
	Health(ctx context.Context) orchestrator.Health
}

// #endregion

// #region handler

type handler struct {
	auditor Auditor
	now     func() time.Time
}

// NewHandler routes the audit endpoints to auditor.
func NewHandler(auditor Auditor) (http.Handler, error) {
	if auditor == nil {
		return nil, errors.New("api handler requires an auditor")
	}
	h := &handler{auditor: auditor, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /audit", h.handleSubmit)
	mux.HandleFunc("GET /audit/{id}", h.handleStatus)
	mux.HandleFunc("POST /audit/{id}/cancel", h.handleCancel)
	mux.HandleFunc("GET /health", h.handleHealth)
	return withRequestLog(mux), nil
}

// #endregion

// #region routes

func (h *handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, auditerr.KindInvalidInput, "read request body")
		return
	}
	var req SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		writeError(w, http.StatusBadRequest, auditerr.KindInvalidInput, "request body must be JSON like {\"url\": \"...\"}")
		return
	}

	id, err := h.auditor.Submit(r.Context(), req.URL)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id, Status: task.StatusQueued})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.auditor.Status(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t, h.now()))
}

func (h *handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.auditor.Cancel(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t, h.now()))
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auditor.Health(r.Context()))
}

// #endregion

// #region responses

// statusFor maps an error kind to the HTTP status returned to clients.
func statusFor(kind auditerr.Kind) int {
	switch kind {
	case auditerr.KindInvalidInput:
		return http.StatusBadRequest
	case auditerr.KindNotFound:
		return http.StatusNotFound
	case auditerr.KindIndexNotReady, auditerr.KindLLMUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	kind := auditerr.KindOf(err)
	if kind == "" {
		kind = auditerr.KindInternal
	}
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[API] internal error: %v", err)
		msg = "internal error"
	}
	writeError(w, status, kind, msg)
}

func writeError(w http.ResponseWriter, status int, kind auditerr.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: strings.TrimSpace(message), Kind: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		http.Error(w, `{"error":"encode response","kind":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(encoded, '\n'))
}

// #endregion

// #region request-log

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[API] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// #endregion
