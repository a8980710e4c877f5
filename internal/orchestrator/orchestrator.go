package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/events"
	"github.com/danielpatrickdp/brand-guardian/internal/media"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
	"github.com/google/uuid"
)

// #endregion

// #region orchestrator-struct

// Orchestrator owns the audit task lifecycle: it accepts submissions, runs each
// task through fetch, extraction, retrieval and reasoning on a bounded worker
// pool, and answers status queries from the task store.
type Orchestrator struct {
	config Config
	deps   Deps
	queue  *taskQueue

	inflightMu sync.Mutex
	inflight   map[string]string // normalized url -> task id, non-terminal only

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	stopped     bool
}

// #endregion

// #region constructor

// New validates the configuration and dependencies. Call Start before Submit.
func New(config Config, deps Deps) (*Orchestrator, error) {
	if config.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be at least 1, got %d", config.MaxConcurrent)
	}
	if config.TopK < 1 {
		return nil, fmt.Errorf("top k must be at least 1, got %d", config.TopK)
	}
	if deps.Store == nil || deps.Fetcher == nil || deps.Extractor == nil || deps.Retriever == nil || deps.Generator == nil {
		return nil, fmt.Errorf("orchestrator requires store, fetcher, extractor, retriever and generator")
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewLogEmitter()
	}
	return &Orchestrator{
		config:   config,
		deps:     deps,
		queue:    newTaskQueue(),
		inflight: make(map[string]string),
	}, nil
}

// #endregion

// #region lifecycle

// Start launches the worker pool and the eviction janitor.
func (o *Orchestrator) Start(ctx context.Context) {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	if o.running || o.stopped {
		return
	}
	o.recoverInterrupted()
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.running = true

	for i := 0; i < o.config.MaxConcurrent; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	if o.config.TaskTTL > 0 && o.config.EvictInterval > 0 {
		o.wg.Add(1)
		go o.janitor()
	}
	log.Printf("[ORCH] started workers=%d ttl=%s", o.config.MaxConcurrent, o.config.TaskTTL)
}

// Stop cancels in-flight work, waits for the workers, and fails every task still
// queued with a cancellation error.
func (o *Orchestrator) Stop() {
	o.lifecycleMu.Lock()
	if !o.running {
		o.stopped = true
		o.lifecycleMu.Unlock()
		return
	}
	o.running = false
	o.stopped = true
	o.cancel()
	o.lifecycleMu.Unlock()

	o.wg.Wait()
	for _, id := range o.queue.drain() {
		o.failQueued(id, "service shutting down")
	}
	log.Printf("[ORCH] stopped")
}

// recoverInterrupted fails tasks a previous process left non-terminal in a
// durable store. Nothing of this process has been submitted yet.
func (o *Orchestrator) recoverInterrupted() {
	failed, err := task.FailInterrupted(o.deps.Store)
	if err != nil {
		log.Printf("[ORCH] recovering interrupted tasks: %v", err)
	}
	for _, t := range failed {
		log.Printf("[ORCH] task=%s FAILED at %s: %s", short(t.ID), t.Error.Stage, task.InterruptedMessage)
		o.finish(t)
	}
}

// #endregion

// #region submit

// Submit validates rawURL, records a QUEUED task and enqueues it. It returns as
// soon as the task is queued. With deduplication on, a URL that already has a
// non-terminal task returns that task's id.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string) (string, error) {
	u, err := media.ValidateReference(rawURL, o.config.AllowedHosts)
	if err != nil {
		return "", err
	}
	ref := u.String()

	// Held until the task is queued so Stop cannot drain before the push.
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	if !o.running {
		return "", auditerr.New(auditerr.KindInternal, "orchestrator is not accepting audits")
	}

	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	if o.config.Dedupe {
		if id, ok := o.inflight[ref]; ok {
			log.Printf("[ORCH] task=%s reused for duplicate submission %s", short(id), ref)
			return id, nil
		}
	}

	now := time.Now().UTC()
	t := task.Task{
		ID:         uuid.NewString(),
		URL:        ref,
		Status:     task.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
		Progress:   "queued",
		TotalSteps: totalSteps,
	}
	if err := o.deps.Store.Create(t); err != nil {
		return "", auditerr.Wrap(fmt.Errorf("create task: %w", err), auditerr.KindInternal)
	}
	o.inflight[ref] = t.ID
	o.queue.push(t.ID)
	log.Printf("[ORCH] task=%s queued url=%s depth=%d", short(t.ID), ref, o.queue.len())
	return t.ID, nil
}

// #endregion

// #region status

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(id string) (task.Task, error) {
	return o.deps.Store.Get(id)
}

// Transitions returns the recorded status changes of the task.
func (o *Orchestrator) Transitions(id string) ([]task.Transition, error) {
	return o.deps.Store.Transitions(id)
}

// #endregion

// #region cancel

// Cancel flags the task for cancellation. A QUEUED task fails at once; a running
// task fails at its next stage boundary. Cancelling a terminal task is a no-op.
func (o *Orchestrator) Cancel(id string) (task.Task, error) {
	t, err := o.deps.Store.Update(id, func(t *task.Task) error {
		t.CancelRequested = true
		if t.Status == task.StatusQueued {
			t.Status = task.StatusFailed
			t.Progress = "cancelled"
			t.Error = &task.Failure{Kind: auditerr.KindCancelled, Stage: stageQueued, Message: "cancelled before start"}
		}
		return nil
	})
	if errors.Is(err, task.ErrTerminal) {
		return o.deps.Store.Get(id)
	}
	if err != nil {
		return task.Task{}, err
	}
	log.Printf("[ORCH] task=%s cancel requested status=%s", short(id), t.Status)
	if t.Status.Terminal() {
		o.finish(t)
	}
	return t, nil
}

// #endregion

// #region health

// Health reports knowledge-base readiness and reasoning reachability.
func (o *Orchestrator) Health(ctx context.Context) Health {
	h := Health{
		Status:        "ok",
		KnowledgeBase: o.deps.Retriever.Stats(),
		QueueDepth:    o.queue.len(),
		Workers:       o.config.MaxConcurrent,
	}
	if o.deps.Reasoner != nil {
		h.Reasoning.Backend = o.deps.Reasoner.Name()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := o.deps.Reasoner.Ping(pingCtx); err != nil {
			h.Reasoning.Error = err.Error()
		} else {
			h.Reasoning.Reachable = true
		}
	}
	if !h.KnowledgeBase.Ready || !h.Reasoning.Reachable {
		h.Status = "degraded"
	}
	return h
}

// #endregion

// #region janitor

func (o *Orchestrator) janitor() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.config.EvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case now := <-ticker.C:
			o.evict(now)
		}
	}
}

func (o *Orchestrator) evict(now time.Time) {
	ids, err := o.deps.Store.EvictExpired(now, o.config.TaskTTL)
	if err != nil {
		log.Printf("[ORCH] eviction sweep failed: %v", err)
		return
	}
	for _, id := range ids {
		log.Printf("[ORCH] task=%s evicted after ttl %s", short(id), o.config.TaskTTL)
	}
}

// #endregion

// #region finish

// finish releases the dedupe slot of a terminal task and emits its event.
func (o *Orchestrator) finish(t task.Task) {
	o.inflightMu.Lock()
	if o.inflight[t.URL] == t.ID {
		delete(o.inflight, t.URL)
	}
	o.inflightMu.Unlock()

	ev := events.AuditEvent{
		Timestamp:        t.UpdatedAt.UTC().Format(time.RFC3339),
		TaskID:           t.ID,
		URL:              t.URL,
		Status:           string(t.Status),
		DurationMs:       t.TerminalAt.Sub(t.CreatedAt).Milliseconds(),
		Warnings:         len(t.Warnings),
		IndexFingerprint: o.deps.Retriever.Stats().Fingerprint,
	}
	if t.Result != nil {
		ev.Outcome = "verdict"
		ev.Violation = t.Result.Violation
		ev.Severity = string(t.Result.Severity)
		ev.Confidence = t.Result.Confidence
		ev.InsufficientEvidence = t.Result.InsufficientEvidence
	}
	if t.Error != nil {
		ev.Outcome = "error"
		ev.ErrorKind = string(t.Error.Kind)
		ev.ErrorStage = t.Error.Stage
	}
	o.deps.Emitter.Emit(ev)
}

// failQueued fails a task that never started.
func (o *Orchestrator) failQueued(id, reason string) {
	t, err := o.deps.Store.Update(id, func(t *task.Task) error {
		if t.Status != task.StatusQueued {
			return nil
		}
		t.Status = task.StatusFailed
		t.Progress = "cancelled"
		t.Error = &task.Failure{Kind: auditerr.KindCancelled, Stage: stageQueued, Message: reason}
		return nil
	})
	if err != nil {
		if !errors.Is(err, task.ErrTerminal) {
			log.Printf("[ORCH] task=%s could not be failed: %v", short(id), err)
		}
		return
	}
	if t.Status.Terminal() {
		o.finish(t)
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion
