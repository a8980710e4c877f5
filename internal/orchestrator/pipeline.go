package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/media"
	"github.com/danielpatrickdp/brand-guardian/internal/task"
	"github.com/danielpatrickdp/brand-guardian/internal/verdict"
)

const releaseTimeout = 30 * time.Second

// #region worker

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		id, ok := o.queue.pop(o.ctx)
		if !ok {
			return
		}
		o.run(o.ctx, id)
	}
}

// run drives one task from QUEUED to a terminal status.
func (o *Orchestrator) run(ctx context.Context, id string) {
	t, err := o.deps.Store.Get(id)
	if err != nil {
		log.Printf("[ORCH] task=%s vanished before start: %v", short(id), err)
		return
	}
	if t.Status != task.StatusQueued {
		return // cancelled while queued
	}

	start := time.Now()
	final, err := o.execute(ctx, t)
	if errors.Is(err, errStopped) {
		return // finished by a concurrent cancel
	}
	if err != nil {
		log.Printf("[ORCH] task=%s could not be recorded: %v", short(id), err)
		return
	}
	o.finish(final)
	if final.Error != nil {
		log.Printf("[ORCH] task=%s FAILED kind=%s stage=%s in %s", short(id), final.Error.Kind, final.Error.Stage, time.Since(start).Round(time.Millisecond))
	} else {
		log.Printf("[ORCH] task=%s DONE violation=%v severity=%s in %s", short(id), final.Result.Violation, final.Result.Severity, time.Since(start).Round(time.Millisecond))
	}
}

// #endregion

// #region execute

// errStopped means the task became terminal underneath the worker.
var errStopped = errors.New("task no longer running")

// execute runs the stages in order. Stage errors are recorded on the task; the
// returned error is only for failures to record anything at all.
func (o *Orchestrator) execute(ctx context.Context, t task.Task) (task.Task, error) {
	id := t.ID

	// extracting: fetch media, then transcript and on-screen text
	if err := o.advance(ctx, id, task.StatusExtracting, 1, "downloading media"); err != nil {
		return o.stageFailed(ctx, id, stageExtracting, err)
	}
	handle, err := o.deps.Fetcher.Fetch(ctx, t.URL)
	if err != nil {
		if auditerr.KindOf(err) == "" {
			err = auditerr.Wrap(err, auditerr.KindDownloadFailed)
		}
		return o.stageFailed(ctx, id, stageExtracting, err)
	}
	defer o.release(id, handle)

	if err := o.progress(ctx, id, 2, "transcribing audio and reading on-screen text"); err != nil {
		return o.stageFailed(ctx, id, stageExtracting, err)
	}
	extracted, err := o.deps.Extractor.Extract(ctx, handle)
	if err != nil {
		return o.stageFailed(ctx, id, stageExtracting, err)
	}
	evidence := extracted.Evidence

	// retrieving
	if err := o.advanceWith(ctx, id, task.StatusRetrieving, 3, "retrieving policy rules", extracted.Warnings); err != nil {
		return o.stageFailed(ctx, id, stageRetrieving, err)
	}
	chunks, err := o.deps.Retriever.Retrieve(ctx, evidence.MergedText, o.config.TopK, o.config.MinScore)
	if err != nil {
		return o.stageFailed(ctx, id, stageRetrieving, err)
	}

	// reasoning
	msg := fmt.Sprintf("generating verdict against %d policy chunks", len(chunks))
	if err := o.advance(ctx, id, task.StatusReasoning, 4, msg); err != nil {
		return o.stageFailed(ctx, id, stageReasoning, err)
	}
	v, err := o.deps.Generator.Generate(ctx, evidence.MergedText, chunks)
	if err != nil {
		return o.stageFailed(ctx, id, stageReasoning, err)
	}
	return o.complete(id, v)
}

// #endregion

// #region transitions

// checkpoint runs before every stage: a cancel request or a stopping service
// fails the task instead of starting the stage.
func (o *Orchestrator) checkpoint(ctx context.Context, id string) error {
	t, err := o.deps.Store.Get(id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return errStopped
	}
	if t.CancelRequested {
		return auditerr.New(auditerr.KindCancelled, "cancelled by request")
	}
	if ctx.Err() != nil {
		return auditerr.New(auditerr.KindCancelled, "service shutting down")
	}
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, id string, to task.Status, step int, progress string) error {
	return o.advanceWith(ctx, id, to, step, progress, nil)
}

func (o *Orchestrator) advanceWith(ctx context.Context, id string, to task.Status, step int, progress string, warnings []string) error {
	if err := o.checkpoint(ctx, id); err != nil {
		return err
	}
	_, err := o.deps.Store.Update(id, func(t *task.Task) error {
		t.Status = to
		t.Step = step
		t.Progress = progress
		t.Warnings = append(t.Warnings, warnings...)
		return nil
	})
	if errors.Is(err, task.ErrTerminal) {
		return errStopped
	}
	if err == nil {
		log.Printf("[ORCH] task=%s %s (%d/%d)", short(id), to, step, totalSteps)
	}
	return err
}

// progress updates the step within the current status.
func (o *Orchestrator) progress(ctx context.Context, id string, step int, progress string) error {
	if err := o.checkpoint(ctx, id); err != nil {
		return err
	}
	_, err := o.deps.Store.Update(id, func(t *task.Task) error {
		t.Step = step
		t.Progress = progress
		return nil
	})
	if errors.Is(err, task.ErrTerminal) {
		return errStopped
	}
	return err
}

// stageFailed records err on the task as a FAILED transition at stage.
func (o *Orchestrator) stageFailed(ctx context.Context, id, stage string, err error) (task.Task, error) {
	if errors.Is(err, errStopped) {
		return task.Task{}, errStopped
	}
	if ctx.Err() != nil && !auditerr.Is(err, auditerr.KindCancelled) {
		err = auditerr.Wrap(fmt.Errorf("service shutting down: %w", err), auditerr.KindCancelled)
	}
	failure := task.FailureFromError(auditerr.WithStage(err, stage))

	t, updErr := o.deps.Store.Update(id, func(t *task.Task) error {
		t.Status = task.StatusFailed
		t.Progress = fmt.Sprintf("failed during %s", stage)
		t.Error = failure
		return nil
	})
	if errors.Is(updErr, task.ErrTerminal) {
		return task.Task{}, errStopped
	}
	return t, updErr
}

func (o *Orchestrator) complete(id string, v verdict.Verdict) (task.Task, error) {
	t, err := o.deps.Store.Update(id, func(t *task.Task) error {
		t.Status = task.StatusDone
		t.Step = totalSteps
		t.Progress = "done"
		t.Result = &v
		return nil
	})
	if errors.Is(err, task.ErrTerminal) {
		return task.Task{}, errStopped
	}
	return t, err
}

// release deletes fetched media regardless of how the task ended.
func (o *Orchestrator) release(id string, h media.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := o.deps.Fetcher.Release(ctx, h); err != nil {
		log.Printf("[ORCH] task=%s media release failed: %v", short(id), err)
	}
}

// #endregion
