package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
)

// #region recover

// InterruptedMessage is recorded on tasks left non-terminal by a previous process.
const InterruptedMessage = "interrupted by restart"

// FailInterrupted moves every non-terminal task in s to FAILED with a cancelled
// failure at the stage it had reached. Call it before any worker runs; tasks in
// a durable store that were QUEUED or in flight when the last process exited
// would otherwise never finish. It returns the failed tasks.
func FailInterrupted(s Store) ([]Task, error) {
	tasks, err := s.List()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var failed []Task
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		next, err := s.Update(t.ID, func(cur *Task) error {
			cur.Error = &Failure{
				Kind:    auditerr.KindCancelled,
				Stage:   strings.ToLower(string(cur.Status)),
				Message: InterruptedMessage,
			}
			cur.Status = StatusFailed
			cur.Progress = "cancelled"
			return nil
		})
		if errors.Is(err, ErrTerminal) {
			continue
		}
		if err != nil {
			return failed, fmt.Errorf("fail interrupted task %s: %w", t.ID, err)
		}
		failed = append(failed, next)
	}
	return failed, nil
}

// #endregion recover
