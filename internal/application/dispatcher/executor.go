package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/maverika/maverika/internal/domain/task"
)

// Executor performs a task's actual work.
type Executor interface {
	Execute(ctx context.Context, t *task.Task) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t *task.Task) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, t *task.Task) (json.RawMessage, error) {
	return f(ctx, t)
}

// SimulatedExecutor stands in for the LLM-backed execution path.
type SimulatedExecutor struct {
	Delay time.Duration
}

func (e *SimulatedExecutor) Execute(ctx context.Context, t *task.Task) (json.RawMessage, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	result := map[string]interface{}{
		"taskId":     t.ID.String(),
		"assignedTo": t.AssignedTo.String(),
		"type":       t.Metadata.Type,
		"output":     "simulated execution output",
		"time":       time.Now().UTC().Format(time.RFC3339),
	}
	return json.Marshal(result)
}
