// Package dispatcher promotes eligible pending tasks to in-progress and
// drives them to a terminal state through an Executor.
//
// A single dispatcher per store is assumed. Running two against the same
// durable store would double-dispatch; there is no leader election.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/task"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Second

// StatusUpdater applies lifecycle transitions, including their notifications.
// StartTask must fail when the task is no longer pending.
type StatusUpdater interface {
	StartTask(ctx context.Context, taskID uuid.UUID) (*task.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.Status, result json.RawMessage, errMsg *string) (*task.Task, error)
}

// Dispatcher scans pending tasks on a fixed interval.
type Dispatcher struct {
	taskRepo task.Repository
	updater  StatusUpdater
	executor Executor
	metrics  *Metrics
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	scanning atomic.Bool
	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	// warned remembers stuck tasks already reported.
	warned map[uuid.UUID]bool
	wg     *conc.WaitGroup
}

// New creates a dispatcher. A nil metrics gets unregistered collectors.
func New(taskRepo task.Repository, updater StatusUpdater, executor Executor, metrics *Metrics, interval time.Duration, logger zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		taskRepo: taskRepo,
		updater:  updater,
		executor: executor,
		metrics:  metrics,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "dispatcher").Logger(),
		inFlight: make(map[uuid.UUID]struct{}),
		warned:   make(map[uuid.UUID]bool),
		wg:       conc.NewWaitGroup(),
	}
}

// WithClock replaces the time source used for schedule gating.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run ticks until ctx is cancelled, then waits for in-flight executions.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.Wait()
			d.logger.Info().Msg("dispatcher stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Tick(ctx); err != nil {
				d.logger.Error().Err(err).Msg("dispatch tick failed")
			}
		}
	}
}

// Tick performs one scan and returns how many tasks were picked up. A tick
// that starts while another is still scanning is skipped.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	if !d.scanning.CompareAndSwap(false, true) {
		d.metrics.ticksSkipped.Inc()
		d.logger.Debug().Msg("previous tick still running; skipped")
		return 0, nil
	}
	defer d.scanning.Store(false)

	pending, err := d.taskRepo.ListByStatus(ctx, task.StatusPending)
	if err != nil {
		return 0, apperr.Wrap("failed to list pending tasks", err)
	}

	now := d.now()
	stuck := task.Deadlocked(pending)
	statuses := make(map[uuid.UUID]task.Status, len(pending))
	for _, t := range pending {
		statuses[t.ID] = t.Status
	}
	d.forgetWarnings(statuses)

	picked := 0
	for _, queue := range queuesByWorker(pending) {
		for _, t := range queue {
			if d.isInFlight(t.ID) {
				continue
			}
			if stuck[t.ID] {
				d.warnOnce(t.ID, "task is part of or behind a dependency cycle")
				continue
			}
			if !d.eligible(ctx, t, now, statuses) {
				continue
			}
			if d.pickUp(ctx, t) {
				picked++
			}
		}
	}
	return picked, nil
}

// Wait blocks until every in-flight execution has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// InFlight returns the number of executing tasks.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

// eligible applies the schedule and dependency gates.
func (d *Dispatcher) eligible(ctx context.Context, t *task.Task, now time.Time, statuses map[uuid.UUID]task.Status) bool {
	if t.Status != task.StatusPending || !t.DueAt(now) {
		return false
	}
	for _, depID := range t.Dependencies {
		status, ok := statuses[depID]
		if !ok {
			dep, err := d.taskRepo.GetByID(ctx, depID)
			if err != nil {
				d.logger.Warn().Err(err).
					Str("task_id", t.ID.String()).
					Str("dependency_id", depID.String()).
					Msg("failed to resolve dependency")
				return false
			}
			status = dep.Status
			statuses[depID] = status
		}
		if status == task.StatusCompleted {
			continue
		}
		if status == task.StatusFailed || status == task.StatusCancelled {
			d.warnOnce(t.ID, "dependency "+depID.String()+" ended "+string(status)+"; task cannot start")
		}
		return false
	}
	return true
}

func (d *Dispatcher) pickUp(ctx context.Context, t *task.Task) bool {
	d.mu.Lock()
	if _, busy := d.inFlight[t.ID]; busy {
		d.mu.Unlock()
		return false
	}
	d.inFlight[t.ID] = struct{}{}
	d.mu.Unlock()

	started, err := d.updater.StartTask(ctx, t.ID)
	if err != nil {
		d.release(t.ID)
		if errors.Is(err, task.ErrInvalidTransition) {
			d.logger.Debug().Str("task_id", t.ID.String()).Msg("task left pending before pickup")
			return false
		}
		d.logger.Warn().Err(err).Str("task_id", t.ID.String()).Msg("failed to start task")
		return false
	}
	d.metrics.observe("picked")
	d.metrics.inFlight.Inc()

	d.logger.Info().
		Str("task_id", t.ID.String()).
		Str("eve_id", t.AssignedTo.String()).
		Msg("task picked up")

	execCtx := context.WithoutCancel(ctx)
	d.wg.Go(func() { d.execute(execCtx, started) })
	return true
}

// execute runs the task and records the outcome. A panicking executor
// fails the task rather than the loop.
func (d *Dispatcher) execute(ctx context.Context, t *task.Task) {
	defer d.release(t.ID)
	defer d.metrics.inFlight.Dec()

	var result json.RawMessage
	var execErr error
	var catcher panics.Catcher
	catcher.Try(func() {
		result, execErr = d.executor.Execute(ctx, t)
	})
	if r := catcher.Recovered(); r != nil {
		execErr = r.AsError()
	}

	if execErr != nil {
		msg := execErr.Error()
		if _, err := d.updater.UpdateTaskStatus(ctx, t.ID, task.StatusFailed, nil, &msg); err != nil {
			d.logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to record task failure")
			return
		}
		d.metrics.observe("failed")
		d.logger.Warn().Str("task_id", t.ID.String()).Str("error", msg).Msg("task failed")
		return
	}

	if _, err := d.updater.UpdateTaskStatus(ctx, t.ID, task.StatusCompleted, result, nil); err != nil {
		d.logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to record task completion")
		return
	}
	d.metrics.observe("completed")
	d.logger.Info().Str("task_id", t.ID.String()).Msg("task completed")
}

func (d *Dispatcher) isInFlight(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[id]
	return ok
}

func (d *Dispatcher) release(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}

func (d *Dispatcher) warnOnce(id uuid.UUID, reason string) {
	d.mu.Lock()
	seen := d.warned[id]
	d.warned[id] = true
	d.mu.Unlock()
	if !seen {
		d.logger.Warn().Str("task_id", id.String()).Msg(reason)
	}
}

// forgetWarnings drops warnings for tasks that are no longer pending, so a
// task that comes back through reassignment is reported again.
func (d *Dispatcher) forgetWarnings(pending map[uuid.UUID]task.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.warned {
		if _, ok := pending[id]; !ok {
			delete(d.warned, id)
		}
	}
}

// queuesByWorker groups tasks per assignee, keeping creation order inside
// each queue and first-seen order across queues.
func queuesByWorker(tasks []*task.Task) [][]*task.Task {
	index := make(map[uuid.UUID]int)
	var queues [][]*task.Task
	for _, t := range tasks {
		i, ok := index[t.AssignedTo]
		if !ok {
			i = len(queues)
			index[t.AssignedTo] = i
			queues = append(queues, nil)
		}
		queues[i] = append(queues[i], t)
	}
	return queues
}
