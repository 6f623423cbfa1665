package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/domain/task"
)

// Notifier delivers lifecycle messages to EVEs.
type Notifier interface {
	SendMessage(ctx context.Context, m *message.Message) (*message.Message, error)
}

// Orchestrator is the caller-facing task façade: creation, status updates,
// reassignment and distribution, each followed by best-effort notifications.
type Orchestrator struct {
	taskRepo task.Repository
	eveRepo  eve.Repository
	notifier Notifier
	strategy DistributionStrategy
	now      func() time.Time
	logger   zerolog.Logger
}

// NewOrchestrator creates a new orchestrator using round-robin distribution.
func NewOrchestrator(
	taskRepo task.Repository,
	eveRepo eve.Repository,
	notifier Notifier,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		taskRepo: taskRepo,
		eveRepo:  eveRepo,
		notifier: notifier,
		strategy: RoundRobin{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "orchestrator").Logger(),
	}
}

// WithClock replaces the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// WithStrategy replaces the distribution strategy.
func (o *Orchestrator) WithStrategy(strategy DistributionStrategy) *Orchestrator {
	o.strategy = strategy
	return o
}

// CreateTask validates and persists a pending task, then tells the assignee.
func (o *Orchestrator) CreateTask(ctx context.Context, companyID uuid.UUID, in task.CreateInput) (*task.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	worker, err := o.resolveWorker(ctx, companyID, uuid.MustParse(in.AssignedTo))
	if err != nil {
		return nil, err
	}

	t := in.Build(companyID, o.now())
	if err := o.checkDependencies(ctx, t); err != nil {
		return nil, err
	}

	if err := o.taskRepo.Create(ctx, t); err != nil {
		return nil, apperr.Wrap("failed to create task", err)
	}

	o.logger.Info().
		Str("task_id", t.ID.String()).
		Str("eve_id", worker.ID.String()).
		Str("priority", string(t.Priority)).
		Msg("task created")

	o.notify(ctx, &message.Message{
		FromEVEID: senderFor(t.CreatedBy, worker.ID),
		ToEVEID:   worker.ID,
		Content:   fmt.Sprintf("New task assigned: %s", t.Title),
		Type:      message.TypeTask,
		Priority:  message.Priority(t.Priority),
		Metadata:  message.Metadata{TaskID: &t.ID, RequiresResponse: true, Context: taskContext(t)},
	})

	return t, nil
}

// GetTask retrieves a task by ID.
func (o *Orchestrator) GetTask(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	return o.taskRepo.GetByID(ctx, taskID)
}

// ListWorkerTasks returns a worker's queue in creation order.
func (o *Orchestrator) ListWorkerTasks(ctx context.Context, workerID uuid.UUID) ([]*task.Task, error) {
	tasks, err := o.taskRepo.ListByWorker(ctx, workerID)
	if err != nil {
		return nil, apperr.Wrap("failed to list tasks", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task through its lifecycle and reports the new
// state to its creator. Repeating the current status is a no-op.
func (o *Orchestrator) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.Status, result json.RawMessage, errMsg *string) (*task.Task, error) {
	if !status.Valid() || status == task.StatusPending {
		return nil, apperr.Validation("invalid status update", []apperr.FieldError{{
			Field:   "status",
			Message: fmt.Sprintf("must be one of in_progress, completed, failed, cancelled; got %q", status),
		}})
	}
	if len(result) > 0 && !json.Valid(result) {
		return nil, apperr.Validation("invalid status update", []apperr.FieldError{{Field: "result", Message: "must be valid JSON"}})
	}

	current, err := o.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, apperr.Wrap("failed to load task", err)
	}
	if current.Status == status {
		return current, nil
	}
	return o.transition(ctx, current, status, result, errMsg)
}

// StartTask moves a pending task to in_progress. Unlike UpdateTaskStatus it
// fails with task.ErrInvalidTransition when the task is already running, so
// exactly one caller wins the start.
func (o *Orchestrator) StartTask(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	current, err := o.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, apperr.Wrap("failed to load task", err)
	}
	return o.transition(ctx, current, task.StatusInProgress, nil, nil)
}

// transition applies a status change guarded by the repository's
// compare-and-set on the current status, then tracks the worker and
// notifies the creator.
func (o *Orchestrator) transition(ctx context.Context, current *task.Task, status task.Status, result json.RawMessage, errMsg *string) (*task.Task, error) {
	taskID := current.ID
	if !current.CanTransitionTo(status) {
		return nil, transitionError(current.Status, status)
	}

	change := task.StatusChange{Status: status, At: o.now()}
	if status.Terminal() {
		change.Result = result
		change.Error = errMsg
	}
	if err := o.taskRepo.UpdateStatus(ctx, taskID, change); err != nil {
		if errors.Is(err, task.ErrInvalidTransition) {
			return nil, transitionError(current.Status, status)
		}
		return nil, apperr.Wrap("failed to update task status", err)
	}

	updated, err := o.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, apperr.Wrap("failed to reload task", err)
	}

	o.logger.Info().
		Str("task_id", taskID.String()).
		Str("from", string(current.Status)).
		Str("to", string(status)).
		Msg("task status updated")

	o.trackWorker(ctx, updated)

	if creator, err := uuid.Parse(updated.CreatedBy); err == nil && creator != uuid.Nil {
		o.notify(ctx, &message.Message{
			FromEVEID: updated.AssignedTo,
			ToEVEID:   creator,
			Content:   statusSummary(updated),
			Type:      message.TypeStatusUpdate,
			Priority:  message.Priority(updated.Priority),
			Metadata:  message.Metadata{TaskID: &updated.ID, Context: statusContext(updated)},
		})
	}

	return updated, nil
}

// CancelTask cancels a pending task.
func (o *Orchestrator) CancelTask(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	return o.UpdateTaskStatus(ctx, taskID, task.StatusCancelled, nil, nil)
}

// ReassignTask moves a task to another worker, resets it to pending, and
// notifies both the previous and the new assignee.
func (o *Orchestrator) ReassignTask(ctx context.Context, taskID uuid.UUID, newWorkerID uuid.UUID) (*task.Task, error) {
	t, err := o.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, apperr.Wrap("failed to load task", err)
	}
	worker, err := o.resolveWorker(ctx, t.CompanyID, newWorkerID)
	if err != nil {
		return nil, err
	}

	previous := t.AssignedTo
	wasRunning := t.Status == task.StatusInProgress
	if err := o.taskRepo.Reassign(ctx, taskID, newWorkerID, o.now()); err != nil {
		return nil, apperr.Wrap("failed to reassign task", err)
	}
	updated, err := o.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, apperr.Wrap("failed to reload task", err)
	}

	o.logger.Info().
		Str("task_id", taskID.String()).
		Str("from_eve_id", previous.String()).
		Str("to_eve_id", newWorkerID.String()).
		Msg("task reassigned")

	if wasRunning {
		o.releaseWorker(ctx, previous)
	}

	o.notify(ctx, &message.Message{
		FromEVEID: newWorkerID,
		ToEVEID:   previous,
		Content:   fmt.Sprintf("Task %q has been reassigned to %s", updated.Title, worker.Name),
		Type:      message.TypeStatusUpdate,
		Priority:  message.Priority(updated.Priority),
		Metadata:  message.Metadata{TaskID: &updated.ID},
	})
	o.notify(ctx, &message.Message{
		FromEVEID: previous,
		ToEVEID:   newWorkerID,
		Content:   fmt.Sprintf("Task reassigned to you: %s", updated.Title),
		Type:      message.TypeTask,
		Priority:  message.Priority(updated.Priority),
		Metadata:  message.Metadata{TaskID: &updated.ID, RequiresResponse: true, Context: taskContext(updated)},
	})

	return updated, nil
}

// OptimizeTaskDistribution spreads the company's pending tasks over its idle
// workers. With no idle worker it does nothing.
func (o *Orchestrator) OptimizeTaskDistribution(ctx context.Context, companyID uuid.UUID) ([]Assignment, error) {
	workers, err := o.eveRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, apperr.Wrap("failed to list workers", err)
	}
	idle := make([]*eve.EVE, 0, len(workers))
	for _, w := range workers {
		if w.Status == eve.StatusIdle {
			idle = append(idle, w)
		}
	}
	if len(idle) == 0 {
		o.logger.Info().Str("company_id", companyID.String()).Msg("no idle workers; distribution skipped")
		return nil, nil
	}
	return o.Distribute(ctx, companyID, idle)
}

// Distribute plans the company's pending tasks over workers with the
// configured strategy and applies the plan through ReassignTask.
func (o *Orchestrator) Distribute(ctx context.Context, companyID uuid.UUID, workers []*eve.EVE) ([]Assignment, error) {
	if len(workers) == 0 {
		return nil, nil
	}
	pending, err := o.taskRepo.ListPendingByCompany(ctx, companyID)
	if err != nil {
		return nil, apperr.Wrap("failed to list pending tasks", err)
	}

	plan := o.strategy.Plan(pending, workers)
	applied := make([]Assignment, 0, len(plan))
	for _, a := range plan {
		if _, err := o.ReassignTask(ctx, a.TaskID, a.WorkerID); err != nil {
			return applied, err
		}
		applied = append(applied, a)
	}

	o.logger.Info().
		Str("company_id", companyID.String()).
		Str("strategy", o.strategy.Name()).
		Int("tasks", len(applied)).
		Int("workers", len(workers)).
		Msg("task distribution applied")
	return applied, nil
}

func (o *Orchestrator) resolveWorker(ctx context.Context, companyID, workerID uuid.UUID) (*eve.EVE, error) {
	worker, err := o.eveRepo.GetByID(ctx, workerID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.InvalidAssignment(workerID.String(), "worker does not exist")
		}
		return nil, apperr.Wrap("failed to load worker", err)
	}
	if !worker.Addressable(companyID) {
		return nil, apperr.InvalidAssignment(workerID.String(), "worker is not addressable from this company")
	}
	return worker, nil
}

func (o *Orchestrator) checkDependencies(ctx context.Context, t *task.Task) error {
	var c apperr.Collector
	for _, depID := range t.Dependencies {
		dep, err := o.taskRepo.GetByID(ctx, depID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				c.Add("dependencies", "task %s does not exist", depID)
				continue
			}
			return apperr.Wrap("failed to load dependency", err)
		}
		if dep.CompanyID != t.CompanyID {
			c.Add("dependencies", "task %s belongs to another company", depID)
		}
	}
	if err := c.Err("invalid task"); err != nil {
		return err
	}

	lookup := func(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
		dep, err := o.taskRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return dep.Dependencies, nil
	}
	if err := task.CheckAcyclic(ctx, t.ID, t.Dependencies, lookup); err != nil {
		if errors.Is(err, task.ErrDependencyCycle) {
			return apperr.Validation("invalid task", []apperr.FieldError{{Field: "dependencies", Message: err.Error()}})
		}
		return apperr.Wrap("failed to check dependencies", err)
	}
	return nil
}

// trackWorker keeps the assignee's availability and counters in step with
// its task. Failures are logged; the task change stands.
func (o *Orchestrator) trackWorker(ctx context.Context, t *task.Task) {
	w, err := o.eveRepo.GetByID(ctx, t.AssignedTo)
	if err != nil {
		o.logger.Warn().Err(err).Str("eve_id", t.AssignedTo.String()).Msg("failed to load worker for status tracking")
		return
	}
	switch {
	case t.Status == task.StatusInProgress:
		w.Status = eve.StatusBusy
	case t.Status.Terminal():
		if t.Status == task.StatusCompleted {
			w.Performance.TasksCompleted++
		}
		if !o.hasRunningTask(ctx, w.ID) {
			w.Status = eve.StatusIdle
		}
	default:
		return
	}
	w.UpdatedAt = o.now()
	if err := o.eveRepo.Update(ctx, w); err != nil {
		o.logger.Warn().Err(err).Str("eve_id", w.ID.String()).Msg("failed to update worker status")
	}
}

func (o *Orchestrator) releaseWorker(ctx context.Context, workerID uuid.UUID) {
	if o.hasRunningTask(ctx, workerID) {
		return
	}
	w, err := o.eveRepo.GetByID(ctx, workerID)
	if err != nil {
		o.logger.Warn().Err(err).Str("eve_id", workerID.String()).Msg("failed to load worker for status tracking")
		return
	}
	if w.Status != eve.StatusBusy {
		return
	}
	w.Status = eve.StatusIdle
	w.UpdatedAt = o.now()
	if err := o.eveRepo.Update(ctx, w); err != nil {
		o.logger.Warn().Err(err).Str("eve_id", w.ID.String()).Msg("failed to update worker status")
	}
}

func (o *Orchestrator) hasRunningTask(ctx context.Context, workerID uuid.UUID) bool {
	current, err := o.taskRepo.CurrentForWorker(ctx, workerID)
	if err != nil {
		o.logger.Warn().Err(err).Str("eve_id", workerID.String()).Msg("failed to load current task")
		return false
	}
	return current != nil && current.Status == task.StatusInProgress
}

// notify sends a lifecycle message. Delivery is best-effort.
func (o *Orchestrator) notify(ctx context.Context, m *message.Message) {
	if _, err := o.notifier.SendMessage(ctx, m); err != nil {
		ev := o.logger.Warn().Err(err).
			Str("to_eve_id", m.ToEVEID.String()).
			Str("type", string(m.Type))
		if m.Metadata.TaskID != nil {
			ev = ev.Str("task_id", m.Metadata.TaskID.String())
		}
		ev.Msg("failed to send task notification")
	}
}

func transitionError(from, to task.Status) error {
	return &apperr.Error{
		Kind:   apperr.KindValidation,
		Msg:    "invalid status update",
		Fields: []apperr.FieldError{{Field: "status", Message: fmt.Sprintf("cannot move from %s to %s", from, to)}},
		Err:    task.ErrInvalidTransition,
	}
}

// senderFor attributes a message to the task creator when the creator is an
// EVE, and to the assignee otherwise.
func senderFor(createdBy string, fallback uuid.UUID) uuid.UUID {
	if id, err := uuid.Parse(createdBy); err == nil && id != uuid.Nil {
		return id
	}
	return fallback
}

func statusSummary(t *task.Task) string {
	switch t.Status {
	case task.StatusCompleted:
		return fmt.Sprintf("Task %q completed", t.Title)
	case task.StatusFailed:
		if t.Error != nil {
			return fmt.Sprintf("Task %q failed: %s", t.Title, *t.Error)
		}
		return fmt.Sprintf("Task %q failed", t.Title)
	case task.StatusCancelled:
		return fmt.Sprintf("Task %q cancelled", t.Title)
	}
	return fmt.Sprintf("Task %q is now %s", t.Title, t.Status)
}

func taskContext(t *task.Task) json.RawMessage {
	raw, _ := json.Marshal(map[string]interface{}{
		"title":       t.Title,
		"description": t.Description,
		"priority":    t.Priority,
		"type":        t.Metadata.Type,
		"deadline":    t.Deadline,
	})
	return raw
}

func statusContext(t *task.Task) json.RawMessage {
	raw, _ := json.Marshal(map[string]interface{}{
		"status": t.Status,
		"result": t.Result,
		"error":  t.Error,
	})
	return raw
}
