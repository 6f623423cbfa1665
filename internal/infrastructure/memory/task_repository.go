// Package memory provides in-process repositories. They back the in-memory
// queue mode and the behavior tests of the application services.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/task"
)

// TaskRepository implements task.Repository.
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*task.Task
	// order records insertion so equal created_at values stay FIFO.
	order []uuid.UUID
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[uuid.UUID]*task.Task)}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.ID]; exists {
		return apperr.New(apperr.KindOrchestration, "task already exists: "+t.ID.String(), nil)
	}
	r.tasks[t.ID] = t.Clone()
	r.order = append(r.order, t.ID)
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, apperr.NotFound("task", taskID.String())
	}
	return t.Clone(), nil
}

func (r *TaskRepository) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*task.Task, error) {
	return r.filter(func(t *task.Task) bool { return t.AssignedTo == workerID }), nil
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	return r.filter(func(t *task.Task) bool { return t.Status == status }), nil
}

func (r *TaskRepository) ListPendingByCompany(ctx context.Context, companyID uuid.UUID) ([]*task.Task, error) {
	out := r.filter(func(t *task.Task) bool {
		return t.CompanyID == companyID && t.Status == task.StatusPending
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out, nil
}

func (r *TaskRepository) CurrentForWorker(ctx context.Context, workerID uuid.UUID) (*task.Task, error) {
	tasks := r.filter(func(t *task.Task) bool {
		return t.AssignedTo == workerID && !t.Status.Terminal()
	})
	// an in-progress task wins over queued ones
	for _, t := range tasks {
		if t.Status == task.StatusInProgress {
			return t, nil
		}
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, taskID uuid.UUID, change task.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return apperr.NotFound("task", taskID.String())
	}
	return t.Apply(change)
}

func (r *TaskRepository) Reassign(ctx context.Context, taskID uuid.UUID, workerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return apperr.NotFound("task", taskID.String())
	}
	t.Reassign(workerID, at)
	return nil
}

// filter returns matching tasks in creation order.
func (r *TaskRepository) filter(match func(*task.Task) bool) []*task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*task.Task
	for _, id := range r.order {
		t := r.tasks[id]
		if match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
