package task

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines task persistence. GetByID returns an apperr NotFound
// error when the task does not exist.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, taskID uuid.UUID) (*Task, error)
	// ListByWorker returns a worker's tasks in creation order.
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*Task, error)
	// ListByStatus returns tasks in creation order.
	ListByStatus(ctx context.Context, status Status) ([]*Task, error)
	// ListPendingByCompany orders by priority desc, then creation time.
	ListPendingByCompany(ctx context.Context, companyID uuid.UUID) ([]*Task, error)
	// CurrentForWorker returns the oldest non-terminal task, or nil.
	CurrentForWorker(ctx context.Context, workerID uuid.UUID) (*Task, error)
	UpdateStatus(ctx context.Context, taskID uuid.UUID, change StatusChange) error
	Reassign(ctx context.Context, taskID uuid.UUID, workerID uuid.UUID, at time.Time) error
}
