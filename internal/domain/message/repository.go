package message

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines message persistence.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*Message, error)
	// ListForWorker returns messages sent or received by the worker, newest first.
	ListForWorker(ctx context.Context, eveID uuid.UUID, opts ListOptions) ([]*Message, error)
	Update(ctx context.Context, m *Message) error
}
