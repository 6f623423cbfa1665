package eve

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines EVE persistence. GetByID returns an apperr NotFound
// error when the EVE does not exist.
type Repository interface {
	Create(ctx context.Context, e *EVE) error
	GetByID(ctx context.Context, eveID uuid.UUID) (*EVE, error)
	// ListByCompany returns EVEs in creation order.
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*EVE, error)
	Update(ctx context.Context, e *EVE) error
}
