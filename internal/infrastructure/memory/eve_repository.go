package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/eve"
)

// EVERepository implements eve.Repository.
type EVERepository struct {
	mu    sync.RWMutex
	eves  map[uuid.UUID]*eve.EVE
	order []uuid.UUID
}

func NewEVERepository() *EVERepository {
	return &EVERepository{eves: make(map[uuid.UUID]*eve.EVE)}
}

func (r *EVERepository) Create(ctx context.Context, e *eve.EVE) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.eves[e.ID]; exists {
		return apperr.New(apperr.KindOrchestration, "eve already exists: "+e.ID.String(), nil)
	}
	r.eves[e.ID] = e.Clone()
	r.order = append(r.order, e.ID)
	return nil
}

func (r *EVERepository) GetByID(ctx context.Context, eveID uuid.UUID) (*eve.EVE, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.eves[eveID]
	if !ok {
		return nil, apperr.NotFound("eve", eveID.String())
	}
	return e.Clone(), nil
}

func (r *EVERepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*eve.EVE, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*eve.EVE
	for _, id := range r.order {
		if e := r.eves[id]; e.CompanyID == companyID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *EVERepository) Update(ctx context.Context, e *eve.EVE) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.eves[e.ID]; !ok {
		return apperr.NotFound("eve", e.ID.String())
	}
	r.eves[e.ID] = e.Clone()
	return nil
}
