package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/message"
)

// MessageRepository implements message.Repository.
type MessageRepository struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]*message.Message
	order    []uuid.UUID
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{messages: make(map[uuid.UUID]*message.Message)}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.ID] = m.Clone()
	r.order = append(r.order, m.ID)
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[messageID]
	if !ok {
		return nil, apperr.NotFound("message", messageID.String())
	}
	return m.Clone(), nil
}

func (r *MessageRepository) ListForWorker(ctx context.Context, eveID uuid.UUID, opts message.ListOptions) ([]*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*message.Message
	skipped := 0
	for i := len(r.order) - 1; i >= 0; i-- {
		m := r.messages[r.order[i]]
		if !m.Involves(eveID) {
			continue
		}
		if opts.Status != nil && m.Status != *opts.Status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, m.Clone())
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (r *MessageRepository) Update(ctx context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; !ok {
		return apperr.NotFound("message", m.ID.String())
	}
	r.messages[m.ID] = m.Clone()
	return nil
}
