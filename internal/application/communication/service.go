package communication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/infrastructure/pubsub"
)

// Bus is the pub/sub primitive behind message subscriptions.
type Bus interface {
	Publish(m *message.Message)
	Subscribe(workerID uuid.UUID, handler pubsub.Handler) func()
}

// Service is the message bus between EVEs.
type Service struct {
	repo   message.Repository
	bus    Bus
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a communication service.
func NewService(repo message.Repository, bus Bus, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("service", "communication").Logger(),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SendMessage validates and stores m with status sent, then notifies
// subscribers of the recipient.
func (s *Service) SendMessage(ctx context.Context, m *message.Message) (*message.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	stored := m.Clone()
	stored.MarkSent(s.now())
	stored.DeliveredAt, stored.ReadAt, stored.ProcessedAt = nil, nil, nil
	if err := s.repo.Create(ctx, stored); err != nil {
		return nil, apperr.Communication("failed to store message", err)
	}
	s.bus.Publish(stored)

	s.logger.Debug().
		Str("message_id", stored.ID.String()).
		Str("from_eve_id", stored.FromEVEID.String()).
		Str("to_eve_id", stored.ToEVEID.String()).
		Str("type", string(stored.Type)).
		Msg("message sent")
	return stored, nil
}

// GetMessages returns messages the worker sent or received, newest first.
func (s *Service) GetMessages(ctx context.Context, eveID uuid.UUID, opts message.ListOptions) ([]*message.Message, error) {
	var c apperr.Collector
	if eveID == uuid.Nil {
		c.Add("eve_id", "must be a valid EVE id")
	}
	if opts.Limit < 0 {
		c.Add("limit", "must not be negative")
	}
	if opts.Offset < 0 {
		c.Add("offset", "must not be negative")
	}
	if opts.Status != nil && !opts.Status.Valid() {
		c.Add("status", "unknown status %q", *opts.Status)
	}
	if err := c.Err("invalid message query"); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListForWorker(ctx, eveID, opts)
	if err != nil {
		return nil, apperr.Communication("failed to list messages", err)
	}
	return msgs, nil
}

// UpdateMessageStatus advances a message and stamps the matching timestamp.
// A non-nil metadata replaces the stored one, keeping the task link when
// the update does not carry one.
func (s *Service) UpdateMessageStatus(ctx context.Context, messageID uuid.UUID, status message.Status, metadata *message.Metadata) (*message.Message, error) {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := m.Advance(status, s.now()); err != nil {
		return nil, apperr.Validation("invalid message status", []apperr.FieldError{{
			Field:   "status",
			Message: "cannot move from " + string(m.Status) + " to " + string(status),
		}})
	}
	if metadata != nil {
		taskID := m.Metadata.TaskID
		m.Metadata = *metadata
		if m.Metadata.TaskID == nil {
			m.Metadata.TaskID = taskID
		}
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, apperr.Communication("failed to update message", err)
	}
	return m, nil
}

// SubscribeToMessages registers handler for new messages addressed to eveID.
// There is no replay; callers backfill with GetMessages.
func (s *Service) SubscribeToMessages(eveID uuid.UUID, handler pubsub.Handler) func() {
	return s.bus.Subscribe(eveID, handler)
}
