// Package eve manages worker lifecycle above the task orchestrator.
package eve

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maverika/maverika/internal/application/orchestrator"
	"github.com/maverika/maverika/internal/apperr"
	domain "github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/domain/task"
)

// Tasks is the task-side façade the service delegates to.
type Tasks interface {
	CreateTask(ctx context.Context, companyID uuid.UUID, in task.CreateInput) (*task.Task, error)
	Distribute(ctx context.Context, companyID uuid.UUID, workers []*domain.EVE) ([]orchestrator.Assignment, error)
}

// Messenger sends inter-worker messages.
type Messenger interface {
	SendMessage(ctx context.Context, m *message.Message) (*message.Message, error)
}

// Status is a worker's live view.
type Status struct {
	Status      domain.Status      `json:"status"`
	Performance domain.Performance `json:"performance"`
	CurrentTask *task.Task         `json:"currentTask"`
}

// Service keeps the set of active workers and fronts their operations.
type Service struct {
	eveRepo   domain.Repository
	taskRepo  task.Repository
	tasks     Tasks
	messenger Messenger
	knowledge KnowledgeBase
	factory   *Factory
	now       func() time.Time
	logger    zerolog.Logger

	mu     sync.RWMutex
	active map[uuid.UUID]*domain.EVE
}

// NewService creates the EVE service. knowledge may be nil.
func NewService(
	eveRepo domain.Repository,
	taskRepo task.Repository,
	tasks Tasks,
	messenger Messenger,
	knowledge KnowledgeBase,
	logger zerolog.Logger,
) *Service {
	return &Service{
		eveRepo:   eveRepo,
		taskRepo:  taskRepo,
		tasks:     tasks,
		messenger: messenger,
		knowledge: knowledge,
		factory:   NewFactory(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("service", "eve").Logger(),
		active:    make(map[uuid.UUID]*domain.EVE),
	}
}

// WithClock replaces the time source of the service and its factory.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.factory.now = now
	return s
}

// CreateEVE builds, persists and activates a new worker.
func (s *Service) CreateEVE(ctx context.Context, companyID uuid.UUID, cfg Config) (*domain.EVE, error) {
	w, err := s.factory.Build(companyID, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.eveRepo.Create(ctx, w); err != nil {
		return nil, apperr.Wrap("failed to create eve", err)
	}
	s.activate(w)
	s.putKnowledge(ctx, w)

	s.logger.Info().
		Str("eve_id", w.ID.String()).
		Str("company_id", companyID.String()).
		Str("type", string(w.Type)).
		Msg("eve created")
	return w.Clone(), nil
}

// LoadCompany activates every stored worker of a company.
func (s *Service) LoadCompany(ctx context.Context, companyID uuid.UUID) (int, error) {
	workers, err := s.eveRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return 0, apperr.Wrap("failed to list eves", err)
	}
	for _, w := range workers {
		s.activate(w)
	}
	return len(workers), nil
}

// GetEVE returns an active worker.
func (s *Service) GetEVE(eveID uuid.UUID) (*domain.EVE, error) {
	w, ok := s.lookup(eveID)
	if !ok {
		return nil, apperr.NotFound("eve", eveID.String())
	}
	return w, nil
}

// ActiveWorkers lists the company's active workers in creation order.
func (s *Service) ActiveWorkers(companyID uuid.UUID) []*domain.EVE {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.EVE, 0, len(s.active))
	for _, w := range s.active {
		if w.CompanyID == companyID {
			out = append(out, w.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AssignTask creates a task for an active worker.
func (s *Service) AssignTask(ctx context.Context, eveID uuid.UUID, in task.CreateInput) (*task.Task, error) {
	w, ok := s.lookup(eveID)
	if !ok {
		return nil, apperr.InvalidAssignment(eveID.String(), "worker is not active")
	}
	in.AssignedTo = eveID.String()
	return s.tasks.CreateTask(ctx, w.CompanyID, in)
}

// BroadcastMessage sends content to every other active worker of the
// sender's company that matches filter. Messages that did go out are
// returned alongside the joined failures.
func (s *Service) BroadcastMessage(ctx context.Context, fromID uuid.UUID, content string, priority message.Priority, filter Filter) ([]*message.Message, error) {
	sender, ok := s.lookup(fromID)
	if !ok {
		return nil, apperr.InvalidAssignment(fromID.String(), "sender is not an active worker")
	}
	if filter == nil {
		filter = All
	}
	if priority == "" {
		priority = message.PriorityMedium
	}

	var sent []*message.Message
	var errs []error
	for _, w := range s.refreshCompany(ctx, sender.CompanyID) {
		if w.ID == fromID || !filter(w) {
			continue
		}
		m, err := s.messenger.SendMessage(ctx, message.NewMessage(fromID, w.ID, message.TypeBroadcast, priority, content))
		if err != nil {
			if apperr.IsKind(err, apperr.KindValidation) {
				return sent, err
			}
			errs = append(errs, err)
			continue
		}
		sent = append(sent, m)
	}

	s.logger.Info().
		Str("from_eve_id", fromID.String()).
		Int("recipients", len(sent)).
		Int("failed", len(errs)).
		Msg("broadcast sent")
	if len(errs) > 0 {
		return sent, apperr.Communication("broadcast partially failed", errors.Join(errs...))
	}
	return sent, nil
}

// GetEVEStatus combines the worker record with its current task.
func (s *Service) GetEVEStatus(ctx context.Context, eveID uuid.UUID) (*Status, error) {
	w, ok := s.lookup(eveID)
	if !ok {
		return nil, apperr.NotFound("eve", eveID.String())
	}
	// Status and counters are tracked on the stored record by task updates.
	if fresh, err := s.eveRepo.GetByID(ctx, eveID); err == nil {
		s.activate(fresh)
		w = fresh
	} else {
		s.logger.Warn().Err(err).Str("eve_id", eveID.String()).Msg("failed to refresh eve; using cached record")
	}

	current, err := s.taskRepo.CurrentForWorker(ctx, eveID)
	if err != nil {
		return nil, apperr.Wrap("failed to load current task", err)
	}
	return &Status{Status: w.Status, Performance: w.Performance, CurrentTask: current}, nil
}

// OptimizeWorkload spreads the company's pending tasks over all of its
// active workers, regardless of their availability.
func (s *Service) OptimizeWorkload(ctx context.Context, companyID uuid.UUID) ([]orchestrator.Assignment, error) {
	workers := s.ActiveWorkers(companyID)
	if len(workers) == 0 {
		return nil, nil
	}
	return s.tasks.Distribute(ctx, companyID, workers)
}

// UpdateEVECapabilities replaces a worker's capabilities and refreshes its
// knowledge-base document.
func (s *Service) UpdateEVECapabilities(ctx context.Context, eveID uuid.UUID, capabilities []string) (*domain.EVE, error) {
	if _, ok := s.lookup(eveID); !ok {
		return nil, apperr.NotFound("eve", eveID.String())
	}
	caps, err := normalizeCapabilities(capabilities)
	if err != nil {
		return nil, apperr.Validation("invalid capabilities", []apperr.FieldError{{Field: "capabilities", Message: err.Error()}})
	}
	// Status and counters belong to the stored record; only capabilities change here.
	w, err := s.eveRepo.GetByID(ctx, eveID)
	if err != nil {
		return nil, apperr.Wrap("failed to load eve", err)
	}
	w.Capabilities = caps
	w.UpdatedAt = s.now()
	if err := s.eveRepo.Update(ctx, w); err != nil {
		return nil, apperr.Wrap("failed to update eve", err)
	}
	s.activate(w)
	s.putKnowledge(ctx, w)

	s.logger.Info().
		Str("eve_id", eveID.String()).
		Strs("capabilities", caps).
		Msg("eve capabilities updated")
	return w.Clone(), nil
}

// refreshCompany reloads the company's active workers from the repository so
// filters see current status and counters, then returns them in creation
// order. On a repository error the cached records are used.
func (s *Service) refreshCompany(ctx context.Context, companyID uuid.UUID) []*domain.EVE {
	stored, err := s.eveRepo.ListByCompany(ctx, companyID)
	if err != nil {
		s.logger.Warn().Err(err).Str("company_id", companyID.String()).Msg("failed to refresh eves; using cached records")
		return s.ActiveWorkers(companyID)
	}
	s.mu.Lock()
	for _, w := range stored {
		if _, ok := s.active[w.ID]; ok {
			s.active[w.ID] = w.Clone()
		}
	}
	s.mu.Unlock()
	return s.ActiveWorkers(companyID)
}

func (s *Service) activate(w *domain.EVE) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[w.ID] = w.Clone()
}

func (s *Service) lookup(id uuid.UUID) (*domain.EVE, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.active[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// putKnowledge is best-effort; the worker record is the source of truth.
func (s *Service) putKnowledge(ctx context.Context, w *domain.EVE) {
	if s.knowledge == nil {
		return
	}
	if err := s.knowledge.Put(ctx, w); err != nil {
		s.logger.Warn().Err(err).Str("eve_id", w.ID.String()).Msg("failed to write knowledge document")
	}
}
