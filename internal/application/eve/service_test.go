package eve

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverika/maverika/internal/application/orchestrator"
	"github.com/maverika/maverika/internal/apperr"
	domain "github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/domain/task"
	"github.com/maverika/maverika/internal/infrastructure/memory"
	"github.com/maverika/maverika/internal/infrastructure/storage"
)

var fixedNow = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type recordingMessenger struct {
	mu     sync.Mutex
	sent   []*message.Message
	failTo map[uuid.UUID]error
}

func (r *recordingMessenger) SendMessage(_ context.Context, m *message.Message) (*message.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failTo[m.ToEVEID]; err != nil {
		return nil, err
	}
	r.sent = append(r.sent, m)
	return m, nil
}

type serviceFixture struct {
	svc       *Service
	orch      *orchestrator.Orchestrator
	eves      *memory.EVERepository
	tasks     *memory.TaskRepository
	messenger *recordingMessenger
	knowledge *BlobKnowledgeBase
	companyID uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	f := &serviceFixture{
		eves:      memory.NewEVERepository(),
		tasks:     memory.NewTaskRepository(),
		messenger: &recordingMessenger{failTo: map[uuid.UUID]error{}},
		knowledge: NewBlobKnowledgeBase(store),
		companyID: uuid.New(),
	}
	clock := func() time.Time { return fixedNow }
	f.orch = orchestrator.NewOrchestrator(f.tasks, f.eves, f.messenger, zerolog.Nop()).WithClock(clock)
	f.svc = NewService(f.eves, f.tasks, f.orch, f.messenger, f.knowledge, zerolog.Nop()).WithClock(clock)
	return f
}

func (f *serviceFixture) create(t *testing.T, name string, typ domain.Type, caps ...string) *domain.EVE {
	t.Helper()
	w, err := f.svc.CreateEVE(context.Background(), f.companyID, Config{
		Name:         name,
		Role:         "analyst",
		Type:         typ,
		Capabilities: caps,
	})
	require.NoError(t, err)
	return w
}

func assignInput(title string) task.CreateInput {
	return task.CreateInput{
		Title:       title,
		Description: title,
		Priority:    "medium",
		Metadata:    task.MetadataInput{Type: "analysis"},
	}
}

func recipients(msgs []*message.Message) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToEVEID)
	}
	return out
}

func TestService_CreateEVE(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	w := f.create(t, "Ada", domain.TypeSpecialist, "research", "writing")

	stored, err := f.eves.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, stored.Status)

	active, err := f.svc.GetEVE(w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, active.ID)

	doc, err := f.knowledge.Get(ctx, f.companyID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", doc.Name)
	assert.Equal(t, []string{"research", "writing"}, doc.Capabilities)
	assert.Equal(t, "specialist", doc.Type)
}

func TestService_CreateEVEInvalid(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CreateEVE(context.Background(), f.companyID, Config{Name: "Ada", Type: "robot"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	workers, err := f.eves.ListByCompany(context.Background(), f.companyID)
	require.NoError(t, err)
	assert.Empty(t, workers)
	assert.Empty(t, f.svc.ActiveWorkers(f.companyID))
}

func TestService_AssignTaskRequiresActiveWorker(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	stored := &domain.EVE{
		ID:        uuid.New(),
		CompanyID: f.companyID,
		Name:      "Dormant",
		Role:      "analyst",
		Type:      domain.TypeSupport,
		Status:    domain.StatusIdle,
		CreatedAt: fixedNow,
	}
	require.NoError(t, f.eves.Create(ctx, stored))

	_, err := f.svc.AssignTask(ctx, stored.ID, assignInput("A"))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidAssignment))

	n, err := f.svc.LoadCompany(ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	created, err := f.svc.AssignTask(ctx, stored.ID, assignInput("A"))
	require.NoError(t, err)
	assert.Equal(t, stored.ID, created.AssignedTo)
	assert.Equal(t, f.companyID, created.CompanyID)
}

func TestService_BroadcastMessage(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	sender := f.create(t, "Lead", domain.TypeOrchestrator)
	analyst := f.create(t, "Ada", domain.TypeSpecialist, "research")
	writer := f.create(t, "Grace", domain.TypeSpecialist, "writing")
	helper := f.create(t, "Bob", domain.TypeSupport)

	other, err := f.svc.CreateEVE(ctx, uuid.New(), Config{Name: "Elsewhere", Role: "analyst", Type: domain.TypeSpecialist})
	require.NoError(t, err)

	t.Run("everyone but the sender", func(t *testing.T) {
		sent, err := f.svc.BroadcastMessage(ctx, sender.ID, "standup in 5", "", nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{analyst.ID, writer.ID, helper.ID}, recipients(sent))
		assert.NotContains(t, recipients(sent), other.ID)
		for _, m := range sent {
			assert.Equal(t, message.TypeBroadcast, m.Type)
			assert.Equal(t, message.PriorityMedium, m.Priority)
			assert.Equal(t, sender.ID, m.FromEVEID)
		}
	})

	t.Run("filtered", func(t *testing.T) {
		filter, err := ExpressionFilter("type == 'specialist' && 'research' IN capabilities")
		require.NoError(t, err)
		sent, err := f.svc.BroadcastMessage(ctx, sender.ID, "new paper", message.PriorityHigh, filter)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{analyst.ID}, recipients(sent))
		assert.Equal(t, message.PriorityHigh, sent[0].Priority)
	})

	t.Run("partial failure", func(t *testing.T) {
		f.messenger.failTo[writer.ID] = apperr.Communication("failed to store message", errors.New("disk full"))
		defer delete(f.messenger.failTo, writer.ID)

		sent, err := f.svc.BroadcastMessage(ctx, sender.ID, "hello", "", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindCommunication))
		assert.ElementsMatch(t, []uuid.UUID{analyst.ID, helper.ID}, recipients(sent))
	})

	t.Run("validation aborts", func(t *testing.T) {
		_, err := f.svc.BroadcastMessage(ctx, sender.ID, "hello", "shouting", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("inactive sender", func(t *testing.T) {
		_, err := f.svc.BroadcastMessage(ctx, uuid.New(), "hello", "", nil)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidAssignment))
	})
}

func TestService_GetEVEStatus(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	w := f.create(t, "Ada", domain.TypeSpecialist)

	status, err := f.svc.GetEVEStatus(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, status.Status)
	assert.Nil(t, status.CurrentTask)

	created, err := f.svc.AssignTask(ctx, w.ID, assignInput("A"))
	require.NoError(t, err)
	_, err = f.orch.UpdateTaskStatus(ctx, created.ID, task.StatusInProgress, nil, nil)
	require.NoError(t, err)

	status, err = f.svc.GetEVEStatus(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBusy, status.Status)
	require.NotNil(t, status.CurrentTask)
	assert.Equal(t, created.ID, status.CurrentTask.ID)

	_, err = f.orch.UpdateTaskStatus(ctx, created.ID, task.StatusCompleted, nil, nil)
	require.NoError(t, err)
	status, err = f.svc.GetEVEStatus(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, status.Status)
	assert.Equal(t, 1, status.Performance.TasksCompleted)

	_, err = f.svc.GetEVEStatus(ctx, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_OptimizeWorkloadUsesBusyWorkers(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	busy := f.create(t, "Ada", domain.TypeSpecialist)
	idle := f.create(t, "Grace", domain.TypeSpecialist)

	running, err := f.svc.AssignTask(ctx, busy.ID, assignInput("running"))
	require.NoError(t, err)
	_, err = f.orch.UpdateTaskStatus(ctx, running.ID, task.StatusInProgress, nil, nil)
	require.NoError(t, err)

	for _, title := range []string{"one", "two"} {
		_, err := f.svc.AssignTask(ctx, idle.ID, assignInput(title))
		require.NoError(t, err)
	}

	plan, err := f.svc.OptimizeWorkload(ctx, f.companyID)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assigned := []uuid.UUID{plan[0].WorkerID, plan[1].WorkerID}
	assert.ElementsMatch(t, []uuid.UUID{busy.ID, idle.ID}, assigned)

	empty, err := f.svc.OptimizeWorkload(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_UpdateEVECapabilities(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	w := f.create(t, "Ada", domain.TypeSpecialist, "research")

	updated, err := f.svc.UpdateEVECapabilities(ctx, w.ID, []string{"writing", "review", "writing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"writing", "review"}, updated.Capabilities)

	stored, err := f.eves.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"writing", "review"}, stored.Capabilities)

	doc, err := f.knowledge.Get(ctx, f.companyID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"writing", "review"}, doc.Capabilities)

	_, err = f.svc.UpdateEVECapabilities(ctx, w.ID, []string{" "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.UpdateEVECapabilities(ctx, uuid.New(), []string{"x"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_UpdateEVECapabilitiesKeepsTrackedState(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	w := f.create(t, "Ada", domain.TypeSpecialist, "research")

	first, err := f.svc.AssignTask(ctx, w.ID, assignInput("first"))
	require.NoError(t, err)
	_, err = f.orch.UpdateTaskStatus(ctx, first.ID, task.StatusInProgress, nil, nil)
	require.NoError(t, err)
	_, err = f.orch.UpdateTaskStatus(ctx, first.ID, task.StatusCompleted, nil, nil)
	require.NoError(t, err)

	second, err := f.svc.AssignTask(ctx, w.ID, assignInput("second"))
	require.NoError(t, err)
	_, err = f.orch.UpdateTaskStatus(ctx, second.ID, task.StatusInProgress, nil, nil)
	require.NoError(t, err)

	updated, err := f.svc.UpdateEVECapabilities(ctx, w.ID, []string{"writing"})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Performance.TasksCompleted)
	assert.Equal(t, domain.StatusBusy, updated.Status)

	stored, err := f.eves.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Performance.TasksCompleted)
	assert.Equal(t, domain.StatusBusy, stored.Status)
	assert.Equal(t, []string{"writing"}, stored.Capabilities)
}

func TestService_BroadcastFiltersSeeCurrentState(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	sender := f.create(t, "Lead", domain.TypeOrchestrator)
	busy := f.create(t, "Ada", domain.TypeSpecialist)
	f.create(t, "Grace", domain.TypeSpecialist)

	running, err := f.svc.AssignTask(ctx, busy.ID, assignInput("running"))
	require.NoError(t, err)
	_, err = f.orch.UpdateTaskStatus(ctx, running.ID, task.StatusInProgress, nil, nil)
	require.NoError(t, err)

	filter, err := ExpressionFilter("status == 'busy'")
	require.NoError(t, err)
	sent, err := f.svc.BroadcastMessage(ctx, sender.ID, "status check", "", filter)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{busy.ID}, recipients(sent))
}
