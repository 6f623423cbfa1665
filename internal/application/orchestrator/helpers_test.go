package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/domain/task"
	"github.com/maverika/maverika/internal/infrastructure/memory"
)

var fixedNow = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*message.Message
	err  error
}

func (n *recordingNotifier) SendMessage(_ context.Context, m *message.Message) (*message.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	c := m.Clone()
	c.MarkSent(fixedNow)
	n.sent = append(n.sent, c)
	return c, nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) since(i int) []*message.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*message.Message(nil), n.sent[i:]...)
}

type fixture struct {
	orch      *Orchestrator
	tasks     *memory.TaskRepository
	eves      *memory.EVERepository
	notifier  *recordingNotifier
	companyID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tasks:     memory.NewTaskRepository(),
		eves:      memory.NewEVERepository(),
		notifier:  &recordingNotifier{},
		companyID: uuid.New(),
	}
	f.orch = NewOrchestrator(f.tasks, f.eves, f.notifier, zerolog.Nop()).
		WithClock(func() time.Time { return fixedNow })
	return f
}

func (f *fixture) addWorker(t *testing.T, name string, status eve.Status) *eve.EVE {
	t.Helper()
	w := &eve.EVE{
		ID:        uuid.New(),
		CompanyID: f.companyID,
		Name:      name,
		Role:      "analyst",
		Type:      eve.TypeSpecialist,
		Status:    status,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	require.NoError(t, f.eves.Create(context.Background(), w))
	return w
}

func (f *fixture) worker(t *testing.T, id uuid.UUID) *eve.EVE {
	t.Helper()
	w, err := f.eves.GetByID(context.Background(), id)
	require.NoError(t, err)
	return w
}

func taskInput(workerID uuid.UUID, title string) task.CreateInput {
	return task.CreateInput{
		Title:       title,
		Description: title + " description",
		Priority:    "medium",
		AssignedTo:  workerID.String(),
		Metadata:    task.MetadataInput{Type: "analysis"},
	}
}
