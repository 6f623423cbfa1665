//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/maverika/maverika/internal/api/http"
	"github.com/maverika/maverika/internal/application/communication"
	"github.com/maverika/maverika/internal/application/dispatcher"
	appEVE "github.com/maverika/maverika/internal/application/eve"
	"github.com/maverika/maverika/internal/application/orchestrator"
	"github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/domain/task"
	"github.com/maverika/maverika/internal/infrastructure/postgres"
	"github.com/maverika/maverika/internal/infrastructure/pubsub"
	"github.com/maverika/maverika/internal/migrations"
)

type stack struct {
	server     *httptest.Server
	dispatcher *dispatcher.Dispatcher
	taskRepo   task.Repository
}

func TestDependencyChainIntegration(t *testing.T) {
	s, cleanup := newStack(t)
	defer cleanup()
	ctx := context.Background()

	companyID := uuid.New()
	lead := createEVE(t, s.server.URL, companyID, "Lead", "orchestrator")
	worker := createEVE(t, s.server.URL, companyID, "Ada", "specialist")

	first := createTask(t, s.server.URL, companyID, worker.ID, lead.ID.String(), nil)
	second := createTask(t, s.server.URL, companyID, worker.ID, lead.ID.String(), []string{first.ID.String()})

	picked, err := s.dispatcher.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if picked != 1 {
		t.Fatalf("expected only the first task to start, picked %d", picked)
	}
	s.dispatcher.Wait()

	if _, err := s.dispatcher.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	s.dispatcher.Wait()

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		got, err := s.taskRepo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if got.Status != task.StatusCompleted {
			t.Fatalf("task %s: expected completed, got %s", id, got.Status)
		}
		if got.StartedAt == nil || got.CompletedAt == nil {
			t.Fatalf("task %s: lifecycle timestamps not recorded", id)
		}
	}

	var inbox struct {
		Items []*message.Message `json:"items"`
	}
	getJSON(t, s.server.URL+"/v1/eves/"+lead.ID.String()+"/messages?status=sent", &inbox)
	updates := 0
	for _, m := range inbox.Items {
		if m.Type == message.TypeStatusUpdate && m.ToEVEID == lead.ID {
			updates++
		}
	}
	// in_progress and completed for each of the two tasks
	if updates != 4 {
		t.Fatalf("expected 4 status updates for the creator, got %d", updates)
	}

	var status appEVE.Status
	getJSON(t, s.server.URL+"/v1/eves/"+worker.ID.String()+"/", &status)
	if status.Status != eve.StatusIdle || status.Performance.TasksCompleted != 2 {
		t.Fatalf("unexpected worker status: %+v", status)
	}
}

func TestReassignIntegration(t *testing.T) {
	s, cleanup := newStack(t)
	defer cleanup()

	companyID := uuid.New()
	ada := createEVE(t, s.server.URL, companyID, "Ada", "specialist")
	grace := createEVE(t, s.server.URL, companyID, "Grace", "specialist")
	created := createTask(t, s.server.URL, companyID, ada.ID, "", nil)

	var moved task.Task
	postJSON(t, s.server.URL+"/v1/tasks/"+created.ID.String()+"/reassign", map[string]string{"eveId": grace.ID.String()}, http.StatusOK, &moved)
	if moved.AssignedTo != grace.ID || moved.Status != task.StatusPending {
		t.Fatalf("unexpected reassignment: %+v", moved)
	}

	var inbox struct {
		Items []*message.Message `json:"items"`
	}
	getJSON(t, s.server.URL+"/v1/eves/"+grace.ID.String()+"/messages", &inbox)
	found := false
	for _, m := range inbox.Items {
		if m.Type == message.TypeTask && m.ToEVEID == grace.ID && m.Metadata.RequiresResponse {
			found = true
		}
	}
	if !found {
		t.Fatalf("new assignee was not notified")
	}
}

func newStack(t *testing.T) (*stack, func()) {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}
	if err := postgres.RunMigrations(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	taskRepo := postgres.NewTaskRepository(pool)
	eveRepo := postgres.NewEVERepository(pool)
	messageRepo := postgres.NewMessageRepository(pool)

	hub := pubsub.NewHub(pubsub.DefaultBufferSize, logger)
	comm := communication.NewService(messageRepo, hub, logger)
	orch := orchestrator.NewOrchestrator(taskRepo, eveRepo, comm, logger)
	eveSvc := appEVE.NewService(eveRepo, taskRepo, orch, comm, nil, logger)
	disp := dispatcher.New(taskRepo, orch, &dispatcher.SimulatedExecutor{}, nil, time.Second, logger)

	apiServer := httpapi.NewServer(orch, eveSvc, comm, nil, logger)
	server := httptest.NewServer(apiServer.Router())

	cleanup := func() {
		server.Close()
		disp.Wait()
		hub.Stop()
		pool.Close()
	}
	return &stack{server: server, dispatcher: disp, taskRepo: taskRepo}, cleanup
}

func createEVE(t *testing.T, baseURL string, companyID uuid.UUID, name, typ string) *eve.EVE {
	t.Helper()
	var out eve.EVE
	postJSON(t, baseURL+"/v1/companies/"+companyID.String()+"/eves", map[string]interface{}{
		"name": name,
		"role": "analyst",
		"type": typ,
	}, http.StatusCreated, &out)
	return &out
}

func createTask(t *testing.T, baseURL string, companyID, assignee uuid.UUID, createdBy string, deps []string) *task.Task {
	t.Helper()
	body := map[string]interface{}{
		"title":        "Summarize findings",
		"description":  "Summarize the weekly findings",
		"priority":     "medium",
		"assignedTo":   assignee.String(),
		"dependencies": deps,
		"metadata":     map[string]interface{}{"type": "analysis"},
	}
	if createdBy != "" {
		body["createdBy"] = createdBy
	}
	var out task.Task
	postJSON(t, baseURL+"/v1/companies/"+companyID.String()+"/tasks", body, http.StatusCreated, &out)
	return &out
}

func postJSON(t *testing.T, url string, body interface{}, want int, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("post %s: expected %d, got %d", url, want, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE eve_messages, tasks, eves RESTART IDENTITY CASCADE`)
	return err
}
