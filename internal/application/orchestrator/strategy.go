package orchestrator

import (
	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/task"
)

// Assignment places one task on one worker.
type Assignment struct {
	TaskID   uuid.UUID `json:"taskId"`
	WorkerID uuid.UUID `json:"workerId"`
}

// DistributionStrategy plans how pending tasks are spread over workers.
// Tasks arrive in the order they should be considered.
type DistributionStrategy interface {
	Name() string
	Plan(tasks []*task.Task, workers []*eve.EVE) []Assignment
}

// RoundRobin places tasks[i] on workers[i % len(workers)]. It ignores
// capabilities and queue depth.
type RoundRobin struct{}

func (RoundRobin) Name() string { return "round_robin" }

func (RoundRobin) Plan(tasks []*task.Task, workers []*eve.EVE) []Assignment {
	if len(workers) == 0 {
		return nil
	}
	plan := make([]Assignment, 0, len(tasks))
	for i, t := range tasks {
		plan = append(plan, Assignment{TaskID: t.ID, WorkerID: workers[i%len(workers)].ID})
	}
	return plan
}

// CapabilityMatch walks workers in round-robin order but skips those lacking
// a task's required capabilities. A task no worker can serve falls back to
// the plain round-robin slot.
type CapabilityMatch struct{}

func (CapabilityMatch) Name() string { return "capability_match" }

func (CapabilityMatch) Plan(tasks []*task.Task, workers []*eve.EVE) []Assignment {
	if len(workers) == 0 {
		return nil
	}
	plan := make([]Assignment, 0, len(tasks))
	next := 0
	for i, t := range tasks {
		chosen := workers[i%len(workers)]
		for k := 0; k < len(workers); k++ {
			w := workers[(next+k)%len(workers)]
			if canServe(w, t) {
				chosen = w
				next = (next + k + 1) % len(workers)
				break
			}
		}
		plan = append(plan, Assignment{TaskID: t.ID, WorkerID: chosen.ID})
	}
	return plan
}

func canServe(w *eve.EVE, t *task.Task) bool {
	for _, c := range t.Metadata.RequiredCapabilities {
		if !w.HasCapability(c) {
			return false
		}
	}
	return true
}

// StrategyByName resolves a configured strategy name; unknown names yield RoundRobin.
func StrategyByName(name string) DistributionStrategy {
	if name == (CapabilityMatch{}).Name() {
		return CapabilityMatch{}
	}
	return RoundRobin{}
}
