package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrDependencyCycle is returned when a dependency chain loops back on itself.
var ErrDependencyCycle = errors.New("circular task dependency")

// DependencyLookup returns the dependencies of a task.
type DependencyLookup func(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)

// CheckAcyclic walks every task reachable from root through lookup and
// detects cycles with Kahn's algorithm. root's own dependencies are given
// directly since root may not be persisted yet.
func CheckAcyclic(ctx context.Context, root uuid.UUID, rootDeps []uuid.UUID, lookup DependencyLookup) error {
	edges := map[uuid.UUID][]uuid.UUID{root: rootDeps}
	queue := append([]uuid.UUID(nil), rootDeps...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := edges[id]; seen {
			continue
		}
		deps, err := lookup(ctx, id)
		if err != nil {
			return err
		}
		edges[id] = deps
		queue = append(queue, deps...)
	}

	// inDegree counts dependents pointing at a node.
	inDegree := make(map[uuid.UUID]int, len(edges))
	for id := range edges {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range edges[id] {
			inDegree[dep]++
		}
	}

	var ready []uuid.UUID
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	processed := 0
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		processed++
		for _, dep := range edges[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if processed != len(inDegree) {
		return fmt.Errorf("%w: %d tasks could not be ordered", ErrDependencyCycle, len(inDegree)-processed)
	}
	return nil
}

// Deadlocked returns the tasks of the set that can never become ready
// because they sit on, or behind, a dependency cycle within the set.
func Deadlocked(tasks []*Task) map[uuid.UUID]bool {
	inSet := make(map[uuid.UUID]*Task, len(tasks))
	for _, t := range tasks {
		inSet[t.ID] = t
	}
	// waiting counts a task's dependencies that are still in the set.
	waiting := make(map[uuid.UUID]int, len(tasks))
	dependents := make(map[uuid.UUID][]uuid.UUID, len(tasks))
	for _, t := range tasks {
		waiting[t.ID] = 0
		for _, dep := range t.Dependencies {
			if _, ok := inSet[dep]; ok {
				waiting[t.ID]++
				dependents[dep] = append(dependents[dep], t.ID)
			}
		}
	}
	var ready []uuid.UUID
	for id, n := range waiting {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		delete(waiting, id)
		for _, d := range dependents[id] {
			waiting[d]--
			if waiting[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	stuck := make(map[uuid.UUID]bool, len(waiting))
	for id := range waiting {
		stuck[id] = true
	}
	return stuck
}
