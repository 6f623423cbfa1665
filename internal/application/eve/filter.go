package eve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	domain "github.com/maverika/maverika/internal/domain/eve"
)

// Filter selects broadcast recipients. A nil Filter matches every worker.
type Filter func(w *domain.EVE) bool

// All matches every worker.
func All(*domain.EVE) bool { return true }

// ByType matches workers of the given type.
func ByType(t domain.Type) Filter {
	return func(w *domain.EVE) bool { return w.Type == t }
}

// WithCapability matches workers listing capability.
func WithCapability(capability string) Filter {
	return func(w *domain.EVE) bool { return w.HasCapability(capability) }
}

var filterFunctions = map[string]govaluate.ExpressionFunction{
	"hasCapability": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, errors.New("hasCapability expects (capabilities, name)")
		}
		caps, _ := args[0].([]interface{})
		for _, c := range caps {
			if c == args[1] {
				return true, nil
			}
		}
		return false, nil
	},
}

// ExpressionFilter compiles a boolean expression evaluated per worker over
// id, name, role, type, status, capabilities and tasksCompleted, e.g.
//
//	type == 'specialist' && 'research' IN capabilities
//
// An empty expression matches everyone. A worker whose evaluation fails or
// yields a non-boolean does not match.
func ExpressionFilter(expression string) (Filter, error) {
	expr := strings.TrimSpace(expression)
	switch strings.ToLower(expr) {
	case "", "true":
		return All, nil
	case "false":
		return func(*domain.EVE) bool { return false }, nil
	}

	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(expr, filterFunctions)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return func(w *domain.EVE) bool {
		result, err := compiled.Evaluate(filterParams(w))
		if err != nil {
			return false
		}
		ok, isBool := result.(bool)
		return isBool && ok
	}, nil
}

func filterParams(w *domain.EVE) map[string]interface{} {
	caps := make([]interface{}, len(w.Capabilities))
	for i, c := range w.Capabilities {
		caps[i] = c
	}
	return map[string]interface{}{
		"id":             w.ID.String(),
		"name":           w.Name,
		"role":           w.Role,
		"type":           string(w.Type),
		"status":         string(w.Status),
		"capabilities":   caps,
		"tasksCompleted": float64(w.Performance.TasksCompleted),
	}
}
