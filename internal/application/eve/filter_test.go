package eve

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/maverika/maverika/internal/domain/eve"
)

func TestExpressionFilter(t *testing.T) {
	researcher := &domain.EVE{
		ID:           uuid.New(),
		Name:         "Ada",
		Role:         "researcher",
		Type:         domain.TypeSpecialist,
		Status:       domain.StatusIdle,
		Capabilities: []string{"research", "writing"},
		Performance:  domain.Performance{TasksCompleted: 4},
	}
	helper := &domain.EVE{
		ID:     uuid.New(),
		Name:   "Bob",
		Role:   "assistant",
		Type:   domain.TypeSupport,
		Status: domain.StatusBusy,
	}

	tests := []struct {
		expr       string
		researcher bool
		helper     bool
	}{
		{"", true, true},
		{"true", true, true},
		{"FALSE", false, false},
		{"type == 'specialist'", true, false},
		{"'research' IN capabilities", true, false},
		{"hasCapability(capabilities, 'writing')", true, false},
		{"tasksCompleted >= 3 && status == 'idle'", true, false},
		{"role != 'researcher'", false, true},
		{"name", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := ExpressionFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.researcher, f(researcher))
			assert.Equal(t, tt.helper, f(helper))
		})
	}
}

func TestExpressionFilter_InvalidExpression(t *testing.T) {
	_, err := ExpressionFilter("type ==")
	assert.Error(t, err)
}

func TestFilters(t *testing.T) {
	w := &domain.EVE{Type: domain.TypeOrchestrator, Capabilities: []string{"planning"}}
	assert.True(t, All(w))
	assert.True(t, ByType(domain.TypeOrchestrator)(w))
	assert.False(t, ByType(domain.TypeSupport)(w))
	assert.True(t, WithCapability("planning")(w))
	assert.False(t, WithCapability("research")(w))
}
