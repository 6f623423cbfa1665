package eve

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverika/maverika/internal/apperr"
	domain "github.com/maverika/maverika/internal/domain/eve"
)

func TestFactory_Build(t *testing.T) {
	f := NewFactory()
	f.now = func() time.Time { return fixedNow }
	companyID := uuid.New()

	t.Run("defaults", func(t *testing.T) {
		w, err := f.Build(companyID, Config{
			Name:         " Ada ",
			Role:         "researcher",
			Type:         domain.TypeSpecialist,
			Capabilities: []string{"research", " research", "writing"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Ada", w.Name)
		assert.Equal(t, domain.StatusIdle, w.Status)
		assert.Equal(t, []string{"research", "writing"}, w.Capabilities)
		assert.Equal(t, defaultModels[domain.TypeSpecialist], w.Models)
		assert.Zero(t, w.Performance.TasksCompleted)
		assert.Equal(t, fixedNow, w.CreatedAt)
	})

	t.Run("explicit models", func(t *testing.T) {
		models := []domain.Model{{Provider: "local", Model: "llama3", Purpose: "drafting"}}
		w, err := f.Build(companyID, Config{Name: "Ada", Role: "writer", Type: domain.TypeSupport, Models: models})
		require.NoError(t, err)
		assert.Equal(t, models, w.Models)
	})

	t.Run("reports every problem", func(t *testing.T) {
		_, err := f.Build(uuid.Nil, Config{
			Type:         "robot",
			Capabilities: []string{""},
			Models:       []domain.Model{{Provider: "openai"}},
		})
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, apperr.KindValidation, ae.Kind)

		fields := make([]string, 0, len(ae.Fields))
		for _, fe := range ae.Fields {
			fields = append(fields, fe.Field)
		}
		assert.ElementsMatch(t, []string{"companyId", "name", "role", "type", "models[0]", "capabilities"}, fields)
	})
}
