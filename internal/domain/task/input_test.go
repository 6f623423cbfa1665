package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverika/maverika/internal/apperr"
)

func validInput() CreateInput {
	return CreateInput{
		Title:       "Review doc",
		Description: "Review the onboarding document",
		Priority:    "high",
		AssignedTo:  uuid.NewString(),
		Metadata:    MetadataInput{Type: "analysis"},
	}
}

func TestCreateInput_ValidateAccepts(t *testing.T) {
	in := validInput()
	in.Dependencies = []string{uuid.NewString()}
	in.Metadata.Context = json.RawMessage(`{"doc":"x"}`)
	assert.NoError(t, in.Validate())
}

func TestCreateInput_ValidateAggregates(t *testing.T) {
	dep := uuid.NewString()
	neg := -1
	in := CreateInput{
		Priority:     "critical",
		AssignedTo:   "not-a-uuid",
		Dependencies: []string{dep, dep, "nope"},
		Metadata: MetadataInput{
			Type:              "research",
			EstimatedDuration: &neg,
			Context:           json.RawMessage(`{`),
		},
	}

	err := in.Validate()
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	fields := map[string]bool{}
	for _, f := range ae.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{
		"title", "description", "priority", "assignedTo", "metadata.type",
		"metadata.estimatedDuration", "metadata.context", "dependencies",
	} {
		assert.True(t, fields[want], "missing violation for %s", want)
	}
}

func TestCreateInput_DeadlineBeforeSchedule(t *testing.T) {
	in := validInput()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := at.Add(-time.Hour)
	in.ScheduledFor = &at
	in.Deadline = &before

	err := in.Validate()
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	require.Len(t, ae.Fields, 1)
	assert.Equal(t, "deadline", ae.Fields[0].Field)
}

func TestCreateInput_Build(t *testing.T) {
	in := validInput()
	dep := uuid.New()
	in.Dependencies = []string{dep.String()}
	companyID := uuid.New()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	tk := in.Build(companyID, now)

	assert.NotEqual(t, uuid.Nil, tk.ID)
	assert.Equal(t, companyID, tk.CompanyID)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, PriorityHigh, tk.Priority)
	assert.Equal(t, SystemActor, tk.CreatedBy)
	assert.Equal(t, now, tk.CreatedAt)
	assert.Equal(t, []uuid.UUID{dep}, tk.Dependencies)
	assert.Equal(t, DefaultMaxRetries, tk.Metadata.MaxRetries)
	assert.Zero(t, tk.Metadata.RetryCount)
	assert.Nil(t, tk.StartedAt)
}

func TestCreateInput_BuildCopiesCallerData(t *testing.T) {
	in := validInput()
	scheduled := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	duration := 30
	in.ScheduledFor = &scheduled
	in.Metadata.Tags = []string{"q1"}
	in.Metadata.RequiredCapabilities = []string{"research"}
	in.Metadata.EstimatedDuration = &duration
	in.Metadata.Context = json.RawMessage(`{"a":1}`)

	tk := in.Build(uuid.New(), scheduled)

	in.Metadata.Tags[0] = "changed"
	in.Metadata.RequiredCapabilities[0] = "changed"
	in.Metadata.Context[2] = 'b'
	duration = 99
	scheduled = scheduled.Add(time.Hour)

	assert.Equal(t, []string{"q1"}, tk.Metadata.Tags)
	assert.Equal(t, []string{"research"}, tk.Metadata.RequiredCapabilities)
	assert.JSONEq(t, `{"a":1}`, string(tk.Metadata.Context))
	assert.Equal(t, 30, *tk.Metadata.EstimatedDuration)
	assert.Equal(t, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), *tk.ScheduledFor)
}
