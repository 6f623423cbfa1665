package task

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/apperr"
)

// MetadataInput is the caller-supplied metadata for a new task.
type MetadataInput struct {
	Type                 string          `json:"type"`
	Category             string          `json:"category,omitempty"`
	Tags                 []string        `json:"tags,omitempty"`
	RequiredCapabilities []string        `json:"requiredCapabilities,omitempty"`
	EstimatedDuration    *int            `json:"estimatedDuration,omitempty"`
	MaxRetries           *int            `json:"maxRetries,omitempty"`
	Context              json.RawMessage `json:"context,omitempty"`
}

// CreateInput is the raw task creation payload.
type CreateInput struct {
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Priority     string        `json:"priority"`
	AssignedTo   string        `json:"assignedTo"`
	CreatedBy    string        `json:"createdBy,omitempty"`
	ScheduledFor *time.Time    `json:"scheduledFor,omitempty"`
	Deadline     *time.Time    `json:"deadline,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Metadata     MetadataInput `json:"metadata"`
}

// DefaultMaxRetries is recorded on tasks that do not specify one. Nothing retries automatically.
const DefaultMaxRetries = 3

// Validate checks the input and reports every violation, not just the first.
func (in *CreateInput) Validate() error {
	var c apperr.Collector
	if strings.TrimSpace(in.Title) == "" {
		c.Add("title", "is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		c.Add("description", "is required")
	}
	if !Priority(in.Priority).Valid() {
		c.Add("priority", "must be one of low, medium, high, urgent; got %q", in.Priority)
	}
	if _, err := uuid.Parse(in.AssignedTo); err != nil {
		c.Add("assignedTo", "must be a valid worker id")
	}
	if !Type(in.Metadata.Type).Valid() {
		c.Add("metadata.type", "must be one of analysis, communication, decision, action; got %q", in.Metadata.Type)
	}
	if d := in.Metadata.EstimatedDuration; d != nil && *d < 0 {
		c.Add("metadata.estimatedDuration", "must not be negative")
	}
	if r := in.Metadata.MaxRetries; r != nil && *r < 0 {
		c.Add("metadata.maxRetries", "must not be negative")
	}
	for i, tag := range in.Metadata.Tags {
		if strings.TrimSpace(tag) == "" {
			c.Add("metadata.tags", "entry %d is empty", i)
		}
	}
	for i, capability := range in.Metadata.RequiredCapabilities {
		if strings.TrimSpace(capability) == "" {
			c.Add("metadata.requiredCapabilities", "entry %d is empty", i)
		}
	}
	if len(in.Metadata.Context) > 0 && !json.Valid(in.Metadata.Context) {
		c.Add("metadata.context", "must be valid JSON")
	}
	if in.ScheduledFor != nil && in.Deadline != nil && in.Deadline.Before(*in.ScheduledFor) {
		c.Add("deadline", "must not precede scheduledFor")
	}
	seen := make(map[string]bool, len(in.Dependencies))
	for _, dep := range in.Dependencies {
		if _, err := uuid.Parse(dep); err != nil {
			c.Add("dependencies", "%q is not a valid task id", dep)
			continue
		}
		if seen[dep] {
			c.Add("dependencies", "%q is listed more than once", dep)
		}
		seen[dep] = true
	}
	return c.Err("invalid task")
}

// Build converts validated input into a pending task.
func (in *CreateInput) Build(companyID uuid.UUID, now time.Time) *Task {
	deps := make([]uuid.UUID, 0, len(in.Dependencies))
	for _, d := range in.Dependencies {
		deps = append(deps, uuid.MustParse(d))
	}
	maxRetries := DefaultMaxRetries
	if in.Metadata.MaxRetries != nil {
		maxRetries = *in.Metadata.MaxRetries
	}
	var estimated *int
	if d := in.Metadata.EstimatedDuration; d != nil {
		v := *d
		estimated = &v
	}
	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = SystemActor
	}
	return &Task{
		ID:           uuid.New(),
		CompanyID:    companyID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Priority:     Priority(in.Priority),
		Status:       StatusPending,
		AssignedTo:   uuid.MustParse(in.AssignedTo),
		CreatedBy:    createdBy,
		CreatedAt:    now,
		ScheduledFor: cloneTime(in.ScheduledFor),
		Deadline:     cloneTime(in.Deadline),
		Dependencies: deps,
		Metadata: Metadata{
			Type:                 Type(in.Metadata.Type),
			Category:             in.Metadata.Category,
			Tags:                 append([]string(nil), in.Metadata.Tags...),
			RequiredCapabilities: append([]string(nil), in.Metadata.RequiredCapabilities...),
			EstimatedDuration:    estimated,
			MaxRetries:           maxRetries,
			Context:              append(json.RawMessage(nil), in.Metadata.Context...),
		},
		UpdatedAt: now,
	}
}

// SystemActor attributes tasks created without an authenticated identity.
const SystemActor = "system"
