package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents task status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Priority is advisory; it never preempts FIFO dispatch order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Type classifies the kind of work a task represents.
type Type string

const (
	TypeAnalysis      Type = "analysis"
	TypeCommunication Type = "communication"
	TypeDecision      Type = "decision"
	TypeAction        Type = "action"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities, higher is more urgent. Unknown priorities rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// Valid reports whether t is a known task type.
func (t Type) Valid() bool {
	switch t {
	case TypeAnalysis, TypeCommunication, TypeDecision, TypeAction:
		return true
	}
	return false
}

// Metadata is the structured bag attached to a task.
type Metadata struct {
	Type                 Type            `json:"type"`
	Category             string          `json:"category,omitempty"`
	Tags                 []string        `json:"tags,omitempty"`
	RequiredCapabilities []string        `json:"requiredCapabilities,omitempty"`
	EstimatedDuration    *int            `json:"estimatedDuration,omitempty"` // minutes
	RetryCount           int             `json:"retryCount"`
	MaxRetries           int             `json:"maxRetries"`
	Context              json.RawMessage `json:"context,omitempty"`
}

// Task represents a unit of work assigned to one EVE.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	CompanyID    uuid.UUID       `json:"companyId"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Priority     Priority        `json:"priority"`
	Status       Status          `json:"status"`
	AssignedTo   uuid.UUID       `json:"assignedTo"`
	CreatedBy    string          `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
	ScheduledFor *time.Time      `json:"scheduledFor,omitempty"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
	Dependencies []uuid.UUID     `json:"dependencies,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        *string         `json:"error,omitempty"`
	Metadata     Metadata        `json:"metadata"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// CanTransitionTo validates task status transition.
func (t *Task) CanTransitionTo(target Status) bool {
	for _, s := range transitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// SourcesFor lists the statuses from which target is reachable.
func SourcesFor(target Status) []Status {
	var out []Status
	for from, tos := range transitions {
		for _, to := range tos {
			if to == target {
				out = append(out, from)
			}
		}
	}
	return out
}

// StatusChange is a requested lifecycle transition.
type StatusChange struct {
	Status Status
	Result json.RawMessage
	Error  *string
	At     time.Time
}

// Apply performs the transition and stamps lifecycle timestamps.
func (t *Task) Apply(c StatusChange) error {
	if !t.CanTransitionTo(c.Status) {
		return ErrInvalidTransition
	}
	t.Status = c.Status
	at := c.At
	switch {
	case c.Status == StatusInProgress:
		t.StartedAt = &at
	case c.Status.Terminal():
		t.CompletedAt = &at
		t.Result = c.Result
		t.Error = c.Error
	}
	t.UpdatedAt = at
	return nil
}

// Reassign moves the task to another worker and resets it to pending.
func (t *Task) Reassign(workerID uuid.UUID, at time.Time) {
	t.AssignedTo = workerID
	t.Status = StatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Result = nil
	t.Error = nil
	t.UpdatedAt = at
}

// DueAt reports whether the schedule gate is open at now.
func (t *Task) DueAt(now time.Time) bool {
	return t.ScheduledFor == nil || !t.ScheduledFor.After(now)
}

// Clone returns a deep copy safe to hand out of a repository.
func (t *Task) Clone() *Task {
	c := *t
	c.ScheduledFor = cloneTime(t.ScheduledFor)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.Deadline = cloneTime(t.Deadline)
	c.Dependencies = append([]uuid.UUID(nil), t.Dependencies...)
	c.Result = append(json.RawMessage(nil), t.Result...)
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	c.Metadata.Tags = append([]string(nil), t.Metadata.Tags...)
	c.Metadata.RequiredCapabilities = append([]string(nil), t.Metadata.RequiredCapabilities...)
	c.Metadata.Context = append(json.RawMessage(nil), t.Metadata.Context...)
	if t.Metadata.EstimatedDuration != nil {
		d := *t.Metadata.EstimatedDuration
		c.Metadata.EstimatedDuration = &d
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
