package message

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/apperr"
)

// Type represents the kind of inter-EVE message.
type Type string

const (
	TypeDirect       Type = "direct"
	TypeBroadcast    Type = "broadcast"
	TypeTask         Type = "task"
	TypeStatusUpdate Type = "status_update"
)

// Status represents message delivery progress.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusProcessed Status = "processed"
)

// Priority mirrors task priorities.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var ErrInvalidTransition = errors.New("invalid message status transition")

// statuses move forward only; a message may skip steps.
var statusOrder = map[Status]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
	StatusProcessed: 4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return statusOrder[s] > 0
}

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	switch t {
	case TypeDirect, TypeBroadcast, TypeTask, TypeStatusUpdate:
		return true
	}
	return false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Metadata carries the optional task linkage of a message.
type Metadata struct {
	TaskID           *uuid.UUID      `json:"task_id,omitempty"`
	RequiresResponse bool            `json:"requires_response"`
	Context          json.RawMessage `json:"context,omitempty"`
}

// Message is a persisted inter-EVE message.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	FromEVEID   uuid.UUID  `json:"from_eve_id"`
	ToEVEID     uuid.UUID  `json:"to_eve_id"`
	Content     string     `json:"content"`
	Type        Type       `json:"type"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Metadata    Metadata   `json:"metadata"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// NewMessage creates an unsent message.
func NewMessage(from, to uuid.UUID, msgType Type, priority Priority, content string) *Message {
	return &Message{
		FromEVEID: from,
		ToEVEID:   to,
		Content:   content,
		Type:      msgType,
		Priority:  priority,
	}
}

// Validate reports every violated field.
func (m *Message) Validate() error {
	var c apperr.Collector
	if m.FromEVEID == uuid.Nil {
		c.Add("from_eve_id", "must be a valid EVE id")
	}
	if m.ToEVEID == uuid.Nil {
		c.Add("to_eve_id", "must be a valid EVE id")
	}
	if strings.TrimSpace(m.Content) == "" {
		c.Add("content", "is required")
	}
	if !m.Type.Valid() {
		c.Add("type", "must be one of direct, broadcast, task, status_update; got %q", m.Type)
	}
	if !m.Priority.Valid() {
		c.Add("priority", "must be one of low, medium, high, urgent; got %q", m.Priority)
	}
	if len(m.Metadata.Context) > 0 && !json.Valid(m.Metadata.Context) {
		c.Add("metadata.context", "must be valid JSON")
	}
	return c.Err("invalid message")
}

// MarkSent stamps a new message as sent.
func (m *Message) MarkSent(at time.Time) {
	m.ID = uuid.New()
	m.Status = StatusSent
	m.CreatedAt = at
}

// Advance moves the message forward and stamps the matching timestamp.
func (m *Message) Advance(target Status, at time.Time) error {
	if !target.Valid() || statusOrder[target] <= statusOrder[m.Status] {
		return ErrInvalidTransition
	}
	m.Status = target
	switch target {
	case StatusDelivered:
		m.DeliveredAt = &at
	case StatusRead:
		m.ReadAt = &at
	case StatusProcessed:
		m.ProcessedAt = &at
	}
	return nil
}

// Involves reports whether the EVE sent or received the message.
func (m *Message) Involves(eveID uuid.UUID) bool {
	return m.FromEVEID == eveID || m.ToEVEID == eveID
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	if m.Metadata.TaskID != nil {
		id := *m.Metadata.TaskID
		c.Metadata.TaskID = &id
	}
	c.Metadata.Context = append(json.RawMessage(nil), m.Metadata.Context...)
	c.DeliveredAt = cloneTime(m.DeliveredAt)
	c.ReadAt = cloneTime(m.ReadAt)
	c.ProcessedAt = cloneTime(m.ProcessedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ListOptions filters and pages a worker's messages.
type ListOptions struct {
	Status *Status
	Limit  int
	Offset int
}
