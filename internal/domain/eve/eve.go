package eve

import (
	"time"

	"github.com/google/uuid"
)

// Type represents an EVE's role in its company.
type Type string

const (
	TypeOrchestrator Type = "orchestrator"
	TypeSpecialist   Type = "specialist"
	TypeSupport      Type = "support"
)

// Status represents EVE availability.
type Status string

const (
	StatusActive Status = "active"
	StatusBusy   Status = "busy"
	StatusIdle   Status = "idle"
)

// Valid reports whether t is a known EVE type.
func (t Type) Valid() bool {
	switch t {
	case TypeOrchestrator, TypeSpecialist, TypeSupport:
		return true
	}
	return false
}

// Valid reports whether s is a known EVE status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBusy, StatusIdle:
		return true
	}
	return false
}

// Performance tracks an EVE's work record.
type Performance struct {
	Efficiency     float64 `json:"efficiency"`
	Accuracy       float64 `json:"accuracy"`
	TasksCompleted int     `json:"tasks_completed"`
}

// Model is an LLM an EVE may use for a purpose.
type Model struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Purpose  string `json:"purpose"`
}

// EVE is an AI worker owned by exactly one company.
type EVE struct {
	ID           uuid.UUID   `json:"id"`
	CompanyID    uuid.UUID   `json:"companyId"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Type         Type        `json:"type"`
	Status       Status      `json:"status"`
	Capabilities []string    `json:"capabilities"`
	Performance  Performance `json:"performance"`
	Models       []Model     `json:"models"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Addressable reports whether the EVE belongs to companyID and can receive work.
func (e *EVE) Addressable(companyID uuid.UUID) bool {
	return e.CompanyID == companyID && e.Status.Valid()
}

// HasCapability reports whether the EVE lists the given capability.
func (e *EVE) HasCapability(capability string) bool {
	for _, c := range e.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (e *EVE) Clone() *EVE {
	c := *e
	c.Capabilities = append([]string(nil), e.Capabilities...)
	c.Models = append([]Model(nil), e.Models...)
	return &c
}
