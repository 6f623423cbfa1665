package eve

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/apperr"
	domain "github.com/maverika/maverika/internal/domain/eve"
)

// Config describes a worker to create.
type Config struct {
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Type         domain.Type    `json:"type"`
	Capabilities []string       `json:"capabilities"`
	Models       []domain.Model `json:"models"`
}

// defaultModels are assigned when a config names none.
var defaultModels = map[domain.Type][]domain.Model{
	domain.TypeOrchestrator: {
		{Provider: "openai", Model: "gpt-4o", Purpose: "planning"},
		{Provider: "anthropic", Model: "claude-3-5-sonnet", Purpose: "review"},
	},
	domain.TypeSpecialist: {
		{Provider: "openai", Model: "gpt-4o", Purpose: "execution"},
	},
	domain.TypeSupport: {
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "assistance"},
	},
}

// Factory builds new worker records.
type Factory struct {
	now func() time.Time
}

func NewFactory() *Factory {
	return &Factory{now: func() time.Time { return time.Now().UTC() }}
}

// Build validates cfg and returns an idle worker with zeroed performance.
func (f *Factory) Build(companyID uuid.UUID, cfg Config) (*domain.EVE, error) {
	var c apperr.Collector
	if companyID == uuid.Nil {
		c.Add("companyId", "is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		c.Add("name", "is required")
	}
	if strings.TrimSpace(cfg.Role) == "" {
		c.Add("role", "is required")
	}
	if !cfg.Type.Valid() {
		c.Add("type", "must be one of orchestrator, specialist, support; got %q", cfg.Type)
	}
	for i, m := range cfg.Models {
		if m.Provider == "" || m.Model == "" {
			c.Add(fmt.Sprintf("models[%d]", i), "provider and model are required")
		}
	}
	caps, err := normalizeCapabilities(cfg.Capabilities)
	if err != nil {
		c.Add("capabilities", "%s", err.Error())
	}
	if err := c.Err("invalid eve"); err != nil {
		return nil, err
	}

	models := cfg.Models
	if len(models) == 0 {
		models = defaultModels[cfg.Type]
	}
	now := f.now()
	return &domain.EVE{
		ID:           uuid.New(),
		CompanyID:    companyID,
		Name:         strings.TrimSpace(cfg.Name),
		Role:         strings.TrimSpace(cfg.Role),
		Type:         cfg.Type,
		Status:       domain.StatusIdle,
		Capabilities: caps,
		Models:       append([]domain.Model(nil), models...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// normalizeCapabilities trims and de-duplicates, keeping first-seen order.
func normalizeCapabilities(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		c := strings.TrimSpace(raw)
		if c == "" {
			return nil, fmt.Errorf("must not contain empty entries")
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
