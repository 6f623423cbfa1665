package eve

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	domain "github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/infrastructure/storage"
)

// KnowledgeBase records what a worker can do for downstream retrieval.
type KnowledgeBase interface {
	Put(ctx context.Context, w *domain.EVE) error
	Get(ctx context.Context, companyID, eveID uuid.UUID) (*KnowledgeDocument, error)
}

// KnowledgeDocument is the YAML profile kept per worker.
type KnowledgeDocument struct {
	EVEID        string         `yaml:"eve_id"`
	CompanyID    string         `yaml:"company_id"`
	Name         string         `yaml:"name"`
	Role         string         `yaml:"role"`
	Type         string         `yaml:"type"`
	Capabilities []string       `yaml:"capabilities"`
	Models       []domain.Model `yaml:"models,omitempty"`
	UpdatedAt    time.Time      `yaml:"updated_at"`
}

// BlobKnowledgeBase stores documents as knowledge/<company>/<eve>.yaml.
type BlobKnowledgeBase struct {
	store storage.Storage
}

func NewBlobKnowledgeBase(store storage.Storage) *BlobKnowledgeBase {
	return &BlobKnowledgeBase{store: store}
}

func knowledgePath(companyID, eveID uuid.UUID) string {
	return fmt.Sprintf("knowledge/%s/%s.yaml", companyID, eveID)
}

func (k *BlobKnowledgeBase) Put(ctx context.Context, w *domain.EVE) error {
	doc := KnowledgeDocument{
		EVEID:        w.ID.String(),
		CompanyID:    w.CompanyID.String(),
		Name:         w.Name,
		Role:         w.Role,
		Type:         string(w.Type),
		Capabilities: w.Capabilities,
		Models:       w.Models,
		UpdatedAt:    w.UpdatedAt,
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode knowledge document: %w", err)
	}
	return k.store.Write(ctx, knowledgePath(w.CompanyID, w.ID), data)
}

func (k *BlobKnowledgeBase) Get(ctx context.Context, companyID, eveID uuid.UUID) (*KnowledgeDocument, error) {
	data, err := k.store.Read(ctx, knowledgePath(companyID, eveID))
	if err != nil {
		return nil, err
	}
	var doc KnowledgeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge document: %w", err)
	}
	return &doc, nil
}
