package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// TemplateService manages approval line templates.
// Edits only affect instances confirmed afterwards; existing instances keep their own steps.
type TemplateService interface {
	CreateTemplate(ctx context.Context, actorID string, t *entity.ApprovalLineTemplate) (*entity.ApprovalLineTemplate, error)
	UpdateTemplate(ctx context.Context, actorID string, t *entity.ApprovalLineTemplate) (*entity.ApprovalLineTemplate, error)
	DeleteTemplate(ctx context.Context, actorID string, id int64) error
	GetTemplate(ctx context.Context, id int64) (*entity.ApprovalLineTemplate, error)
	ListTemplates(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalLineTemplate, error)
	AddStep(ctx context.Context, actorID string, id int64, at int, def entity.StepDefinition) (*entity.ApprovalLineTemplate, error)
	RemoveStep(ctx context.Context, actorID string, id int64, order int) (*entity.ApprovalLineTemplate, error)
	MoveStep(ctx context.Context, actorID string, id int64, from, to int) (*entity.ApprovalLineTemplate, error)
	ImportTemplates(ctx context.Context, actorID string, r io.Reader) ([]*entity.ApprovalLineTemplate, error)
}

type templateServiceImpl struct {
	templateRepo port.TemplateRepository
	txManager    port.TransactionManager
	logger       Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(
	templateRepo port.TemplateRepository,
	txManager port.TransactionManager,
	logger Logger,
) TemplateService {
	return &templateServiceImpl{
		templateRepo: templateRepo,
		txManager:    txManager,
		logger:       logger,
	}
}

// CreateTemplate validates and stores a new template owned by actorID
func (s *templateServiceImpl) CreateTemplate(ctx context.Context, actorID string, t *entity.ApprovalLineTemplate) (*entity.ApprovalLineTemplate, error) {
	if actorID == "" {
		return nil, apperr.Unauthorized("an actor is required")
	}
	t.OwnerID = actorID
	if err := approval.ValidateTemplate(t); err != nil {
		return nil, err
	}
	t.Steps = approval.Resequence(t.Steps)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.templateRepo.Create(txCtx, t)
	})
	if err != nil {
		s.logger.Error("Failed to create template", "error", err, "name", t.Name)
		return nil, err
	}

	s.logger.Info("Template created", "id", t.ID, "name", t.Name, "document_type", string(t.DocumentType), "steps", len(t.Steps))
	return t, nil
}

// UpdateTemplate replaces the header and steps of an owned template
func (s *templateServiceImpl) UpdateTemplate(ctx context.Context, actorID string, t *entity.ApprovalLineTemplate) (*entity.ApprovalLineTemplate, error) {
	return s.mutate(ctx, actorID, t.ID, func(existing *entity.ApprovalLineTemplate) error {
		existing.Name = t.Name
		existing.Description = t.Description
		existing.DocumentType = t.DocumentType
		existing.Steps = t.Steps
		return nil
	})
}

// DeleteTemplate removes an owned template. Instances already confirmed from it are kept.
func (s *templateServiceImpl) DeleteTemplate(ctx context.Context, actorID string, id int64) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.templateRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if existing.OwnerID != actorID {
			return apperr.Unauthorized("%s does not own template %d", actorID, id)
		}
		return s.templateRepo.Delete(txCtx, id)
	})
	if err != nil {
		s.logger.Info("Template delete refused", "id", id, "actor_id", actorID, "error", err.Error())
		return err
	}

	s.logger.Info("Template deleted", "id", id, "actor_id", actorID)
	return nil
}

// GetTemplate retrieves a template by ID
func (s *templateServiceImpl) GetTemplate(ctx context.Context, id int64) (*entity.ApprovalLineTemplate, error) {
	return s.templateRepo.GetByID(ctx, id)
}

// ListTemplates lists templates for a document type; an empty type lists all
func (s *templateServiceImpl) ListTemplates(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalLineTemplate, error) {
	if docType != "" && !docType.IsValid() {
		return nil, apperr.Validation("unknown document type %q", docType)
	}
	return s.templateRepo.ListByDocumentType(ctx, docType)
}

// AddStep inserts def at position at, shifting later steps down
func (s *templateServiceImpl) AddStep(ctx context.Context, actorID string, id int64, at int, def entity.StepDefinition) (*entity.ApprovalLineTemplate, error) {
	return s.mutate(ctx, actorID, id, func(t *entity.ApprovalLineTemplate) error {
		steps, err := approval.InsertStep(t.Steps, at, def)
		if err != nil {
			return err
		}
		t.Steps = steps
		return nil
	})
}

// RemoveStep deletes the step at order and closes the gap
func (s *templateServiceImpl) RemoveStep(ctx context.Context, actorID string, id int64, order int) (*entity.ApprovalLineTemplate, error) {
	return s.mutate(ctx, actorID, id, func(t *entity.ApprovalLineTemplate) error {
		steps, err := approval.RemoveStep(t.Steps, order)
		if err != nil {
			return err
		}
		t.Steps = steps
		return nil
	})
}

// MoveStep moves the step at from to position to
func (s *templateServiceImpl) MoveStep(ctx context.Context, actorID string, id int64, from, to int) (*entity.ApprovalLineTemplate, error) {
	return s.mutate(ctx, actorID, id, func(t *entity.ApprovalLineTemplate) error {
		steps, err := approval.MoveStep(t.Steps, from, to)
		if err != nil {
			return err
		}
		t.Steps = steps
		return nil
	})
}

// templateFile is the import format
type templateFile struct {
	Templates []struct {
		Name         string                  `yaml:"name"`
		Description  string                  `yaml:"description"`
		DocumentType entity.DocumentType     `yaml:"document_type"`
		Steps        []entity.StepDefinition `yaml:"steps"`
	} `yaml:"templates"`
}

// ImportTemplates creates every template in a YAML document, all or nothing
func (s *templateServiceImpl) ImportTemplates(ctx context.Context, actorID string, r io.Reader) ([]*entity.ApprovalLineTemplate, error) {
	var file templateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, apperr.Validation("invalid template file: %v", err)
	}
	if len(file.Templates) == 0 {
		return nil, apperr.Validation("template file contains no templates")
	}

	var created []*entity.ApprovalLineTemplate
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i, in := range file.Templates {
			t := &entity.ApprovalLineTemplate{
				Name:         strings.TrimSpace(in.Name),
				Description:  in.Description,
				DocumentType: in.DocumentType,
				Steps:        in.Steps,
			}
			if _, err := s.CreateTemplate(txCtx, actorID, t); err != nil {
				return fmt.Errorf("template %d (%q): %w", i+1, in.Name, err)
			}
			created = append(created, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Templates imported", "count", len(created), "actor_id", actorID)
	return created, nil
}

// mutate loads an owned template, applies fn, re-validates and stores the result
func (s *templateServiceImpl) mutate(ctx context.Context, actorID string, id int64, fn func(t *entity.ApprovalLineTemplate) error) (*entity.ApprovalLineTemplate, error) {
	var out *entity.ApprovalLineTemplate
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		t, err := s.templateRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if t.OwnerID != actorID {
			return apperr.Unauthorized("%s does not own template %d", actorID, id)
		}
		if err := fn(t); err != nil {
			return err
		}
		if err := approval.ValidateTemplate(t); err != nil {
			return err
		}
		t.Steps = approval.Resequence(t.Steps)
		if err := s.templateRepo.Update(txCtx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		s.logger.Info("Template update refused", "id", id, "actor_id", actorID, "error", err.Error())
		return nil, err
	}

	s.logger.Info("Template updated", "id", id, "steps", len(out.Steps))
	return out, nil
}
