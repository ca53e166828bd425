package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
	"go.uber.org/zap"
)

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the template header and its steps. Callers run it inside a transaction.
func (r *TemplateRepository) Create(ctx context.Context, t *entity.ApprovalLineTemplate) error {
	query := `
		INSERT INTO approval_templates (
			name, description, document_type, owner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		t.Name,
		nullString(t.Description),
		t.DocumentType,
		t.OwnerID,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("name", t.Name), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return r.insertSteps(ctx, id, t.Steps)
}

// GetByID retrieves a template with its steps ordered by step order
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalLineTemplate, error) {
	query := `
		SELECT id, name, description, document_type, owner_id, created_at, updated_at
		FROM approval_templates
		WHERE id = ?
	`

	t, err := scanTemplate(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("template %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if t.Steps, err = r.listSteps(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// ListByDocumentType lists templates of one document type; an empty type lists all
func (r *TemplateRepository) ListByDocumentType(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalLineTemplate, error) {
	query := `
		SELECT id, name, description, document_type, owner_id, created_at, updated_at
		FROM approval_templates
		WHERE (? = '' OR document_type = ?)
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, docType, docType)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.String("document_type", string(docType)), zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	var templates []*entity.ApprovalLineTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range templates {
		if t.Steps, err = r.listSteps(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

// Update rewrites the header and replaces every step row
func (r *TemplateRepository) Update(ctx context.Context, t *entity.ApprovalLineTemplate) error {
	query := `
		UPDATE approval_templates
		SET name = ?, description = ?, document_type = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		t.Name,
		nullString(t.Description),
		t.DocumentType,
		now,
		t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update template", zap.Int64("id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to update template: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	} else if !ok {
		return apperr.NotFound("template %d", t.ID)
	}

	if _, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM approval_template_steps WHERE template_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to clear template steps: %w", err)
	}

	t.UpdatedAt = now
	return r.insertSteps(ctx, t.ID, t.Steps)
}

// Delete removes a template and its steps
func (r *TemplateRepository) Delete(ctx context.Context, id int64) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM approval_templates WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete template", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	} else if !ok {
		return apperr.NotFound("template %d", id)
	}
	return nil
}

func (r *TemplateRepository) insertSteps(ctx context.Context, templateID int64, steps []entity.StepDefinition) error {
	query := `
		INSERT INTO approval_template_steps (
			template_id, step_order, step_name, approver_type, approver_id,
			job_level, dept_code, is_optional, can_skip, is_final_approval_available
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, s := range steps {
		_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
			templateID,
			s.StepOrder,
			s.StepName,
			s.ApproverType,
			nullString(s.ApproverID),
			nullString(s.JobLevel),
			nullString(s.DeptCode),
			s.IsOptional,
			s.CanSkip,
			s.IsFinalApprovalAvailable,
		)
		if err != nil {
			r.logger.Error("Failed to insert template step",
				zap.Int64("template_id", templateID),
				zap.Int("step_order", s.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to insert template step %d: %w", s.StepOrder, err)
		}
	}
	return nil
}

func (r *TemplateRepository) listSteps(ctx context.Context, templateID int64) ([]entity.StepDefinition, error) {
	query := `
		SELECT step_order, step_name, approver_type, approver_id, job_level, dept_code,
			is_optional, can_skip, is_final_approval_available
		FROM approval_template_steps
		WHERE template_id = ?
		ORDER BY step_order ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list template steps: %w", err)
	}
	defer rows.Close()

	var steps []entity.StepDefinition
	for rows.Next() {
		var s entity.StepDefinition
		var approverID, jobLevel, deptCode sql.NullString
		err := rows.Scan(
			&s.StepOrder,
			&s.StepName,
			&s.ApproverType,
			&approverID,
			&jobLevel,
			&deptCode,
			&s.IsOptional,
			&s.CanSkip,
			&s.IsFinalApprovalAvailable,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template step: %w", err)
		}
		s.ApproverID = approverID.String
		s.JobLevel = jobLevel.String
		s.DeptCode = deptCode.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*entity.ApprovalLineTemplate, error) {
	var t entity.ApprovalLineTemplate
	var description sql.NullString
	err := row.Scan(
		&t.ID,
		&t.Name,
		&description,
		&t.DocumentType,
		&t.OwnerID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	return &t, nil
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
