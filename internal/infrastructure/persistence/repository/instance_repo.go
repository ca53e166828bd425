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

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, document_id, document_type, template_id, status, version, created_at, closed_at`

// Create creates a new approval instance with its steps. Callers run it inside a transaction.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		INSERT INTO approval_instances (
			document_id, document_type, template_id, status, version, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now()
	}
	if instance.Version == 0 {
		instance.Version = 1
	}

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.DocumentID,
		instance.DocumentType,
		instance.TemplateID,
		instance.Status,
		instance.Version,
		instance.CreatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.StateConflict("document %d already has an active approval instance", instance.DocumentID)
	}
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Int64("document_id", instance.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	instance.ID = id

	stepQuery := `
		INSERT INTO approval_steps (
			instance_id, step_order, source_step_order, name, resolved_approver_id,
			approver_name, is_current, is_final_approval_available
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range instance.Steps {
		s := &instance.Steps[i]
		s.InstanceID = id
		res, err := getExecutor(ctx, r.db).ExecContext(ctx, stepQuery,
			id,
			s.StepOrder,
			s.SourceStepOrder,
			s.Name,
			s.ResolvedApproverID,
			nullString(s.ApproverName),
			s.IsCurrent,
			s.IsFinalApprovalAvailable,
		)
		if err != nil {
			r.logger.Error("Failed to create instance step",
				zap.Int64("instance_id", id),
				zap.Int("step_order", s.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create instance step %d: %w", s.StepOrder, err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an approval instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`

	instance, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("approval instance %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, r.loadSteps(ctx, instance)
}

// GetActiveByDocument retrieves the document's active instance
func (r *InstanceRepository) GetActiveByDocument(ctx context.Context, documentID int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE document_id = ? AND status = ?`

	instance, err := scanInstance(getExecutor(ctx, r.db).QueryRowContext(ctx, query, documentID, entity.InstanceActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no active approval instance for document %d", documentID)
	}
	if err != nil {
		r.logger.Error("Failed to get active instance", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, r.loadSteps(ctx, instance)
}

// ListByDocument returns every instance of a document, newest first
func (r *InstanceRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE document_id = ? ORDER BY id DESC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	var instances []*entity.ApprovalInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, instance := range instances {
		if err := r.loadSteps(ctx, instance); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

// Save writes the instance status and step flags when the stored version
// still matches instance.Version, then increments it
func (r *InstanceRepository) Save(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		UPDATE approval_instances
		SET status = ?, closed_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		instance.Status,
		nullTime(instance.ClosedAt),
		instance.ID,
		instance.Version,
	)
	if err != nil {
		r.logger.Error("Failed to save instance", zap.Int64("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to save instance: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	} else if !ok {
		return apperr.StateConflict("approval instance %d was modified concurrently", instance.ID)
	}

	stepQuery := `
		UPDATE approval_steps
		SET is_current = ?, is_signed = ?, signature_ref = ?, signed_at = ?,
			is_approved = ?, approved_at = ?, is_skipped = ?,
			is_rejected = ?, rejection_reason = ?, rejected_at = ?, rejected_by = ?
		WHERE id = ?
	`
	for _, s := range instance.Steps {
		_, err := getExecutor(ctx, r.db).ExecContext(ctx, stepQuery,
			s.IsCurrent,
			s.IsSigned,
			nullString(s.SignatureRef),
			nullTime(s.SignedAt),
			s.IsApproved,
			nullTime(s.ApprovedAt),
			s.IsSkipped,
			s.IsRejected,
			nullString(s.RejectionReason),
			nullTime(s.RejectedAt),
			nullString(s.RejectedBy),
			s.ID,
		)
		if err != nil {
			r.logger.Error("Failed to save instance step",
				zap.Int64("instance_id", instance.ID),
				zap.Int("step_order", s.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to save instance step %d: %w", s.StepOrder, err)
		}
	}

	instance.Version++
	return nil
}

// ListDocumentIDsByApprover returns documents where approverID is a resolved approver on any instance
func (r *InstanceRepository) ListDocumentIDsByApprover(ctx context.Context, approverID string) ([]int64, error) {
	query := `
		SELECT DISTINCT i.document_id
		FROM approval_steps s
		JOIN approval_instances i ON i.id = s.instance_id
		WHERE s.resolved_approver_id = ?
		ORDER BY i.document_id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, approverID)
	if err != nil {
		r.logger.Error("Failed to list documents by approver", zap.String("approver_id", approverID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents by approver: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *InstanceRepository) loadSteps(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		SELECT id, instance_id, step_order, source_step_order, name, resolved_approver_id,
			approver_name, is_current, is_signed, signature_ref, signed_at,
			is_approved, approved_at, is_skipped,
			is_rejected, rejection_reason, rejected_at, rejected_by,
			is_final_approval_available
		FROM approval_steps
		WHERE instance_id = ?
		ORDER BY step_order ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to load instance steps: %w", err)
	}
	defer rows.Close()

	instance.Steps = nil
	for rows.Next() {
		var s entity.StepInstance
		var approverName, signatureRef, reason, rejectedBy sql.NullString
		var signedAt, approvedAt, rejectedAt sql.NullTime
		err := rows.Scan(
			&s.ID,
			&s.InstanceID,
			&s.StepOrder,
			&s.SourceStepOrder,
			&s.Name,
			&s.ResolvedApproverID,
			&approverName,
			&s.IsCurrent,
			&s.IsSigned,
			&signatureRef,
			&signedAt,
			&s.IsApproved,
			&approvedAt,
			&s.IsSkipped,
			&s.IsRejected,
			&reason,
			&rejectedAt,
			&rejectedBy,
			&s.IsFinalApprovalAvailable,
		)
		if err != nil {
			return fmt.Errorf("failed to scan instance step: %w", err)
		}
		s.ApproverName = approverName.String
		s.SignatureRef = signatureRef.String
		s.SignedAt = timePtr(signedAt)
		s.ApprovedAt = timePtr(approvedAt)
		s.RejectionReason = reason.String
		s.RejectedAt = timePtr(rejectedAt)
		s.RejectedBy = rejectedBy.String
		instance.Steps = append(instance.Steps, s)
	}
	return rows.Err()
}

func scanInstance(row rowScanner) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	var closedAt sql.NullTime
	err := row.Scan(
		&instance.ID,
		&instance.DocumentID,
		&instance.DocumentType,
		&instance.TemplateID,
		&instance.Status,
		&instance.Version,
		&instance.CreatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	instance.ClosedAt = timePtr(closedAt)
	return &instance, nil
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
