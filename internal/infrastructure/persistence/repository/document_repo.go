package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `
	id, doc_type, title, creator_id, creator_dept_code, status, version,
	employee_id, form_data, employee_signature_ref, employee_signed_at,
	year, month, creator_signature_ref, creator_signed_at,
	created_at, updated_at
`

// Create creates a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			doc_type, title, creator_id, creator_dept_code, status, version,
			employee_id, form_data, year, month, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	formData, err := encodeFormData(doc.FormData)
	if err != nil {
		return err
	}

	now := time.Now()
	if doc.Version == 0 {
		doc.Version = 1
	}

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.Type,
		doc.Title,
		doc.CreatorID,
		nullString(doc.CreatorDeptCode),
		doc.Status,
		doc.Version,
		nullString(doc.EmployeeID),
		formData,
		doc.Year,
		doc.Month,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("type", string(doc.Type)), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get document by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Update writes the document body and signature fields if doc.Version is current.
// The status column is left alone; use UpdateStatus for transitions.
func (r *DocumentRepository) Update(ctx context.Context, doc *entity.Document) error {
	query := `
		UPDATE documents
		SET title = ?, employee_id = ?, form_data = ?,
			employee_signature_ref = ?, employee_signed_at = ?,
			creator_signature_ref = ?, creator_signed_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	formData, err := encodeFormData(doc.FormData)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.Title,
		nullString(doc.EmployeeID),
		formData,
		nullString(doc.EmployeeSignatureRef),
		nullTime(doc.EmployeeSignedAt),
		nullString(doc.CreatorSignatureRef),
		nullTime(doc.CreatorSignedAt),
		now,
		doc.ID,
		doc.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update document", zap.Int64("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to update document: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	} else if !ok {
		return apperr.StateConflict("document %d was modified concurrently", doc.ID)
	}

	doc.Version++
	doc.UpdatedAt = now
	return nil
}

// UpdateStatus moves the document from one status to another.
// It fails with a state conflict when the stored status is no longer from.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id int64, from, to workflow.State) error {
	query := `
		UPDATE documents
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		r.logger.Error("Failed to update document status",
			zap.Int64("id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	} else if !ok {
		return apperr.StateConflict("document %d is no longer %s", id, from)
	}
	return nil
}

// Delete removes a document; instances and shift entries cascade
func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete document", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	} else if !ok {
		return apperr.NotFound("document %d", id)
	}
	return nil
}

// List retrieves documents matching the filter, newest first
func (r *DocumentRepository) List(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE (? = '' OR doc_type = ?) AND (? = '' OR status = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		filter.Type, filter.Type,
		filter.Status, filter.Status,
		limit, filter.Offset,
	)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func encodeFormData(data map[string]string) (sql.NullString, error) {
	if len(data) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode form data: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var deptCode, employeeID, formData, employeeSig, creatorSig sql.NullString
	var employeeSignedAt, creatorSignedAt sql.NullTime
	var year, month sql.NullInt64

	err := row.Scan(
		&doc.ID,
		&doc.Type,
		&doc.Title,
		&doc.CreatorID,
		&deptCode,
		&doc.Status,
		&doc.Version,
		&employeeID,
		&formData,
		&employeeSig,
		&employeeSignedAt,
		&year,
		&month,
		&creatorSig,
		&creatorSignedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.CreatorDeptCode = deptCode.String
	doc.EmployeeID = employeeID.String
	doc.EmployeeSignatureRef = employeeSig.String
	doc.EmployeeSignedAt = timePtr(employeeSignedAt)
	doc.Year = int(year.Int64)
	doc.Month = int(month.Int64)
	doc.CreatorSignatureRef = creatorSig.String
	doc.CreatorSignedAt = timePtr(creatorSignedAt)

	if formData.Valid && formData.String != "" {
		if err := json.Unmarshal([]byte(formData.String), &doc.FormData); err != nil {
			return nil, apperr.Corrupted("document %d form data: %v", doc.ID, err)
		}
	}
	return &doc, nil
}

var _ port.DocumentRepository = (*DocumentRepository)(nil)
