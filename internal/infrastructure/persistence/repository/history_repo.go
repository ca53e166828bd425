package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (
			document_id, instance_id, actor_id, previous_status, new_status,
			action_type, action_data, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now()
	}

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		history.DocumentID,
		nullInt64(history.InstanceID),
		history.ActorID,
		history.PreviousStatus,
		history.NewStatus,
		history.ActionType,
		nullString(history.ActionData),
		history.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// ListByDocument retrieves all history records for a document in write order
func (r *HistoryRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalHistory, error) {
	query := `
		SELECT id, document_id, instance_id, actor_id, previous_status, new_status,
			action_type, action_data, timestamp
		FROM approval_history
		WHERE document_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to get history by document ID", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalHistory
	for rows.Next() {
		var record entity.ApprovalHistory
		var instanceID sql.NullInt64
		var prev, next, data sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.DocumentID,
			&instanceID,
			&record.ActorID,
			&prev,
			&next,
			&record.ActionType,
			&data,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		record.InstanceID = instanceID.Int64
		record.PreviousStatus = prev.String
		record.NewStatus = next.String
		record.ActionData = data.String
		records = append(records, &record)
	}

	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
