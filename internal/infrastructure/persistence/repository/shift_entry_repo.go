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
	"go.uber.org/zap"
)

// ShiftEntryRepository implements port.ShiftEntryRepository
type ShiftEntryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewShiftEntryRepository creates a new shift entry repository
func NewShiftEntryRepository(db *sql.DB, logger *zap.Logger) port.ShiftEntryRepository {
	return &ShiftEntryRepository{
		db:     db,
		logger: logger,
	}
}

const shiftEntryColumns = `
	id, document_id, person_id, person_name, position_id, sort_order,
	row_mode, day_codes, free_text,
	night_duty_required, night_duty_actual, night_duty_additional, off_count,
	vacation_used_this_month, vacation_total, vacation_used_total,
	remarks, updated_at
`

// Create creates a new shift row
func (r *ShiftEntryRepository) Create(ctx context.Context, e *entity.ShiftEntry) error {
	query := `
		INSERT INTO shift_entries (
			document_id, person_id, person_name, position_id, sort_order,
			row_mode, day_codes, free_text,
			night_duty_required, night_duty_actual, night_duty_additional, off_count,
			vacation_used_this_month, vacation_total, vacation_used_total,
			remarks, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	codes, freeText, err := encodeContent(e)
	if err != nil {
		return err
	}

	e.UpdatedAt = time.Now()
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		e.DocumentID,
		e.PersonID,
		nullString(e.PersonName),
		nullString(e.PositionID),
		e.SortOrder,
		e.Mode(),
		codes,
		freeText,
		e.NightDutyRequired,
		e.NightDutyActual,
		e.NightDutyAdditional,
		e.OffCount,
		e.VacationUsedThisMonth,
		e.VacationTotal,
		e.VacationUsedTotal,
		nullString(e.Remarks),
		e.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create shift entry",
			zap.Int64("document_id", e.DocumentID),
			zap.String("person_id", e.PersonID),
			zap.Error(err))
		return fmt.Errorf("failed to create shift entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	e.ID = id
	return nil
}

// GetByID retrieves a shift row by ID
func (r *ShiftEntryRepository) GetByID(ctx context.Context, id int64) (*entity.ShiftEntry, error) {
	query := `SELECT ` + shiftEntryColumns + ` FROM shift_entries WHERE id = ?`

	e, err := scanShiftEntry(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("shift entry %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get shift entry by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get shift entry: %w", err)
	}
	return e, nil
}

// ListByDocument retrieves the rows of a schedule in display order
func (r *ShiftEntryRepository) ListByDocument(ctx context.Context, documentID int64) ([]entity.ShiftEntry, error) {
	query := `SELECT ` + shiftEntryColumns + `
		FROM shift_entries
		WHERE document_id = ?
		ORDER BY sort_order ASC, id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list shift entries", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list shift entries: %w", err)
	}
	defer rows.Close()

	var entries []entity.ShiftEntry
	for rows.Next() {
		e, err := scanShiftEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Update rewrites a shift row
func (r *ShiftEntryRepository) Update(ctx context.Context, e *entity.ShiftEntry) error {
	query := `
		UPDATE shift_entries
		SET person_name = ?, position_id = ?, sort_order = ?,
			row_mode = ?, day_codes = ?, free_text = ?,
			night_duty_required = ?, night_duty_actual = ?, night_duty_additional = ?, off_count = ?,
			vacation_used_this_month = ?, vacation_total = ?, vacation_used_total = ?,
			remarks = ?, updated_at = ?
		WHERE id = ?
	`

	codes, freeText, err := encodeContent(e)
	if err != nil {
		return err
	}

	e.UpdatedAt = time.Now()
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		nullString(e.PersonName),
		nullString(e.PositionID),
		e.SortOrder,
		e.Mode(),
		codes,
		freeText,
		e.NightDutyRequired,
		e.NightDutyActual,
		e.NightDutyAdditional,
		e.OffCount,
		e.VacationUsedThisMonth,
		e.VacationTotal,
		e.VacationUsedTotal,
		nullString(e.Remarks),
		e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update shift entry", zap.Int64("id", e.ID), zap.Error(err))
		return fmt.Errorf("failed to update shift entry: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to update shift entry: %w", err)
	} else if !ok {
		return apperr.NotFound("shift entry %d", e.ID)
	}
	return nil
}

// Delete removes one shift row
func (r *ShiftEntryRepository) Delete(ctx context.Context, id int64) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM shift_entries WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete shift entry", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete shift entry: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to delete shift entry: %w", err)
	} else if !ok {
		return apperr.NotFound("shift entry %d", id)
	}
	return nil
}

// DeleteByDocument removes every row of a schedule
func (r *ShiftEntryRepository) DeleteByDocument(ctx context.Context, documentID int64) error {
	if _, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM shift_entries WHERE document_id = ?`, documentID); err != nil {
		r.logger.Error("Failed to delete shift entries", zap.Int64("document_id", documentID), zap.Error(err))
		return fmt.Errorf("failed to delete shift entries: %w", err)
	}
	return nil
}

// encodeContent splits the row content into the day_codes and free_text columns.
// Free-text rows keep their retained codes in day_codes.
func encodeContent(e *entity.ShiftEntry) (string, sql.NullString, error) {
	var stored entity.DayCodes
	var freeText sql.NullString
	if e.Content != nil {
		stored = e.Content.StoredCodes()
		if ft, ok := e.Content.(entity.FreeText); ok {
			freeText = sql.NullString{String: ft.Text, Valid: true}
		}
	}
	if stored == nil {
		stored = entity.DayCodes{}
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to encode day codes: %w", err)
	}
	return string(b), freeText, nil
}

func scanShiftEntry(row rowScanner) (*entity.ShiftEntry, error) {
	var e entity.ShiftEntry
	var personName, positionID, freeText, remarks sql.NullString
	var mode entity.RowMode
	var codesJSON string

	err := row.Scan(
		&e.ID,
		&e.DocumentID,
		&e.PersonID,
		&personName,
		&positionID,
		&e.SortOrder,
		&mode,
		&codesJSON,
		&freeText,
		&e.NightDutyRequired,
		&e.NightDutyActual,
		&e.NightDutyAdditional,
		&e.OffCount,
		&e.VacationUsedThisMonth,
		&e.VacationTotal,
		&e.VacationUsedTotal,
		&remarks,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.PersonName = personName.String
	e.PositionID = positionID.String
	e.Remarks = remarks.String

	codes := entity.DayCodes{}
	if codesJSON != "" {
		if err := json.Unmarshal([]byte(codesJSON), &codes); err != nil {
			return nil, apperr.Corrupted("shift entry %d day codes: %v", e.ID, err)
		}
	}

	switch mode {
	case entity.RowModeFreeText:
		e.Content = entity.FreeText{Text: freeText.String, Retained: codes}
	case entity.RowModeStructured, "":
		e.Content = entity.StructuredDays{Codes: codes}
	default:
		return nil, apperr.Corrupted("shift entry %d: unknown row mode %q", e.ID, mode)
	}
	return &e, nil
}

var _ port.ShiftEntryRepository = (*ShiftEntryRepository)(nil)
