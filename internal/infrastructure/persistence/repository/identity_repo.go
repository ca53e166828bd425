package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
	"go.uber.org/zap"
)

// IdentityRepository implements port.IdentityRepository and serves as the
// resolver's organization directory
type IdentityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sql.DB, logger *zap.Logger) port.IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

const identityColumns = `id, name, dept_code, job_level, roles, signature_key, active`

// GetIdentity retrieves an identity by ID, active or not
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*entity.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = ?`

	ident, err := scanIdentity(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("identity %q", id)
	}
	if err != nil {
		r.logger.Error("Failed to get identity", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return ident, nil
}

// ListByRole lists identities matching the query. Roles are stored as a JSON
// array, so the role filter is applied after the department and level filters.
func (r *IdentityRepository) ListByRole(ctx context.Context, q approval.RoleQuery) ([]entity.Identity, error) {
	query := `SELECT ` + identityColumns + `
		FROM identities
		WHERE (? = '' OR dept_code = ?) AND (? = '' OR job_level = ?)
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		q.DeptCode, q.DeptCode,
		q.JobLevel, q.JobLevel,
	)
	if err != nil {
		r.logger.Error("Failed to list identities by role",
			zap.String("role", q.Role),
			zap.String("job_level", q.JobLevel),
			zap.String("dept_code", q.DeptCode),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var out []entity.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if q.Role != "" && !ident.HasRole(q.Role) {
			continue
		}
		out = append(out, *ident)
	}
	return out, rows.Err()
}

// List returns the whole directory
func (r *IdentityRepository) List(ctx context.Context) ([]entity.Identity, error) {
	return r.ListByRole(ctx, approval.RoleQuery{})
}

// Upsert inserts or replaces an identity. An existing signature key is kept
// when ident.SignatureKey is empty.
func (r *IdentityRepository) Upsert(ctx context.Context, ident *entity.Identity) error {
	query := `
		INSERT INTO identities (id, name, dept_code, job_level, roles, signature_key, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			dept_code = excluded.dept_code,
			job_level = excluded.job_level,
			roles = excluded.roles,
			signature_key = COALESCE(excluded.signature_key, identities.signature_key),
			active = excluded.active
	`

	roles := ident.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to encode roles: %w", err)
	}

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		ident.ID,
		ident.Name,
		nullString(ident.DeptCode),
		nullString(ident.JobLevel),
		string(rolesJSON),
		nullString(ident.SignatureKey),
		ident.Active,
	)
	if err != nil {
		r.logger.Error("Failed to upsert identity", zap.String("id", ident.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	return nil
}

// SetSignatureKey records the storage key of the identity's signature image
func (r *IdentityRepository) SetSignatureKey(ctx context.Context, id, key string) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE identities SET signature_key = ? WHERE id = ?`, nullString(key), id)
	if err != nil {
		r.logger.Error("Failed to set signature key", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to set signature key: %w", err)
	}
	if ok, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to set signature key: %w", err)
	} else if !ok {
		return apperr.NotFound("identity %q", id)
	}
	return nil
}

func scanIdentity(row rowScanner) (*entity.Identity, error) {
	var ident entity.Identity
	var deptCode, jobLevel, signatureKey sql.NullString
	var rolesJSON string

	err := row.Scan(
		&ident.ID,
		&ident.Name,
		&deptCode,
		&jobLevel,
		&rolesJSON,
		&signatureKey,
		&ident.Active,
	)
	if err != nil {
		return nil, err
	}

	ident.DeptCode = deptCode.String
	ident.JobLevel = jobLevel.String
	ident.SignatureKey = signatureKey.String
	if rolesJSON != "" {
		if err := json.Unmarshal([]byte(rolesJSON), &ident.Roles); err != nil {
			return nil, apperr.Corrupted("identity %q roles: %v", ident.ID, err)
		}
	}
	return &ident, nil
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
