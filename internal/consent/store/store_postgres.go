package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthconsent/internal/consent/models"
	"healthconsent/internal/platform/database"
	id "healthconsent/pkg/domain"
	"healthconsent/pkg/platform/sentinel"
)

// PostgresStore persists grants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to a transaction owned by the caller.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const grantColumns = `id, patient_id, facility_id, kind, purpose, status, granted_by, granted_at, expires_at, revoked_at`

func (s *PostgresStore) Insert(ctx context.Context, grant *models.Grant) error {
	if grant == nil {
		return fmt.Errorf("consent grant is required")
	}
	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO consents (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(grant.ID),
		grant.PatientID.String(),
		grant.FacilityID.String(),
		grant.Kind.String(),
		grant.Purpose,
		grant.Status.String(),
		grant.GrantedBy.String(),
		grant.GrantedAt,
		grant.ExpiresAt,
		grant.RevokedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID) (*models.Grant, error) {
	row := s.execer().QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM consents
		WHERE patient_id = $1 AND facility_id = $2 AND status = 'active'
	`, patientID.String(), facilityID.String())
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active consent: %w", err)
	}
	return grant, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, consentID id.ConsentID) (*models.Grant, error) {
	row := s.execer().QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM consents
		WHERE id = $1
	`, uuid.UUID(consentID))
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return grant, nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.PatientID, filter *models.GrantFilter) ([]*models.Grant, error) {
	return s.list(ctx, "patient_id", patientID.String(), filter)
}

func (s *PostgresStore) ListByFacility(ctx context.Context, facilityID id.FacilityID, filter *models.GrantFilter) ([]*models.Grant, error) {
	return s.list(ctx, "facility_id", facilityID.String(), filter)
}

// list is only called with the two column names above, never with input.
func (s *PostgresStore) list(ctx context.Context, column, value string, filter *models.GrantFilter) ([]*models.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM consents WHERE ` + column + ` = $1`
	args := []any{value}
	if filter != nil && filter.Status != nil {
		query += ` AND status = $2`
		args = append(args, filter.Status.String())
	}
	query += ` ORDER BY granted_at DESC, id`

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	grants := make([]*models.Grant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return grants, nil
}

// UpdateStatus applies a lifecycle move in one statement. Zero affected rows
// is disambiguated into ErrNotFound or ErrInvalidState.
func (s *PostgresStore) UpdateStatus(ctx context.Context, consentID id.ConsentID, status models.Status, revokedAt *time.Time) error {
	if status == models.StatusRevoked && revokedAt == nil {
		return sentinel.ErrInvalidState
	}
	if status != models.StatusRevoked {
		revokedAt = nil
	}
	res, err := s.execer().ExecContext(ctx, `
		UPDATE consents
		SET status = $2, revoked_at = COALESCE($3, revoked_at)
		WHERE id = $1
		  AND status IN ('active', 'expired')
		  AND $2 IN ('expired', 'revoked')
	`, uuid.UUID(consentID), status.String(), revokedAt)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.execer().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM consents WHERE id = $1)`, uuid.UUID(consentID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check consent exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

type grantRow interface {
	Scan(dest ...any) error
}

func scanGrant(row grantRow) (*models.Grant, error) {
	var (
		g          models.Grant
		consentID  uuid.UUID
		patientID  string
		facilityID string
		kind       string
		status     string
		grantedBy  string
		expiresAt  sql.NullTime
		revokedAt  sql.NullTime
	)
	if err := row.Scan(&consentID, &patientID, &facilityID, &kind, &g.Purpose, &status, &grantedBy, &g.GrantedAt, &expiresAt, &revokedAt); err != nil {
		return nil, err
	}
	g.ID = id.ConsentID(consentID)
	g.PatientID = id.PatientID(patientID)
	g.FacilityID = id.FacilityID(facilityID)
	g.Kind = models.Kind(kind)
	g.Status = models.Status(status)
	g.GrantedBy = id.SubjectID(grantedBy)
	g.GrantedAt = g.GrantedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		g.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		g.RevokedAt = &t
	}
	return &g, nil
}
