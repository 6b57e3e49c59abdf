package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthconsent/internal/ledger/models"
	"healthconsent/internal/platform/database"
	id "healthconsent/pkg/domain"
	"healthconsent/pkg/platform/sentinel"
)

// PostgresStore writes to the access_records table. It exposes no update or
// delete path, and the table rejects both at the trigger level.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, patient_id, worker_id, facility_id, action, result, reason, client_ip, occurred_at`

func (s *PostgresStore) Append(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("access record is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(rec.ID),
		rec.PatientID.String(),
		rec.WorkerID.String(),
		rec.FacilityID.String(),
		rec.Action.String(),
		rec.Result.String(),
		rec.Reason,
		rec.ClientIP,
		rec.Timestamp,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert access record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q models.Query) ([]*models.Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.PatientID != nil {
		add("patient_id = $%d", q.PatientID.String())
	}
	if q.WorkerID != nil {
		add("worker_id = $%d", q.WorkerID.String())
	}
	if q.FacilityID != nil {
		add("facility_id = $%d", q.FacilityID.String())
	}
	if q.Result != nil {
		add("result = $%d", q.Result.String())
	}

	query := `SELECT ` + recordColumns + ` FROM access_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, id`
	if q.Limit > 0 {
		limit := q.Limit
		if limit > math.MaxInt32 {
			limit = math.MaxInt32
		}
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access records: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (*models.Record, error) {
	var (
		recordID   uuid.UUID
		patientID  string
		workerID   string
		facilityID string
		action     string
		result     string
		reason     sql.NullString
		clientIP   sql.NullString
		occurredAt time.Time
	)
	if err := rows.Scan(&recordID, &patientID, &workerID, &facilityID, &action, &result, &reason, &clientIP, &occurredAt); err != nil {
		return nil, fmt.Errorf("scan access record: %w", err)
	}

	rec := &models.Record{
		ID:         id.RecordID(recordID),
		PatientID:  id.PatientID(patientID),
		WorkerID:   id.WorkerID(workerID),
		FacilityID: id.FacilityID(facilityID),
		Action:     models.Action(action),
		Result:     models.Result(result),
		Timestamp:  occurredAt.UTC(),
	}
	if reason.Valid {
		rec.Reason = &reason.String
	}
	if clientIP.Valid {
		rec.ClientIP = &clientIP.String
	}
	return rec, nil
}
