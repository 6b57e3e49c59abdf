package main

import (
	"context"
	"database/sql"
	"time"

	"healthconsent/internal/consent/models"
	consentservice "healthconsent/internal/consent/service"
	consentstore "healthconsent/internal/consent/store"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
)

// consentPostgresTx runs pair mutations in one transaction holding a
// transaction-scoped advisory lock on the (patient, facility) key.
type consentPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newConsentPostgresTx(db *sql.DB, timeout time.Duration) *consentPostgresTx {
	if timeout <= 0 {
		timeout = consentservice.DefaultTxTimeout
	}
	return &consentPostgresTx{db: db, timeout: timeout}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID, fn func(ctx context.Context, store consentservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return t.wrap(ctx, err, "failed to begin consent transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, models.PairKey(patientID, facilityID)); err != nil {
		return t.wrap(ctx, err, "failed to lock consent pair")
	}

	if err := fn(ctx, consentstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return t.wrap(ctx, err, "failed to commit consent transaction")
	}
	return nil
}

func (t *consentPostgresTx) wrap(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "consent transaction timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
