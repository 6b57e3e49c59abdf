// Package evaluator decides whether a facility may act on a patient's data.
//
// Evaluate is side-effecting: an active grant found past its expiry is
// persisted as expired before the denial is returned.
package evaluator

import (
	"context"
	"errors"
	"log/slog"

	"healthconsent/internal/consent/metrics"
	"healthconsent/internal/consent/models"
	"healthconsent/internal/consent/service"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/middleware/requesttime"
	"healthconsent/pkg/platform/sentinel"
)

const (
	outcomeAllowed = "allowed"
)

type Option func(*Evaluator)

type Evaluator struct {
	store   service.Store
	tx      service.ConsentStoreTx
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     service.Clock
}

// New builds an evaluator. tx must serialize writers for the same pair as the
// consent service does; passing the service's runner keeps them aligned.
func New(store service.Store, tx service.ConsentStoreTx, logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:  store,
		tx:     tx,
		logger: logger,
		now:    requesttime.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tx == nil {
		e.tx = service.NewShardedTx(store, service.DefaultTxTimeout, e.metrics)
	}
	return e
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

func WithClock(clock service.Clock) Option {
	return func(e *Evaluator) {
		if clock != nil {
			e.now = clock
		}
	}
}

// Evaluate checks whether facilityID holds consent of at least the requested
// kind for patientID. Denials are returned as data; only storage failures are errors.
func (e *Evaluator) Evaluate(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID, requested models.Kind) (*models.Evaluation, error) {
	if !requested.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid consent kind")
	}

	grant, err := e.store.FindActive(ctx, patientID, facilityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return e.record(models.Denied(models.ReasonNoConsent, models.MessageNoConsent, nil)), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
	}

	now := e.now(ctx)
	if grant.IsExpiredAt(now) {
		if err := e.expire(ctx, grant); err != nil {
			return nil, err
		}
		grant.Status = models.StatusExpired
		return e.record(models.Denied(models.ReasonConsentExpired, models.MessageExpired, grant)), nil
	}

	if !grant.Kind.Covers(requested) {
		return e.record(models.Denied(
			models.ReasonInsufficientConsent,
			models.InsufficientMessage(requested, grant.Kind),
			grant,
		)), nil
	}

	return e.record(models.Allowed(grant)), nil
}

// expire persists the lazy transition. Losing the race to a concurrent
// revoke or expiry leaves the grant non-active, which is all the denial needs.
func (e *Evaluator) expire(ctx context.Context, grant *models.Grant) error {
	err := e.tx.RunInTx(ctx, grant.PatientID, grant.FacilityID, func(ctx context.Context, st service.Store) error {
		return st.UpdateStatus(ctx, grant.ID, models.StatusExpired, nil)
	})
	switch {
	case err == nil:
		e.metrics.IncExpired(grant.Kind.String())
		e.logger.InfoContext(ctx, "consent expired",
			"consent_id", grant.ID.String(),
			"patient_id", grant.PatientID.String(),
			"facility_id", grant.FacilityID.String(),
		)
		return nil
	case errors.Is(err, sentinel.ErrInvalidState):
		return nil
	case dErrors.HasCode(err, dErrors.CodeTimeout):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist consent expiry")
	}
}

func (e *Evaluator) record(ev *models.Evaluation) *models.Evaluation {
	outcome := outcomeAllowed
	if !ev.Authorized {
		outcome = string(ev.Reason)
	}
	e.metrics.IncEvaluation(outcome)
	return ev
}
