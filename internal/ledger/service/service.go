// Package service is the access ledger: an append-only history of every
// attempt to reach a patient's record.
package service

import (
	"context"
	"log/slog"
	"time"

	"healthconsent/internal/ledger/metrics"
	"healthconsent/internal/ledger/models"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
)

// Store persists access records. Implementations never modify a record after Append.
// Query returns records newest first, at most q.Limit of them, never nil.
type Store interface {
	Append(ctx context.Context, rec *models.Record) error
	Query(ctx context.Context, q models.Query) ([]*models.Record, error)
}

type Option func(*Service)

type Service struct {
	store        Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	defaultLimit int
	maxLimit     int
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:        store,
		logger:       logger,
		defaultLimit: models.DefaultLimit,
		maxLimit:     models.MaxLimit,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLimits overrides the default and maximum page sizes. Non-positive values are ignored.
func WithLimits(def, max int) Option {
	return func(s *Service) {
		if max > 0 {
			s.maxLimit = max
		}
		if def > 0 {
			s.defaultLimit = def
		}
		if s.defaultLimit > s.maxLimit {
			s.defaultLimit = s.maxLimit
		}
	}
}

// Append persists rec synchronously. A failure is returned to the caller,
// who must not release the access decision it describes.
func (s *Service) Append(ctx context.Context, rec *models.Record) error {
	start := time.Now()
	if err := s.store.Append(ctx, rec); err != nil {
		s.metrics.IncAppendFailure()
		s.logger.ErrorContext(ctx, "failed to append access record",
			"error", err,
			"record_id", rec.ID.String(),
			"patient_id", rec.PatientID.String(),
			"worker_id", rec.WorkerID.String(),
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record access")
	}
	s.metrics.ObserveAppend(time.Since(start).Seconds())
	s.metrics.IncAppended(rec.Result.String())
	return nil
}

// Query applies the page size bounds, then reads newest first.
func (s *Service) Query(ctx context.Context, q models.Query) ([]*models.Record, error) {
	q.Limit = models.ClampLimit(q.Limit, s.defaultLimit, s.maxLimit)
	records, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read access records")
	}
	return records, nil
}

func (s *Service) ByPatient(ctx context.Context, patientID id.PatientID, limit int) ([]*models.Record, error) {
	return s.Query(ctx, models.Query{PatientID: &patientID, Limit: limit})
}

func (s *Service) ByWorker(ctx context.Context, workerID id.WorkerID, limit int) ([]*models.Record, error) {
	return s.Query(ctx, models.Query{WorkerID: &workerID, Limit: limit})
}

func (s *Service) ByFacility(ctx context.Context, facilityID id.FacilityID, limit int) ([]*models.Record, error) {
	return s.Query(ctx, models.Query{FacilityID: &facilityID, Limit: limit})
}

// All reads across every patient. result narrows to allowed or denied when set.
func (s *Service) All(ctx context.Context, result *models.Result, limit int) ([]*models.Record, error) {
	return s.Query(ctx, models.Query{Result: result, Limit: limit})
}
