// Package service owns the consent lifecycle: granting (which supersedes the
// pair's previous active grant), revoking, and listing.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"healthconsent/internal/consent/metrics"
	"healthconsent/internal/consent/models"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/middleware/requesttime"
	"healthconsent/pkg/platform/sentinel"
)

// Store defines the persistence interface for consent grants.
// Error Contract:
//   - FindActive, FindByID and UpdateStatus return sentinel.ErrNotFound when nothing matches
//   - Insert returns sentinel.ErrConflict on a duplicate id or a second active grant for a pair
//   - UpdateStatus returns sentinel.ErrInvalidState for an illegal lifecycle move
//   - List methods return grants ordered by GrantedAt descending, never nil
type Store interface {
	Insert(ctx context.Context, grant *models.Grant) error
	FindActive(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID) (*models.Grant, error)
	FindByID(ctx context.Context, consentID id.ConsentID) (*models.Grant, error)
	ListByPatient(ctx context.Context, patientID id.PatientID, filter *models.GrantFilter) ([]*models.Grant, error)
	ListByFacility(ctx context.Context, facilityID id.FacilityID, filter *models.GrantFilter) ([]*models.Grant, error)
	UpdateStatus(ctx context.Context, consentID id.ConsentID, status models.Status, revokedAt *time.Time) error
}

// Clock returns the evaluation instant. The default is the request-scoped time.
type Clock func(ctx context.Context) time.Time

// IDGenerator mints consent ids.
type IDGenerator func() id.ConsentID

type Option func(*Service)

type Service struct {
	store   Store
	tx      ConsentStoreTx
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     Clock
	newID   IDGenerator
}

// New builds the service. When tx is nil, an in-process ShardedTx over store is used.
func New(store Store, tx ConsentStoreTx, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:  store,
		tx:     tx,
		logger: logger,
		now:    requesttime.Now,
		newID:  id.NewConsentID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.tx == nil {
		svc.tx = NewShardedTx(store, DefaultTxTimeout, svc.metrics)
	}
	return svc
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// GrantCommand is a patient's request to grant consent to a facility.
type GrantCommand struct {
	PatientID  id.PatientID
	FacilityID id.FacilityID
	Kind       models.Kind
	Purpose    string
	GrantedBy  id.SubjectID
	ExpiresAt  *time.Time
}

// Grant creates a new active grant. Any active grant the pair already has is
// revoked in the same transaction; that replacement is silent, not an error.
func (s *Service) Grant(ctx context.Context, cmd GrantCommand) (*models.Grant, error) {
	start := time.Now()
	now := s.now(ctx)

	grant, err := models.NewGrant(s.newID(), cmd.PatientID, cmd.FacilityID, cmd.Kind, cmd.Purpose, cmd.GrantedBy, now, cmd.ExpiresAt)
	if err != nil {
		return nil, err
	}

	var superseded *models.Grant
	err = s.tx.RunInTx(ctx, cmd.PatientID, cmd.FacilityID, func(ctx context.Context, st Store) error {
		// Every check runs before the first write; the in-memory runner cannot undo a revoke.
		switch _, err := st.FindByID(ctx, grant.ID); {
		case err == nil:
			return dErrors.New(dErrors.CodeConflict, "consent id already in use")
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
		}

		existing, err := st.FindActive(ctx, cmd.PatientID, cmd.FacilityID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read active consent")
		default:
			if err := st.UpdateStatus(ctx, existing.ID, models.StatusRevoked, &now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke previous consent")
			}
			superseded = existing
		}

		if err := st.Insert(ctx, grant); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "a concurrent grant for this facility was recorded; retry")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if superseded != nil {
		s.metrics.IncSuperseded(superseded.Kind.String())
		s.logger.InfoContext(ctx, "previous consent superseded",
			"consent_id", superseded.ID.String(),
			"patient_id", cmd.PatientID.String(),
			"facility_id", cmd.FacilityID.String(),
		)
	}
	s.metrics.IncGranted(grant.Kind.String())
	s.metrics.ObserveGrantLatency(start)
	s.logger.InfoContext(ctx, "consent granted",
		"consent_id", grant.ID.String(),
		"patient_id", grant.PatientID.String(),
		"facility_id", grant.FacilityID.String(),
		"kind", grant.Kind.String(),
	)
	return grant, nil
}

// Revoke withdraws a grant on behalf of its patient. Revoking a grant owned
// by another patient is forbidden; revoking twice is a conflict.
func (s *Service) Revoke(ctx context.Context, patientID id.PatientID, consentID id.ConsentID) (*models.Grant, error) {
	current, err := s.store.FindByID(ctx, consentID)
	if err != nil {
		return nil, translateFindErr(err)
	}
	if current.PatientID != patientID {
		s.logger.WarnContext(ctx, "revoke attempted on another patient's consent",
			"consent_id", consentID.String(),
			"patient_id", patientID.String(),
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "not authorized to revoke this consent")
	}

	now := s.now(ctx)
	var revoked *models.Grant
	err = s.tx.RunInTx(ctx, current.PatientID, current.FacilityID, func(ctx context.Context, st Store) error {
		grant, err := st.FindByID(ctx, consentID)
		if err != nil {
			return translateFindErr(err)
		}
		if grant.Status == models.StatusRevoked {
			return dErrors.New(dErrors.CodeConflict, "consent already revoked")
		}
		if err := st.UpdateStatus(ctx, consentID, models.StatusRevoked, &now); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "consent already revoked")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
		}
		grant.Status = models.StatusRevoked
		grant.RevokedAt = &now
		revoked = grant
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRevoked(revoked.Kind.String())
	s.logger.InfoContext(ctx, "consent revoked",
		"consent_id", consentID.String(),
		"patient_id", patientID.String(),
		"facility_id", revoked.FacilityID.String(),
	)
	return revoked, nil
}

// ListByPatient returns the patient's grants newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID id.PatientID, filter *models.GrantFilter) ([]*models.Grant, error) {
	grants, err := s.store.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return grants, nil
}

// ListByFacility returns the grants made to a facility newest first.
func (s *Service) ListByFacility(ctx context.Context, facilityID id.FacilityID, filter *models.GrantFilter) ([]*models.Grant, error) {
	grants, err := s.store.ListByFacility(ctx, facilityID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return grants, nil
}

func translateFindErr(err error) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "consent not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
}
