// Package service is the authorization gateway: every access attempt on a
// patient's record is evaluated against consent and written to the access
// ledger before the decision is released. It fails closed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	consentmodels "healthconsent/internal/consent/models"
	"healthconsent/internal/identity"
	ledgermodels "healthconsent/internal/ledger/models"
	"healthconsent/internal/registry"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/middleware/requesttime"
)

// ReasonAuthorizationUnavailable is logged when consent could not be evaluated.
const ReasonAuthorizationUnavailable = "authorization unavailable"

type Evaluator interface {
	Evaluate(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID, requested consentmodels.Kind) (*consentmodels.Evaluation, error)
}

type Ledger interface {
	Append(ctx context.Context, rec *ledgermodels.Record) error
}

// AccessRequest is one worker's attempt to act on a patient's record.
type AccessRequest struct {
	PatientID  id.PatientID
	FacilityID id.FacilityID
	WorkerID   id.WorkerID
	Action     string
	ClientIP   string
}

// Decision is the logged outcome of an access request.
type Decision struct {
	Authorized bool
	Action     ledgermodels.Action
	Reason     consentmodels.ReasonCode
	Message    string
	RecordID   id.RecordID
	Evaluation *consentmodels.Evaluation
}

// AccessResult is a decision plus the registry record when access was allowed.
type AccessResult struct {
	Decision *Decision
	Record   *registry.PatientRecord
}

type Option func(*Service)

type Service struct {
	evaluator Evaluator
	ledger    Ledger
	records   registry.Source
	logger    *slog.Logger
	now       func(ctx context.Context) time.Time
	newID     func() id.RecordID
}

func New(evaluator Evaluator, ledger Ledger, records registry.Source, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		evaluator: evaluator,
		ledger:    ledger,
		records:   records,
		logger:    logger,
		now:       requesttime.Now,
		newID:     id.NewRecordID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithClock(clock func(ctx context.Context) time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithRecordIDGenerator(gen func() id.RecordID) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// AuthorizeAndLog evaluates req and appends exactly one ledger record for it.
// An unknown action is rejected before any evaluation and is not logged.
// When evaluation or the ledger write fails, an error is returned and access
// is never granted.
func (s *Service) AuthorizeAndLog(ctx context.Context, req AccessRequest) (*Decision, error) {
	action, err := ledgermodels.ParseAction(req.Action)
	if err != nil {
		return nil, err
	}
	if req.PatientID.IsNil() || req.FacilityID.IsNil() || req.WorkerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient, facility and worker are required")
	}
	kind, err := consentmodels.ParseKind(action.String())
	if err != nil {
		s.logger.ErrorContext(ctx, "action has no consent kind", "action", action.String(), "error", err)
		return nil, dErrors.New(dErrors.CodeInternal, "action has no consent kind")
	}

	evaluation, evalErr := s.evaluator.Evaluate(ctx, req.PatientID, req.FacilityID, kind)
	if evalErr != nil {
		s.logger.ErrorContext(ctx, "consent evaluation failed, denying access",
			"error", evalErr,
			"patient_id", req.PatientID.String(),
			"facility_id", req.FacilityID.String(),
			"worker_id", req.WorkerID.String(),
		)
		if _, err := s.appendRecord(ctx, req, action, ledgermodels.ResultDenied, ReasonAuthorizationUnavailable); err != nil {
			return nil, errors.Join(evalErr, err)
		}
		return nil, evalErr
	}

	result := ledgermodels.ResultDenied
	if evaluation.Authorized {
		result = ledgermodels.ResultAllowed
	}
	recordID, err := s.appendRecord(ctx, req, action, result, evaluation.Message)
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Authorized: evaluation.Authorized,
		Action:     action,
		Reason:     evaluation.Reason,
		Message:    evaluation.Message,
		RecordID:   recordID,
		Evaluation: evaluation,
	}
	s.logDecision(ctx, req, decision)
	return decision, nil
}

// AccessPatientRecord authorizes a worker against their own facility and,
// when allowed, reads the patient's registry record. A registry failure after
// authorization leaves the logged decision unchanged.
func (s *Service) AccessPatientRecord(ctx context.Context, principal *identity.Principal, patientID id.PatientID, action, clientIP string) (*AccessResult, error) {
	if err := principal.Require(identity.CapAccessPatientRecord); err != nil {
		return nil, err
	}

	decision, err := s.AuthorizeAndLog(ctx, AccessRequest{
		PatientID:  patientID,
		FacilityID: principal.FacilityID,
		WorkerID:   principal.WorkerID(),
		Action:     action,
		ClientIP:   clientIP,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Authorized {
		return &AccessResult{Decision: decision}, nil
	}

	rec, err := s.records.Fetch(ctx, patientID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "patient not found in central registry")
		}
		s.logger.ErrorContext(ctx, "registry fetch failed after authorization",
			"error", err,
			"patient_id", patientID.String(),
			"record_id", decision.RecordID.String(),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "central registry service unavailable")
	}
	return &AccessResult{Decision: decision, Record: rec}, nil
}

func (s *Service) appendRecord(ctx context.Context, req AccessRequest, action ledgermodels.Action, result ledgermodels.Result, reason string) (id.RecordID, error) {
	rec, err := ledgermodels.NewRecord(
		s.newID(),
		req.PatientID,
		req.WorkerID,
		req.FacilityID,
		action,
		result,
		reason,
		req.ClientIP,
		s.now(ctx),
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build access record", "error", err)
		return id.RecordID{}, dErrors.New(dErrors.CodeInternal, "failed to build access record")
	}
	if err := s.ledger.Append(ctx, rec); err != nil {
		return id.RecordID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record access")
	}
	return rec.ID, nil
}

func (s *Service) logDecision(ctx context.Context, req AccessRequest, d *Decision) {
	attrs := []any{
		"record_id", d.RecordID.String(),
		"patient_id", req.PatientID.String(),
		"facility_id", req.FacilityID.String(),
		"worker_id", req.WorkerID.String(),
		"action", d.Action.String(),
	}
	if d.Authorized {
		s.logger.InfoContext(ctx, "access allowed", attrs...)
		return
	}
	attrs = append(attrs, "reason", string(d.Reason))
	s.logger.WarnContext(ctx, "access denied", attrs...)
}
