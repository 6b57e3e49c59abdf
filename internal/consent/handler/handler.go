package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthconsent/internal/consent/models"
	"healthconsent/internal/consent/service"
	"healthconsent/internal/identity"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/httputil"
	"healthconsent/pkg/platform/middleware/requesttime"
	"healthconsent/pkg/requestcontext"
)

// Service defines the consent lifecycle operations used by the handler.
type Service interface {
	Grant(ctx context.Context, cmd service.GrantCommand) (*models.Grant, error)
	Revoke(ctx context.Context, patientID id.PatientID, consentID id.ConsentID) (*models.Grant, error)
	ListByPatient(ctx context.Context, patientID id.PatientID, filter *models.GrantFilter) ([]*models.Grant, error)
	ListByFacility(ctx context.Context, facilityID id.FacilityID, filter *models.GrantFilter) ([]*models.Grant, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID, requested models.Kind) (*models.Evaluation, error)
}

// Handler serves the /consents routes.
type Handler struct {
	consent   Service
	evaluator Evaluator
	logger    *slog.Logger
}

func New(consent Service, evaluator Evaluator, logger *slog.Logger) *Handler {
	return &Handler{
		consent:   consent,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Register mounts the routes. The router must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consents", h.HandleGrant)
	r.Post("/consents/check", h.HandleCheck)
	r.Patch("/consents/{consentID}/revoke", h.HandleRevoke)
	r.Get("/consents/patient/{patientID}", h.HandleListByPatient)
	r.Get("/consents/facility/{facilityID}", h.HandleListByFacility)
}

// HandleGrant handles POST /consents.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.authorize(w, r, identity.CapGrantConsent)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[GrantRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	facilityID, err := id.ParseFacilityID(req.FacilityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grant, err := h.consent.Grant(ctx, service.GrantCommand{
		PatientID:  principal.PatientID(),
		FacilityID: facilityID,
		Kind:       models.Kind(req.ConsentType),
		Purpose:    req.Purpose,
		GrantedBy:  principal.Subject,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.logFailure(ctx, "failed to grant consent", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toConsentResponse(grant, requesttime.Now(ctx)))
}

// HandleRevoke handles PATCH /consents/{consentID}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.authorize(w, r, identity.CapRevokeConsent)
	if !ok {
		return
	}

	consentID, err := id.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grant, err := h.consent.Revoke(ctx, principal.PatientID(), consentID)
	if err != nil {
		h.logFailure(ctx, "failed to revoke consent", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RevokeResponse{
		ConsentID: grant.ID.String(),
		RevokedAt: *grant.RevokedAt,
		Message:   "Consent revoked successfully",
	})
}

// HandleListByPatient handles GET /consents/patient/{patientID}. Patients see
// their own grants, workers need view consent from the patient, admins see all.
func (h *Handler) HandleListByPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.authorize(w, r, identity.CapListPatientConsents)
	if !ok {
		return
	}

	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := statusFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	switch principal.Role {
	case identity.RolePatient:
		if !principal.IsPatient(patientID) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Not authorized to view these consents"))
			return
		}
	case identity.RoleWorker:
		ev, err := h.evaluator.Evaluate(ctx, patientID, principal.FacilityID, models.KindView)
		if err != nil {
			h.logFailure(ctx, "consent evaluation failed", err)
			httputil.WriteError(w, err)
			return
		}
		if !ev.Authorized {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "No active consent to view patient consents"))
			return
		}
	}

	grants, err := h.consent.ListByPatient(ctx, patientID, filter)
	if err != nil {
		h.logFailure(ctx, "failed to list patient consents", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(grants, requesttime.Now(ctx)))
}

// HandleListByFacility handles GET /consents/facility/{facilityID}.
func (h *Handler) HandleListByFacility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.authorize(w, r, identity.CapListFacilityConsents)
	if !ok {
		return
	}

	facilityID, err := id.ParseFacilityID(chi.URLParam(r, "facilityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if principal.Role == identity.RoleWorker && !principal.WorksAt(facilityID) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Not authorized to view consents for this facility"))
		return
	}
	filter, err := statusFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	grants, err := h.consent.ListByFacility(ctx, facilityID, filter)
	if err != nil {
		h.logFailure(ctx, "failed to list facility consents", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(grants, requesttime.Now(ctx)))
}

// HandleCheck handles POST /consents/check. It evaluates without writing to
// the access ledger; only gateway accesses are logged.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.authorize(w, r, identity.CapCheckConsent); !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CheckRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	patientID, err := id.ParsePatientID(req.PatientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	facilityID, err := id.ParseFacilityID(req.FacilityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ev, err := h.evaluator.Evaluate(ctx, patientID, facilityID, models.Kind(req.ConsentType))
	if err != nil {
		h.logFailure(ctx, "consent evaluation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCheckResponse(ev))
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, c identity.Capability) (*identity.Principal, bool) {
	principal, err := identity.Require(r.Context())
	if err == nil {
		err = principal.Require(c)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return principal, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func statusFilter(r *http.Request) (*models.GrantFilter, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	status, err := models.ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return &models.GrantFilter{Status: &status}, nil
}
