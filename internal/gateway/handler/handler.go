package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"healthconsent/internal/gateway/service"
	"healthconsent/internal/identity"
	"healthconsent/internal/registry"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/httputil"
	"healthconsent/pkg/requestcontext"
)

const (
	minNationalIDLength = 8
	maxNationalIDLength = 20
)

// Gateway authorizes, logs, and serves a patient record access.
type Gateway interface {
	AccessPatientRecord(ctx context.Context, principal *identity.Principal, patientID id.PatientID, action, clientIP string) (*service.AccessResult, error)
}

// Searcher looks a patient up in the central registry. Searches are not
// consent-gated and are not written to the access ledger.
type Searcher interface {
	SearchByNationalID(ctx context.Context, nationalID string) (*registry.PatientRecord, error)
}

type Handler struct {
	gateway  Gateway
	searcher Searcher
	logger   *slog.Logger
}

func New(gateway Gateway, searcher Searcher, logger *slog.Logger) *Handler {
	return &Handler{gateway: gateway, searcher: searcher, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/patients/search", h.HandleSearch)
	r.Get("/patients/{patientID}", h.HandleView)
	r.Post("/patients/{patientID}/access", h.HandleAccess)
}

// HandleView handles GET /patients/{patientID}, a view access.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	h.access(w, r, "view")
}

// HandleAccess handles POST /patients/{patientID}/access with an explicit action.
func (h *Handler) HandleAccess(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[AccessRequest](r.Context(), w, r, h.logger)
	if !ok {
		return
	}
	h.access(w, r, req.Action)
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request, action string) {
	ctx := r.Context()
	principal, err := identity.Require(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.gateway.AccessPatientRecord(ctx, principal, patientID, action, requestcontext.ClientIP(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "patient record access failed",
			"request_id", requestcontext.RequestID(ctx),
			"patient_id", patientID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if !res.Decision.Authorized {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Access denied: "+res.Decision.Message))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccessResponse(res))
}

// HandleSearch handles GET /patients/search?national_id=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := identity.Require(ctx)
	if err == nil {
		err = principal.Require(identity.CapAccessPatientRecord)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	nationalID := strings.TrimSpace(r.URL.Query().Get("national_id"))
	if n := len(nationalID); n < minNationalIDLength || n > maxNationalIDLength {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "national_id must be between 8 and 20 characters"))
		return
	}

	rec, err := h.searcher.SearchByNationalID(ctx, nationalID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Patient not found in central registry"))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "registry search failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "Central registry service unavailable"))
		return
	}

	h.logger.InfoContext(ctx, "patient registry search",
		"worker_id", principal.WorkerID().String(),
		"facility_id", principal.FacilityID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, rec)
}
