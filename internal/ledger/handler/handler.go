package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"healthconsent/internal/identity"
	"healthconsent/internal/ledger/models"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/httputil"
)

// Ledger is the read side of the access ledger.
type Ledger interface {
	ByPatient(ctx context.Context, patientID id.PatientID, limit int) ([]*models.Record, error)
	ByWorker(ctx context.Context, workerID id.WorkerID, limit int) ([]*models.Record, error)
	ByFacility(ctx context.Context, facilityID id.FacilityID, limit int) ([]*models.Record, error)
	All(ctx context.Context, result *models.Result, limit int) ([]*models.Record, error)
}

type Handler struct {
	ledger Ledger
	logger *slog.Logger
}

func New(ledger Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/access-logs", h.HandleAll)
	r.Get("/access-logs/worker/me", h.HandleOwnWorker)
	r.Get("/access-logs/patient/{patientID}", h.HandleByPatient)
	r.Get("/access-logs/facility/{facilityID}", h.HandleByFacility)
}

type RecordResponse struct {
	LogID      string    `json:"log_id"`
	PatientID  string    `json:"patient_id"`
	AccessedBy string    `json:"accessed_by"`
	FacilityID string    `json:"facility_id"`
	Action     string    `json:"action"`
	Result     string    `json:"result"`
	Reason     *string   `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
	IPAddress  *string   `json:"ip_address"`
}

type ListResponse struct {
	Logs  []RecordResponse `json:"logs"`
	Total int              `json:"total"`
}

// HandleByPatient handles GET /access-logs/patient/{patientID}. Patients read
// their own history; admins read anyone's.
func (h *Handler) HandleByPatient(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, identity.CapViewPatientLogs)
	if !ok {
		return
	}
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if principal.Role == identity.RolePatient && !principal.IsPatient(patientID) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Not authorized to view these access logs"))
		return
	}
	h.list(w, r, func(ctx context.Context, limit int) ([]*models.Record, error) {
		return h.ledger.ByPatient(ctx, patientID, limit)
	})
}

// HandleOwnWorker handles GET /access-logs/worker/me.
func (h *Handler) HandleOwnWorker(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, identity.CapViewOwnWorkerLogs)
	if !ok {
		return
	}
	h.list(w, r, func(ctx context.Context, limit int) ([]*models.Record, error) {
		return h.ledger.ByWorker(ctx, principal.WorkerID(), limit)
	})
}

// HandleByFacility handles GET /access-logs/facility/{facilityID}.
func (h *Handler) HandleByFacility(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, identity.CapViewFacilityLogs)
	if !ok {
		return
	}
	facilityID, err := id.ParseFacilityID(chi.URLParam(r, "facilityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if principal.Role == identity.RoleWorker && !principal.WorksAt(facilityID) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Not authorized to view access logs for this facility"))
		return
	}
	h.list(w, r, func(ctx context.Context, limit int) ([]*models.Record, error) {
		return h.ledger.ByFacility(ctx, facilityID, limit)
	})
}

// HandleAll handles GET /access-logs with an optional ?result= filter.
func (h *Handler) HandleAll(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, identity.CapViewAllLogs); !ok {
		return
	}
	var result *models.Result
	if raw := r.URL.Query().Get("result"); raw != "" {
		parsed, err := models.ParseResult(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		result = &parsed
	}
	h.list(w, r, func(ctx context.Context, limit int) ([]*models.Record, error) {
		return h.ledger.All(ctx, result, limit)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, query func(context.Context, int) ([]*models.Record, error)) {
	ctx := r.Context()
	limit, err := httputil.QueryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := query(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read access ledger", "error", err)
		httputil.WriteError(w, err)
		return
	}

	res := ListResponse{Logs: make([]RecordResponse, 0, len(records)), Total: len(records)}
	for _, rec := range records {
		res.Logs = append(res.Logs, RecordResponse{
			LogID:      rec.ID.String(),
			PatientID:  rec.PatientID.String(),
			AccessedBy: rec.WorkerID.String(),
			FacilityID: rec.FacilityID.String(),
			Action:     rec.Action.String(),
			Result:     rec.Result.String(),
			Reason:     rec.Reason,
			Timestamp:  rec.Timestamp,
			IPAddress:  rec.ClientIP,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, res)
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
