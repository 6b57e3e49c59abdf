package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"healthconsent/internal/consent/evaluator"
	"healthconsent/internal/consent/models"
	"healthconsent/internal/consent/service"
	"healthconsent/internal/consent/store"
	"healthconsent/internal/identity"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/httputil"
	"healthconsent/pkg/platform/middleware/requesttime"
	"healthconsent/pkg/testutil"
)

const validPurpose = "Follow-up after cardiology referral"

var (
	patient      = &identity.Principal{Subject: "p-1", Role: identity.RolePatient}
	otherPatient = &identity.Principal{Subject: "p-2", Role: identity.RolePatient}
	worker       = &identity.Principal{Subject: "w-1", Role: identity.RoleWorker, FacilityID: "fac-1"}
	outsider     = &identity.Principal{Subject: "w-9", Role: identity.RoleWorker, FacilityID: "fac-9"}
	admin        = &identity.Principal{Subject: "a-1", Role: identity.RoleAdmin}
)

type HandlerSuite struct {
	suite.Suite
	now    time.Time
	store  *store.InMemoryStore
	router chi.Router
}

func (s *HandlerSuite) SetupTest() {
	s.now = testutil.FixedNow
	s.store = store.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(s.store, nil, logger)
	eval := evaluator.New(s.store, nil, logger)

	s.router = chi.NewRouter()
	New(svc, eval, logger).Register(s.router)
}

func (s *HandlerSuite) do(p *identity.Principal, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	ctx := requesttime.WithTime(req.Context(), s.now)
	if p != nil {
		ctx = identity.WithPrincipal(ctx, p)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *HandlerSuite) grant(facility, kind string) ConsentResponse {
	w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
		FacilityID:  facility,
		ConsentType: kind,
		Purpose:     validPurpose,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var res ConsentResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code, description string) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	res := decode[httputil.ErrorResponse](t, w)
	assert.Equal(t, code, res.Error)
	if description != "" {
		assert.Equal(t, description, res.ErrorDescription)
	}
}

func (s *HandlerSuite) TestGrant() {
	s.Run("patient grants consent to a facility", func() {
		res := s.grant("fac-1", "view")
		s.Equal("p-1", res.PatientID)
		s.Equal("fac-1", res.FacilityID)
		s.Equal("view", res.ConsentType)
		s.Equal("active", res.Status)
		s.Equal("p-1", res.GrantedBy)
		s.True(s.now.Equal(res.GrantedAt))
		s.Nil(res.RevokedAt)
	})

	s.Run("purpose shorter than 10 characters is rejected", func() {
		w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
			FacilityID: "fac-1", ConsentType: "view", Purpose: "short",
		})
		assertErrorResponse(s.T(), w, http.StatusBadRequest, "validation_error", "purpose must be at least 10 characters")
	})

	s.Run("purpose length counts characters not bytes", func() {
		w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
			FacilityID: "fac-1", ConsentType: "view", Purpose: "Ärzte-Übg",
		})
		assertErrorResponse(s.T(), w, http.StatusBadRequest, "validation_error", "purpose must be at least 10 characters")
	})

	s.Run("consent type is case-sensitive", func() {
		for _, kind := range []string{"VIEW", "Share", " edit "} {
			w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
				FacilityID: "fac-1", ConsentType: kind, Purpose: validPurpose,
			})
			assertErrorResponse(s.T(), w, http.StatusBadRequest, "validation_error", "")
		}
	})

	s.Run("unknown consent type is rejected", func() {
		w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
			FacilityID: "fac-1", ConsentType: "delete", Purpose: validPurpose,
		})
		assertErrorResponse(s.T(), w, http.StatusBadRequest, "validation_error", "")
	})

	s.Run("expiry in the past is rejected", func() {
		past := s.now.Add(-time.Hour)
		w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
			FacilityID: "fac-1", ConsentType: "view", Purpose: validPurpose, ExpiresAt: &past,
		})
		assertErrorResponse(s.T(), w, http.StatusBadRequest, "validation_error", "")
	})

	s.Run("workers cannot grant", func() {
		w := s.do(worker, http.MethodPost, "/consents", GrantRequest{
			FacilityID: "fac-1", ConsentType: "view", Purpose: validPurpose,
		})
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "")
	})

	s.Run("anonymous callers are rejected", func() {
		w := s.do(nil, http.MethodPost, "/consents", GrantRequest{})
		assertErrorResponse(s.T(), w, http.StatusUnauthorized, "unauthorized", "")
	})
}

func (s *HandlerSuite) TestRegrantReplacesActiveConsent() {
	first := s.grant("fac-1", "view")
	second := s.grant("fac-1", "edit")

	w := s.do(patient, http.MethodGet, "/consents/patient/p-1", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	list := decode[ListResponse](s.T(), w)
	s.Require().Equal(2, list.Total)

	byID := map[string]ConsentResponse{}
	for _, c := range list.Consents {
		byID[c.ConsentID] = c
	}
	s.Equal("revoked", byID[first.ConsentID].Status)
	s.Equal("active", byID[second.ConsentID].Status)
}

func (s *HandlerSuite) TestRevoke() {
	granted := s.grant("fac-1", "view")
	path := "/consents/" + granted.ConsentID + "/revoke"

	s.Run("another patient cannot revoke", func() {
		w := s.do(otherPatient, http.MethodPatch, path, nil)
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "not authorized to revoke this consent")
	})

	s.Run("owner revokes", func() {
		w := s.do(patient, http.MethodPatch, path, nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		res := decode[RevokeResponse](s.T(), w)
		s.Equal(granted.ConsentID, res.ConsentID)
		s.Equal("Consent revoked successfully", res.Message)
		s.True(s.now.Equal(res.RevokedAt))
	})

	s.Run("second revoke conflicts", func() {
		w := s.do(patient, http.MethodPatch, path, nil)
		assertErrorResponse(s.T(), w, http.StatusConflict, "conflict", "consent already revoked")
	})

	s.Run("unknown consent", func() {
		w := s.do(patient, http.MethodPatch, "/consents/"+id.NewConsentID().String()+"/revoke", nil)
		assertErrorResponse(s.T(), w, http.StatusNotFound, "not_found", "")
	})

	s.Run("malformed consent id", func() {
		w := s.do(patient, http.MethodPatch, "/consents/not-a-uuid/revoke", nil)
		assertErrorResponse(s.T(), w, http.StatusBadRequest, "bad_request", "")
	})
}

func (s *HandlerSuite) TestListByPatient() {
	s.grant("fac-1", "view")

	s.Run("patient cannot read another patient's consents", func() {
		w := s.do(otherPatient, http.MethodGet, "/consents/patient/p-1", nil)
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "Not authorized to view these consents")
	})

	s.Run("worker with view consent can list", func() {
		w := s.do(worker, http.MethodGet, "/consents/patient/p-1", nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		s.Equal(1, decode[ListResponse](s.T(), w).Total)
	})

	s.Run("worker without consent is refused", func() {
		w := s.do(outsider, http.MethodGet, "/consents/patient/p-1", nil)
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "No active consent to view patient consents")
	})

	s.Run("admin lists everything", func() {
		w := s.do(admin, http.MethodGet, "/consents/patient/p-1", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal(1, decode[ListResponse](s.T(), w).Total)
	})

	s.Run("status filter", func() {
		w := s.do(patient, http.MethodGet, "/consents/patient/p-1?status=revoked", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal(0, decode[ListResponse](s.T(), w).Total)
	})

	s.Run("unknown status filter", func() {
		w := s.do(patient, http.MethodGet, "/consents/patient/p-1?status=pending", nil)
		assertErrorResponse(s.T(), w, http.StatusBadRequest, "bad_request", "")
	})

	s.Run("empty history is an empty list", func() {
		w := s.do(admin, http.MethodGet, "/consents/patient/nobody", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		list := decode[ListResponse](s.T(), w)
		s.Equal(0, list.Total)
		s.NotNil(list.Consents)
	})
}

func (s *HandlerSuite) TestListShowsLapsedGrantAsExpired() {
	expires := s.now.Add(time.Minute)
	w := s.do(patient, http.MethodPost, "/consents", GrantRequest{
		FacilityID: "fac-1", ConsentType: "view", Purpose: validPurpose, ExpiresAt: &expires,
	})
	s.Require().Equal(http.StatusCreated, w.Code)

	s.now = s.now.Add(time.Hour)
	w = s.do(patient, http.MethodGet, "/consents/patient/p-1", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	list := decode[ListResponse](s.T(), w)
	s.Require().Len(list.Consents, 1)
	s.Equal("expired", list.Consents[0].Status)
}

func (s *HandlerSuite) TestListByFacility() {
	s.grant("fac-1", "share")

	s.Run("worker of the facility", func() {
		w := s.do(worker, http.MethodGet, "/consents/facility/fac-1", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal(1, decode[ListResponse](s.T(), w).Total)
	})

	s.Run("worker of another facility", func() {
		w := s.do(outsider, http.MethodGet, "/consents/facility/fac-1", nil)
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "Not authorized to view consents for this facility")
	})

	s.Run("patients have no facility view", func() {
		w := s.do(patient, http.MethodGet, "/consents/facility/fac-1", nil)
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "")
	})
}

func (s *HandlerSuite) TestCheck() {
	s.grant("fac-1", "view")

	s.Run("covered kind", func() {
		w := s.do(worker, http.MethodPost, "/consents/check", CheckRequest{
			PatientID: "p-1", FacilityID: "fac-1", ConsentType: "view",
		})
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		res := decode[CheckResponse](s.T(), w)
		s.True(res.HasConsent)
		s.Equal(models.MessageActiveConsent, res.Message)
		s.Require().NotNil(res.Status)
		s.Equal("active", *res.Status)
	})

	s.Run("insufficient kind", func() {
		w := s.do(admin, http.MethodPost, "/consents/check", CheckRequest{
			PatientID: "p-1", FacilityID: "fac-1", ConsentType: "share",
		})
		s.Require().Equal(http.StatusOK, w.Code)
		res := decode[CheckResponse](s.T(), w)
		s.False(res.HasConsent)
		s.Equal("INSUFFICIENT_CONSENT", res.Reason)
		s.Equal("Insufficient consent. Required: share, Granted: view", res.Message)
	})

	s.Run("no consent", func() {
		w := s.do(worker, http.MethodPost, "/consents/check", CheckRequest{
			PatientID: "p-1", FacilityID: "fac-2", ConsentType: "view",
		})
		s.Require().Equal(http.StatusOK, w.Code)
		res := decode[CheckResponse](s.T(), w)
		s.False(res.HasConsent)
		s.Nil(res.ConsentID)
		s.Equal("No active consent found", res.Message)
	})

	s.Run("patients cannot check", func() {
		w := s.do(patient, http.MethodPost, "/consents/check", CheckRequest{
			PatientID: "p-1", FacilityID: "fac-1", ConsentType: "view",
		})
		assertErrorResponse(s.T(), w, http.StatusForbidden, "forbidden", "")
	})
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

type failingService struct{ err error }

func (f failingService) Grant(context.Context, service.GrantCommand) (*models.Grant, error) {
	return nil, f.err
}

func (f failingService) Revoke(context.Context, id.PatientID, id.ConsentID) (*models.Grant, error) {
	return nil, f.err
}

func (f failingService) ListByPatient(context.Context, id.PatientID, *models.GrantFilter) ([]*models.Grant, error) {
	return nil, f.err
}

func (f failingService) ListByFacility(context.Context, id.FacilityID, *models.GrantFilter) ([]*models.Grant, error) {
	return nil, f.err
}

type failingEvaluator struct{ err error }

func (f failingEvaluator) Evaluate(context.Context, id.PatientID, id.FacilityID, models.Kind) (*models.Evaluation, error) {
	return nil, f.err
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"internal", dErrors.New(dErrors.CodeInternal, "failed to list consents"), http.StatusInternalServerError},
		{"timeout", dErrors.New(dErrors.CodeTimeout, "consent transaction timed out"), http.StatusGatewayTimeout},
		{"opaque", errors.New("boom"), http.StatusInternalServerError},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			New(failingService{err: tt.err}, failingEvaluator{err: tt.err}, logger).Register(r)

			for _, path := range []string{"/consents/facility/fac-1", "/consents/patient/p-1"} {
				req := httptest.NewRequest(http.MethodGet, path, nil)
				req = req.WithContext(identity.WithPrincipal(req.Context(), worker))
				w := httptest.NewRecorder()
				r.ServeHTTP(w, req)
				assert.Equal(t, tt.status, w.Code, path)
			}
		})
	}
}
