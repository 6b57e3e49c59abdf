package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "healthconsent/pkg/domain-errors"
)

type accessBody struct {
	Action     string `json:"action" validate:"required,oneof=view edit share"`
	FacilityID string `json:"facility_id" validate:"omitempty,max=7"`
}

func (r *accessBody) Normalize() {
	r.FacilityID = strings.TrimSpace(r.FacilityID)
}

type purposeBody struct {
	Purpose string `json:"purpose" validate:"required"`
	checked bool
}

func (r *purposeBody) Validate() error {
	r.checked = true
	if r.Purpose == "forbidden" {
		return errors.New("purpose not allowed")
	}
	return nil
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestDecodeJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("decodes a valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"view"}`))
		w := httptest.NewRecorder()

		got, ok := DecodeJSON[accessBody](ctx, w, req, logger)
		require.True(t, ok)
		assert.Equal(t, "view", got.Action)
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{nope`))
		w := httptest.NewRecorder()

		got, ok := DecodeJSON[accessBody](ctx, w, req, logger)
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeResponse(t, w).Error)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"view","role":"admin"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeJSON[accessBody](ctx, w, req, logger)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("normalizes before validating tags", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"share","facility_id":"  FAC-001 "}`))
		w := httptest.NewRecorder()

		got, ok := DecodeAndPrepare[accessBody](ctx, w, req, logger)
		require.True(t, ok)
		assert.Equal(t, "FAC-001", got.FacilityID)
	})

	t.Run("action vocabulary is case-sensitive", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"SHARE"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[accessBody](ctx, w, req, logger)
		assert.False(t, ok)
		assert.Equal(t, "validation_error", decodeResponse(t, w).Error)
	})

	t.Run("tag failure is a validation error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"delete"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[accessBody](ctx, w, req, logger)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Contains(t, resp.ErrorDescription, "action must be one of: view edit share")
	})

	t.Run("missing required field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[purposeBody](ctx, w, req, logger)
		assert.False(t, ok)
		assert.Contains(t, decodeResponse(t, w).ErrorDescription, "purpose is required")
	})

	t.Run("custom Validate runs after tags", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"purpose":"forbidden"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[purposeBody](ctx, w, req, logger)
		assert.False(t, ok)
		resp := decodeResponse(t, w)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "purpose not allowed", resp.ErrorDescription)
	})

	t.Run("domain errors from Validate keep their code", func(t *testing.T) {
		err := PrepareRequest(&struct{}{})
		assert.NoError(t, err)
	})
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", dErrors.New(dErrors.CodeNotFound, "consent not found"), http.StatusNotFound, "not_found"},
		{"forbidden", dErrors.New(dErrors.CodeForbidden, "not your consent"), http.StatusForbidden, "forbidden"},
		{"conflict", dErrors.New(dErrors.CodeConflict, "consent already revoked"), http.StatusConflict, "conflict"},
		{"unavailable", dErrors.New(dErrors.CodeUnavailable, "registry down"), http.StatusServiceUnavailable, "service_unavailable"},
		{"timeout", dErrors.New(dErrors.CodeTimeout, "registry slow"), http.StatusGatewayTimeout, "registry_timeout"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeResponse(t, w).Error)
		})
	}

	t.Run("plain errors do not leak their message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: password authentication failed"))
		assert.Empty(t, decodeResponse(t, w).ErrorDescription)
	})
}

func TestQueryLimit(t *testing.T) {
	n, err := QueryLimit(httptest.NewRequest(http.MethodGet, "/access-logs", nil))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = QueryLimit(httptest.NewRequest(http.MethodGet, "/access-logs?limit=25", nil))
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = QueryLimit(httptest.NewRequest(http.MethodGet, "/access-logs?limit=abc", nil))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}
