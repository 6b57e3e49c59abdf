package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "healthconsent/pkg/domain-errors"
)

func TestParseConsentID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseConsentID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects malformed uuid", func(t *testing.T) {
		_, err := ParseConsentID("CON-123")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("round trips a valid uuid", func(t *testing.T) {
		raw := uuid.New()
		got, err := ParseConsentID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, raw.String(), got.String())
		assert.False(t, got.IsNil())
	})
}

func TestParseOpaqueIDs(t *testing.T) {
	t.Run("trims whitespace", func(t *testing.T) {
		got, err := ParsePatientID("  PAT-123456 ")
		require.NoError(t, err)
		assert.Equal(t, PatientID("PAT-123456"), got)
	})

	t.Run("rejects blank", func(t *testing.T) {
		_, err := ParseFacilityID("   ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects oversize ids", func(t *testing.T) {
		_, err := ParseWorkerID(strings.Repeat("w", maxOpaqueIDLength+1))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
