package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
)

func TestNewPrincipal(t *testing.T) {
	t.Run("worker carries facility", func(t *testing.T) {
		p, err := NewPrincipal("w-1", "worker", "fac-9")
		require.NoError(t, err)
		assert.Equal(t, RoleWorker, p.Role)
		assert.Equal(t, id.FacilityID("fac-9"), p.FacilityID)
	})

	t.Run("worker without facility is rejected", func(t *testing.T) {
		_, err := NewPrincipal("w-1", "worker", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("patient ignores facility claim", func(t *testing.T) {
		p, err := NewPrincipal("p-1", "PATIENT", "fac-9")
		require.NoError(t, err)
		assert.Equal(t, RolePatient, p.Role)
		assert.True(t, p.FacilityID.IsNil())
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := NewPrincipal("x", "nurse", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("empty subject", func(t *testing.T) {
		_, err := NewPrincipal(" ", "admin", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestCapabilities(t *testing.T) {
	patient := &Principal{Subject: "p-1", Role: RolePatient}
	worker := &Principal{Subject: "w-1", Role: RoleWorker, FacilityID: "fac-1"}
	admin := &Principal{Subject: "a-1", Role: RoleAdmin}

	assert.True(t, patient.Can(CapGrantConsent))
	assert.False(t, worker.Can(CapGrantConsent))
	assert.False(t, admin.Can(CapGrantConsent))

	assert.True(t, worker.Can(CapAccessPatientRecord))
	assert.False(t, patient.Can(CapAccessPatientRecord))
	assert.False(t, admin.Can(CapAccessPatientRecord))

	assert.True(t, admin.Can(CapViewAllLogs))
	assert.False(t, worker.Can(CapViewAllLogs))

	var nobody *Principal
	assert.False(t, nobody.Can(CapCheckConsent))
	assert.True(t, dErrors.HasCode(nobody.Require(CapCheckConsent), dErrors.CodeForbidden))
}

func TestOwnership(t *testing.T) {
	patient := &Principal{Subject: "p-1", Role: RolePatient}
	worker := &Principal{Subject: "p-1", Role: RoleWorker, FacilityID: "fac-1"}

	assert.True(t, patient.IsPatient("p-1"))
	assert.False(t, worker.IsPatient("p-1"))
	assert.True(t, worker.WorksAt("fac-1"))
	assert.False(t, worker.WorksAt("fac-2"))
}

func TestContext(t *testing.T) {
	_, err := Require(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	p := &Principal{Subject: "a-1", Role: RoleAdmin}
	got, err := Require(WithPrincipal(context.Background(), p))
	require.NoError(t, err)
	assert.Same(t, p, got)
}
