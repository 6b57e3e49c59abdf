// Package identity models the authenticated caller. Roles are a closed set and
// every role-dependent decision goes through Principal.Can.
package identity

import (
	"context"
	"strings"

	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleWorker  Role = "worker"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePatient, RoleWorker, RoleAdmin:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeUnauthorized, "unknown role")
	}
}

func (r Role) String() string { return string(r) }

// Capability names one thing a caller may attempt.
type Capability int

const (
	CapGrantConsent Capability = iota
	CapRevokeConsent
	CapCheckConsent
	CapListPatientConsents
	CapListFacilityConsents
	CapAccessPatientRecord
	CapViewPatientLogs
	CapViewOwnWorkerLogs
	CapViewFacilityLogs
	CapViewAllLogs
)

var capabilities = map[Role]map[Capability]bool{
	RolePatient: {
		CapGrantConsent:        true,
		CapRevokeConsent:       true,
		CapListPatientConsents: true,
		CapViewPatientLogs:     true,
	},
	RoleWorker: {
		CapCheckConsent:         true,
		CapListPatientConsents:  true,
		CapListFacilityConsents: true,
		CapAccessPatientRecord:  true,
		CapViewOwnWorkerLogs:    true,
		CapViewFacilityLogs:     true,
	},
	RoleAdmin: {
		CapCheckConsent:         true,
		CapListPatientConsents:  true,
		CapListFacilityConsents: true,
		CapViewPatientLogs:      true,
		CapViewFacilityLogs:     true,
		CapViewAllLogs:          true,
	},
}

// Principal is the caller as established by the bearer token.
// FacilityID is only set for workers.
type Principal struct {
	Subject    id.SubjectID
	Role       Role
	FacilityID id.FacilityID
}

// NewPrincipal checks the role-specific claim requirements.
func NewPrincipal(subject string, role string, facility string) (*Principal, error) {
	sub, err := id.ParseSubjectID(subject)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject is invalid")
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	p := &Principal{Subject: sub, Role: r}
	if r == RoleWorker {
		fac, err := id.ParseFacilityID(facility)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "worker token has no facility")
		}
		p.FacilityID = fac
	}
	return p, nil
}

func (p *Principal) Can(c Capability) bool {
	if p == nil {
		return false
	}
	return capabilities[p.Role][c]
}

// Require returns CodeForbidden when the capability is missing.
func (p *Principal) Require(c Capability) error {
	if !p.Can(c) {
		return dErrors.New(dErrors.CodeForbidden, "operation not permitted for this role")
	}
	return nil
}

// IsPatient reports whether the caller is the given patient.
func (p *Principal) IsPatient(patientID id.PatientID) bool {
	return p != nil && p.Role == RolePatient && string(p.Subject) == string(patientID)
}

// WorksAt reports whether the caller is a worker of the given facility.
func (p *Principal) WorksAt(facilityID id.FacilityID) bool {
	return p != nil && p.Role == RoleWorker && p.FacilityID == facilityID
}

func (p *Principal) PatientID() id.PatientID { return id.PatientID(p.Subject) }
func (p *Principal) WorkerID() id.WorkerID   { return id.WorkerID(p.Subject) }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal placed by the auth middleware, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Require fetches the principal or fails with CodeUnauthorized.
func Require(ctx context.Context) (*Principal, error) {
	p := FromContext(ctx)
	if p == nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}
