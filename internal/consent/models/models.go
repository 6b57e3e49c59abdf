package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
)

// Purpose length bounds for grants.
const (
	MinPurposeLength = 10
	MaxPurposeLength = 500
)

// Grant is a patient's permission for one facility to act on their records.
//
// Only Status and RevokedAt change after creation. A grant is never deleted;
// history is kept for the patient's consent list and for audits.
type Grant struct {
	ID         id.ConsentID
	PatientID  id.PatientID
	FacilityID id.FacilityID
	Kind       Kind
	Purpose    string
	GrantedBy  id.SubjectID
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	Status     Status
}

// NewGrant creates an active Grant with domain invariant checks.
func NewGrant(
	consentID id.ConsentID,
	patientID id.PatientID,
	facilityID id.FacilityID,
	kind Kind,
	purpose string,
	grantedBy id.SubjectID,
	grantedAt time.Time,
	expiresAt *time.Time,
) (*Grant, error) {
	if consentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent ID required")
	}
	if patientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient ID required")
	}
	if facilityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "facility ID required")
	}
	if grantedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "granting subject required")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid consent kind")
	}
	purpose = strings.TrimSpace(purpose)
	if n := utf8.RuneCountInString(purpose); n < MinPurposeLength || n > MaxPurposeLength {
		return nil, dErrors.New(dErrors.CodeValidation, "purpose must be between 10 and 500 characters")
	}
	if grantedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grant time required")
	}
	if expiresAt != nil && !expiresAt.After(grantedAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must be after grant time")
	}
	return &Grant{
		ID:         consentID,
		PatientID:  patientID,
		FacilityID: facilityID,
		Kind:       kind,
		Purpose:    purpose,
		GrantedBy:  grantedBy,
		GrantedAt:  grantedAt,
		ExpiresAt:  expiresAt,
		Status:     StatusActive,
	}, nil
}

// IsExpiredAt is strict: a grant whose expiry equals now is still valid.
func (g *Grant) IsExpiredAt(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// EffectiveStatus reports the status a reader should see at now, folding in
// expiry that has not been persisted yet.
func (g *Grant) EffectiveStatus(now time.Time) Status {
	if g.Status == StatusActive && g.IsExpiredAt(now) {
		return StatusExpired
	}
	return g.Status
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (g *Grant) Clone() *Grant {
	if g == nil {
		return nil
	}
	c := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// GrantFilter narrows list queries. A nil Status returns every status.
type GrantFilter struct {
	Status *Status
}

func (f *GrantFilter) Matches(g *Grant) bool {
	if f == nil || f.Status == nil {
		return true
	}
	return g.Status == *f.Status
}

// PairKey identifies the (patient, facility) pair that owns at most one active
// grant. Length-prefixing keeps ids containing the separator unambiguous.
func PairKey(patientID id.PatientID, facilityID id.FacilityID) string {
	return fmt.Sprintf("%d:%s|%s", len(patientID), patientID, facilityID)
}
