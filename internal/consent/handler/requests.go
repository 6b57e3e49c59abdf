package handler

import (
	"strings"
	"time"
	"unicode/utf8"

	"healthconsent/internal/consent/models"
	dErrors "healthconsent/pkg/domain-errors"
)

// GrantRequest is the body of POST /consents.
type GrantRequest struct {
	FacilityID  string     `json:"facility_id" validate:"required,max=64"`
	ConsentType string     `json:"consent_type" validate:"required,oneof=view edit share"`
	Purpose     string     `json:"purpose" validate:"required,max=500"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (r *GrantRequest) Normalize() {
	r.FacilityID = strings.TrimSpace(r.FacilityID)
	r.Purpose = strings.TrimSpace(r.Purpose)
}

func (r *GrantRequest) Validate() error {
	if utf8.RuneCountInString(r.Purpose) < models.MinPurposeLength {
		return dErrors.New(dErrors.CodeValidation, "purpose must be at least 10 characters")
	}
	return nil
}

// CheckRequest is the body of POST /consents/check.
type CheckRequest struct {
	PatientID   string `json:"patient_id" validate:"required,max=64"`
	FacilityID  string `json:"facility_id" validate:"required,max=64"`
	ConsentType string `json:"consent_type" validate:"required,oneof=view edit share"`
}

func (r *CheckRequest) Normalize() {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.FacilityID = strings.TrimSpace(r.FacilityID)
}
