package handler

import (
	"time"

	"healthconsent/internal/consent/models"
)

type ConsentResponse struct {
	ConsentID   string     `json:"consent_id"`
	PatientID   string     `json:"patient_id"`
	FacilityID  string     `json:"facility_id"`
	ConsentType string     `json:"consent_type"`
	Purpose     string     `json:"purpose"`
	Status      string     `json:"status"`
	GrantedBy   string     `json:"granted_by"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

type ListResponse struct {
	Consents []ConsentResponse `json:"consents"`
	Total    int               `json:"total"`
}

type RevokeResponse struct {
	ConsentID string    `json:"consent_id"`
	RevokedAt time.Time `json:"revoked_at"`
	Message   string    `json:"message"`
}

type CheckResponse struct {
	HasConsent  bool       `json:"has_consent"`
	ConsentID   *string    `json:"consent_id,omitempty"`
	ConsentType *string    `json:"consent_type,omitempty"`
	Status      *string    `json:"status,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Message     string     `json:"message"`
}

// toConsentResponse reports the effective status, so a grant past its expiry
// reads as expired even before an evaluation has persisted that.
func toConsentResponse(g *models.Grant, now time.Time) ConsentResponse {
	return ConsentResponse{
		ConsentID:   g.ID.String(),
		PatientID:   g.PatientID.String(),
		FacilityID:  g.FacilityID.String(),
		ConsentType: g.Kind.String(),
		Purpose:     g.Purpose,
		Status:      g.EffectiveStatus(now).String(),
		GrantedBy:   g.GrantedBy.String(),
		GrantedAt:   g.GrantedAt,
		ExpiresAt:   g.ExpiresAt,
		RevokedAt:   g.RevokedAt,
	}
}

func toListResponse(grants []*models.Grant, now time.Time) ListResponse {
	out := ListResponse{Consents: make([]ConsentResponse, 0, len(grants)), Total: len(grants)}
	for _, g := range grants {
		out.Consents = append(out.Consents, toConsentResponse(g, now))
	}
	return out
}

func toCheckResponse(ev *models.Evaluation) CheckResponse {
	res := CheckResponse{
		HasConsent: ev.Authorized,
		Reason:     string(ev.Reason),
		Message:    ev.Message,
		ExpiresAt:  ev.ExpiresAt,
	}
	if ev.ConsentID != nil {
		s := ev.ConsentID.String()
		res.ConsentID = &s
	}
	if ev.Kind != nil {
		s := ev.Kind.String()
		res.ConsentType = &s
	}
	if ev.Status != nil {
		s := ev.Status.String()
		res.Status = &s
	}
	return res
}
