package models

import (
	"fmt"
	"time"

	id "healthconsent/pkg/domain"
)

// ReasonCode explains a negative evaluation.
type ReasonCode string

const (
	ReasonNoConsent           ReasonCode = "NO_CONSENT"
	ReasonConsentExpired      ReasonCode = "CONSENT_EXPIRED"
	ReasonConsentRevoked      ReasonCode = "CONSENT_REVOKED"
	ReasonInsufficientConsent ReasonCode = "INSUFFICIENT_CONSENT"
)

// Evaluation messages. They only ever mention the pair and kinds being evaluated.
const (
	MessageNoConsent     = "No active consent found"
	MessageExpired       = "Consent has expired"
	MessageActiveConsent = "Active consent found"
)

func InsufficientMessage(required, granted Kind) string {
	return fmt.Sprintf("Insufficient consent. Required: %s, Granted: %s", required, granted)
}

// Evaluation is the outcome of checking one (patient, facility, kind) request.
// Reason is empty when Authorized is true.
type Evaluation struct {
	Authorized bool
	Reason     ReasonCode
	Message    string
	ConsentID  *id.ConsentID
	Kind       *Kind
	Status     *Status
	ExpiresAt  *time.Time
}

// Allowed builds the positive outcome for an active, sufficient grant.
func Allowed(g *Grant) *Evaluation {
	return &Evaluation{
		Authorized: true,
		Message:    MessageActiveConsent,
		ConsentID:  &g.ID,
		Kind:       &g.Kind,
		Status:     &g.Status,
		ExpiresAt:  g.ExpiresAt,
	}
}

func Denied(reason ReasonCode, message string, g *Grant) *Evaluation {
	e := &Evaluation{Reason: reason, Message: message}
	if g != nil {
		e.ConsentID = &g.ID
		e.Kind = &g.Kind
		e.Status = &g.Status
		e.ExpiresAt = g.ExpiresAt
	}
	return e
}
