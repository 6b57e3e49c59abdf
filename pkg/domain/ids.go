// Package domain provides typed identifiers so a PatientID can never be passed
// where a FacilityID is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "healthconsent/pkg/domain-errors"
)

// Generated identifiers.
type (
	ConsentID uuid.UUID
	RecordID  uuid.UUID
)

// Externally issued identifiers. Patient ids come from the central registry,
// facility and worker ids from the directory; all are opaque strings here.
type (
	PatientID  string
	FacilityID string
	WorkerID   string
	SubjectID  string
)

// Parse functions are used at trust boundaries (handlers, token claims).

func ParseConsentID(s string) (ConsentID, error) {
	id, err := parseUUID(s, "consent ID")
	return ConsentID(id), err
}

func ParsePatientID(s string) (PatientID, error) {
	v, err := parseOpaque(s, "patient ID")
	return PatientID(v), err
}

func ParseFacilityID(s string) (FacilityID, error) {
	v, err := parseOpaque(s, "facility ID")
	return FacilityID(v), err
}

func ParseWorkerID(s string) (WorkerID, error) {
	v, err := parseOpaque(s, "worker ID")
	return WorkerID(v), err
}

func ParseSubjectID(s string) (SubjectID, error) {
	v, err := parseOpaque(s, "subject ID")
	return SubjectID(v), err
}

func (id ConsentID) String() string  { return uuid.UUID(id).String() }
func (id RecordID) String() string   { return uuid.UUID(id).String() }
func (id PatientID) String() string  { return string(id) }
func (id FacilityID) String() string { return string(id) }
func (id WorkerID) String() string   { return string(id) }
func (id SubjectID) String() string  { return string(id) }

func (id ConsentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool  { return id == "" }
func (id FacilityID) IsNil() bool { return id == "" }
func (id WorkerID) IsNil() bool   { return id == "" }
func (id SubjectID) IsNil() bool  { return id == "" }

// NewConsentID and NewRecordID are the default identifier generators.
func NewConsentID() ConsentID { return ConsentID(uuid.New()) }
func NewRecordID() RecordID   { return RecordID(uuid.New()) }

// maxOpaqueIDLength matches the VARCHAR(64) id columns.
const maxOpaqueIDLength = 64

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label+" format")
	}
	return id, nil
}

func parseOpaque(s, label string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, label+" cannot be empty")
	}
	if len(s) > maxOpaqueIDLength {
		return "", dErrors.New(dErrors.CodeBadRequest, label+" is too long")
	}
	return s, nil
}
