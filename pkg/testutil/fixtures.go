package testutil

import (
	"time"

	consentmodels "healthconsent/internal/consent/models"
	ledgermodels "healthconsent/internal/ledger/models"
	id "healthconsent/pkg/domain"
)

// TestIDs are fixed identifiers for deterministic test data.
var TestIDs = struct {
	Patient1  id.PatientID
	Patient2  id.PatientID
	Facility1 id.FacilityID
	Facility2 id.FacilityID
	Worker1   id.WorkerID
	Worker2   id.WorkerID
	Admin1    id.SubjectID
}{
	Patient1:  "PAT-000001",
	Patient2:  "PAT-000002",
	Facility1: "FAC-000001",
	Facility2: "FAC-000002",
	Worker1:   "WRK-000001",
	Worker2:   "WRK-000002",
	Admin1:    "ADM-000001",
}

// FixedNow is the reference instant used by builders.
var FixedNow = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

// GrantBuilder provides a fluent interface for building test grants.
type GrantBuilder struct {
	grant *consentmodels.Grant
}

// NewGrantBuilder starts from an active, non-expiring VIEW grant of
// Patient1 to Facility1.
func NewGrantBuilder() *GrantBuilder {
	return &GrantBuilder{
		grant: &consentmodels.Grant{
			ID:         id.NewConsentID(),
			PatientID:  TestIDs.Patient1,
			FacilityID: TestIDs.Facility1,
			Kind:       consentmodels.KindView,
			Purpose:    "Routine consultation and follow-up care",
			GrantedBy:  id.SubjectID(TestIDs.Patient1),
			GrantedAt:  FixedNow,
			Status:     consentmodels.StatusActive,
		},
	}
}

func (b *GrantBuilder) WithID(consentID id.ConsentID) *GrantBuilder {
	b.grant.ID = consentID
	return b
}

// WithPatient also sets GrantedBy, since patients grant their own consent.
func (b *GrantBuilder) WithPatient(patientID id.PatientID) *GrantBuilder {
	b.grant.PatientID = patientID
	b.grant.GrantedBy = id.SubjectID(patientID)
	return b
}

func (b *GrantBuilder) WithFacility(facilityID id.FacilityID) *GrantBuilder {
	b.grant.FacilityID = facilityID
	return b
}

func (b *GrantBuilder) WithKind(kind consentmodels.Kind) *GrantBuilder {
	b.grant.Kind = kind
	return b
}

func (b *GrantBuilder) WithGrantedAt(t time.Time) *GrantBuilder {
	b.grant.GrantedAt = t
	return b
}

func (b *GrantBuilder) WithExpiresAt(t time.Time) *GrantBuilder {
	b.grant.ExpiresAt = &t
	return b
}

func (b *GrantBuilder) Revoked(at time.Time) *GrantBuilder {
	b.grant.Status = consentmodels.StatusRevoked
	b.grant.RevokedAt = &at
	return b
}

func (b *GrantBuilder) Expired() *GrantBuilder {
	b.grant.Status = consentmodels.StatusExpired
	return b
}

func (b *GrantBuilder) Build() *consentmodels.Grant {
	return b.grant.Clone()
}

// RecordBuilder builds access ledger records. The default is an allowed VIEW
// by Worker1 of Facility1 on Patient1 at FixedNow.
type RecordBuilder struct {
	rec *ledgermodels.Record
}

func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{
		rec: &ledgermodels.Record{
			ID:         id.NewRecordID(),
			PatientID:  TestIDs.Patient1,
			WorkerID:   TestIDs.Worker1,
			FacilityID: TestIDs.Facility1,
			Action:     ledgermodels.ActionView,
			Result:     ledgermodels.ResultAllowed,
			Timestamp:  FixedNow,
		},
	}
}

func (b *RecordBuilder) WithPatient(patientID id.PatientID) *RecordBuilder {
	b.rec.PatientID = patientID
	return b
}

func (b *RecordBuilder) WithWorker(workerID id.WorkerID, facilityID id.FacilityID) *RecordBuilder {
	b.rec.WorkerID = workerID
	b.rec.FacilityID = facilityID
	return b
}

func (b *RecordBuilder) WithAction(action ledgermodels.Action) *RecordBuilder {
	b.rec.Action = action
	return b
}

func (b *RecordBuilder) At(t time.Time) *RecordBuilder {
	b.rec.Timestamp = t
	return b
}

func (b *RecordBuilder) WithClientIP(ip string) *RecordBuilder {
	b.rec.ClientIP = &ip
	return b
}

func (b *RecordBuilder) Denied(reason string) *RecordBuilder {
	b.rec.Result = ledgermodels.ResultDenied
	b.rec.Reason = &reason
	return b
}

func (b *RecordBuilder) Build() *ledgermodels.Record {
	return b.rec.Clone()
}
