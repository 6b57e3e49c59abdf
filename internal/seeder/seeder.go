// Package seeder loads demo consents and access records into the in-memory
// stores so a fresh development server has something to query.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	consentmodels "healthconsent/internal/consent/models"
	ledgermodels "healthconsent/internal/ledger/models"
	id "healthconsent/pkg/domain"
)

// ConsentStore defines methods for seeding consent grants
type ConsentStore interface {
	Insert(ctx context.Context, grant *consentmodels.Grant) error
}

// LedgerStore defines methods for seeding access records
type LedgerStore interface {
	Append(ctx context.Context, rec *ledgermodels.Record) error
}

// Seeder populates stores with demo data
type Seeder struct {
	consents ConsentStore
	ledger   LedgerStore
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new seeder
func New(consents ConsentStore, ledger LedgerStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		consents: consents,
		ledger:   ledger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

const (
	facilityClinic   id.FacilityID = "FAC-001"
	facilityHospital id.FacilityID = "FAC-002"
	facilityPharmacy id.FacilityID = "FAC-003"
)

// SeedAll populates all stores with demo data
func (s *Seeder) SeedAll(ctx context.Context) error {
	s.logger.InfoContext(ctx, "seeding demo data...")

	grants, err := s.seedConsents(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed consents: %w", err)
	}

	records, err := s.seedAccessRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed access records: %w", err)
	}

	s.logger.InfoContext(ctx, "demo data seeded successfully",
		"consents", grants,
		"access_records", records,
	)
	return nil
}

func (s *Seeder) seedConsents(ctx context.Context) (int, error) {
	const day = 24 * time.Hour
	now := s.now()
	grantedAt := now.Add(-30 * day)

	demo := []struct {
		patient  id.PatientID
		facility id.FacilityID
		kind     consentmodels.Kind
		purpose  string
		expires  time.Duration
		revoked  time.Duration
	}{
		{"PAT-001234", facilityClinic, consentmodels.KindView, "Regular health checkup and consultation", 180 * day, 0},
		{"PAT-001234", facilityHospital, consentmodels.KindEdit, "Emergency treatment and medical records update", 90 * day, 0},
		{"PAT-001235", facilityClinic, consentmodels.KindShare, "Comprehensive care coordination with specialists", 0, 0},
		{"PAT-001235", facilityPharmacy, consentmodels.KindView, "Prescription fulfillment and medication counseling", 365 * day, 0},
		{"PAT-001236", facilityHospital, consentmodels.KindView, "Cardiac consultation and follow-up", 120 * day, 0},
		{"PAT-001236", facilityPharmacy, consentmodels.KindView, "Prescription medications", 60 * day, 0},
		// Past its expiry but still stored active; the first evaluation expires it.
		{"PAT-001237", facilityClinic, consentmodels.KindView, "Annual health screening", -day, 0},
		{"PAT-001237", facilityHospital, consentmodels.KindEdit, "Maternity care and delivery", 180 * day, 0},
		{"PAT-001238", facilityClinic, consentmodels.KindView, "General consultation", 0, -15 * day},
		{"PAT-001238", facilityPharmacy, consentmodels.KindView, "Medication management", 90 * day, 0},
	}

	for _, d := range demo {
		g := &consentmodels.Grant{
			ID:         id.NewConsentID(),
			PatientID:  d.patient,
			FacilityID: d.facility,
			Kind:       d.kind,
			Purpose:    d.purpose,
			GrantedBy:  id.SubjectID(d.patient),
			GrantedAt:  grantedAt,
			Status:     consentmodels.StatusActive,
		}
		if d.expires != 0 {
			exp := now.Add(d.expires)
			g.ExpiresAt = &exp
		}
		if d.revoked != 0 {
			at := now.Add(d.revoked)
			g.RevokedAt = &at
			g.Status = consentmodels.StatusRevoked
		}
		if err := s.consents.Insert(ctx, g); err != nil {
			return 0, err
		}
	}
	return len(demo), nil
}

func (s *Seeder) seedAccessRecords(ctx context.Context) (int, error) {
	now := s.now()

	demo := []struct {
		patient  id.PatientID
		worker   id.WorkerID
		facility id.FacilityID
		action   ledgermodels.Action
		result   ledgermodels.Result
		reason   string
		offset   time.Duration
	}{
		{"PAT-001234", "WRK-001", facilityClinic, ledgermodels.ActionView, ledgermodels.ResultAllowed, "", -3 * time.Hour},
		{"PAT-001234", "WRK-002", facilityHospital, ledgermodels.ActionEdit, ledgermodels.ResultAllowed, "", -2 * time.Hour},
		{"PAT-001235", "WRK-003", facilityPharmacy, ledgermodels.ActionShare, ledgermodels.ResultDenied,
			consentmodels.InsufficientMessage(consentmodels.KindShare, consentmodels.KindView), -90 * time.Minute},
		{"PAT-001238", "WRK-001", facilityClinic, ledgermodels.ActionView, ledgermodels.ResultDenied,
			consentmodels.MessageNoConsent, -time.Hour},
	}

	for _, d := range demo {
		rec, err := ledgermodels.NewRecord(id.NewRecordID(), d.patient, d.worker, d.facility,
			d.action, d.result, d.reason, "127.0.0.1", now.Add(d.offset))
		if err != nil {
			return 0, err
		}
		if err := s.ledger.Append(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(demo), nil
}
