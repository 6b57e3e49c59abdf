// Package models defines the access ledger record. Records are immutable once
// built: nothing in the ledger updates or deletes them.
package models

import (
	"strings"
	"time"

	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
)

// Action is what a worker attempted to do with a patient's record.
type Action string

const (
	ActionView  Action = "view"
	ActionEdit  Action = "edit"
	ActionShare Action = "share"
)

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid action: must be one of view, edit, share")
	}
	return a, nil
}

func (a Action) IsValid() bool {
	switch a {
	case ActionView, ActionEdit, ActionShare:
		return true
	}
	return false
}

func (a Action) String() string { return string(a) }

type Result string

const (
	ResultAllowed Result = "allowed"
	ResultDenied  Result = "denied"
)

func ParseResult(s string) (Result, error) {
	r := Result(strings.ToLower(strings.TrimSpace(s)))
	if r != ResultAllowed && r != ResultDenied {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid result: must be allowed or denied")
	}
	return r, nil
}

func (r Result) String() string { return string(r) }

// Record is one access attempt. Reason is set for denials; ClientIP when known.
type Record struct {
	ID         id.RecordID
	PatientID  id.PatientID
	WorkerID   id.WorkerID
	FacilityID id.FacilityID
	Action     Action
	Result     Result
	Reason     *string
	Timestamp  time.Time
	ClientIP   *string
}

// NewRecord builds a ledger entry. Allowed records never carry a reason and
// denied records always do.
func NewRecord(
	recordID id.RecordID,
	patientID id.PatientID,
	workerID id.WorkerID,
	facilityID id.FacilityID,
	action Action,
	result Result,
	reason string,
	clientIP string,
	at time.Time,
) (*Record, error) {
	if recordID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record id is required")
	}
	if patientID.IsNil() || workerID.IsNil() || facilityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient, worker and facility are required")
	}
	if !action.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid action")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "timestamp is required")
	}

	rec := &Record{
		ID:         recordID,
		PatientID:  patientID,
		WorkerID:   workerID,
		FacilityID: facilityID,
		Action:     action,
		Result:     result,
		Timestamp:  at,
	}
	switch result {
	case ResultAllowed:
	case ResultDenied:
		if reason == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "denied record requires a reason")
		}
		rec.Reason = &reason
	default:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid result")
	}
	if clientIP != "" {
		rec.ClientIP = &clientIP
	}
	return rec, nil
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Reason != nil {
		reason := *r.Reason
		out.Reason = &reason
	}
	if r.ClientIP != nil {
		ip := *r.ClientIP
		out.ClientIP = &ip
	}
	return &out
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Query selects records newest first. Unset fields do not filter.
type Query struct {
	PatientID  *id.PatientID
	WorkerID   *id.WorkerID
	FacilityID *id.FacilityID
	Result     *Result
	Limit      int
}

func (q Query) Matches(r *Record) bool {
	if q.PatientID != nil && r.PatientID != *q.PatientID {
		return false
	}
	if q.WorkerID != nil && r.WorkerID != *q.WorkerID {
		return false
	}
	if q.FacilityID != nil && r.FacilityID != *q.FacilityID {
		return false
	}
	if q.Result != nil && r.Result != *q.Result {
		return false
	}
	return true
}

// ClampLimit applies the default for non-positive limits and caps at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
