package models

import (
	"strings"

	dErrors "healthconsent/pkg/domain-errors"
)

// Kind is the scope of a grant. Kinds are totally ordered VIEW < EDIT < SHARE
// and a grant of one kind covers every lesser kind.
type Kind string

const (
	KindView  Kind = "view"
	KindEdit  Kind = "edit"
	KindShare Kind = "share"
)

var kindRank = map[Kind]int{
	KindView:  1,
	KindEdit:  2,
	KindShare: 3,
}

// ParseKind accepts exactly the wire vocabulary. Matching is case-sensitive.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown consent kind: must be one of view, edit, share")
	}
	return k, nil
}

func (k Kind) IsValid() bool {
	_, ok := kindRank[k]
	return ok
}

// Rank is 0 for unknown kinds.
func (k Kind) Rank() int {
	return kindRank[k]
}

// Covers reports whether a grant of kind k authorizes the requested kind.
func (k Kind) Covers(requested Kind) bool {
	return k.IsValid() && requested.IsValid() && k.Rank() >= requested.Rank()
}

func (k Kind) String() string { return string(k) }

// Status is the lifecycle state of a grant. Revoked is terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown consent status: must be one of active, expired, revoked")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusExpired || s == StatusRevoked
}

// CanTransitionTo encodes the allowed lifecycle moves. Expiry may be written
// twice by concurrent evaluations, and a patient may still revoke an expired
// grant. Nothing leaves revoked.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive, StatusExpired:
		return next == StatusExpired || next == StatusRevoked
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
