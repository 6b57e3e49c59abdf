// Package sentinel holds dependency-level errors. Stores and clients return
// these (optionally wrapped) so services translate them into domain errors once.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
