package qcconfig

import "errors"

var (
	// ErrNotFound is returned when no active configuration exists for the
	// requested scope.
	ErrNotFound = errors.New("qc config not found")

	// ErrValidation is returned when a submitted configuration fails the
	// domain validation rules (percentage range, rule bounds, overlaps).
	ErrValidation = errors.New("invalid qc config")
)
