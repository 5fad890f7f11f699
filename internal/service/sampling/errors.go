package sampling

import "errors"

var (
	// ErrNotFound is returned when the batch does not exist.
	ErrNotFound = errors.New("batch not found")

	// ErrAlreadySealed is returned when sealing a batch that has left the
	// collecting state. Sealing is idempotent at the store level; callers
	// usually treat this as benign.
	ErrAlreadySealed = errors.New("batch already sealed")

	// ErrEmptyBatch is returned when sealing a batch with no responses.
	ErrEmptyBatch = errors.New("batch has no responses")

	// ErrMembershipChanged is returned by the store when a response was
	// appended between the membership read and the seal transition. The
	// service re-reads and retries; the sentinel only escapes after the
	// retry budget is spent.
	ErrMembershipChanged = errors.New("batch membership changed during seal")

	// ErrAlreadyDecided is returned by the store when another evaluator won
	// the terminal transition for a batch.
	ErrAlreadyDecided = errors.New("batch remainder already decided")
)
