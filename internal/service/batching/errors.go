package batching

import "errors"

var (
	// ErrBatchFull is returned by the store when an append would exceed the
	// batch capacity. The engine reacts by sealing the full batch and
	// retrying against a fresh one.
	ErrBatchFull = errors.New("batch at capacity")

	// ErrAlreadyBatched is returned when the response is already attached to
	// a batch. Duplicate appends are benign no-ops.
	ErrAlreadyBatched = errors.New("response already batched")

	// ErrNotAppendable is returned when the response left the submitted
	// state before it could be attached.
	ErrNotAppendable = errors.New("response not in an appendable state")

	// ErrBatchConflict is returned when repeated append attempts keep losing
	// races against concurrent submitters.
	ErrBatchConflict = errors.New("batch contention, retry submission")

	// ErrInvalidSubmission is returned for submissions missing required
	// fields or carrying an unknown mode.
	ErrInvalidSubmission = errors.New("invalid submission")
)
