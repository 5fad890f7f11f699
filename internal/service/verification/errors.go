package verification

import "errors"

var (
	// ErrNotFound is returned when the response does not exist.
	ErrNotFound = errors.New("response not found")

	// ErrInvalidVerdict rejects verdicts other than approve or reject.
	ErrInvalidVerdict = errors.New("verdict must be approve or reject")

	// ErrAlreadyDecided is returned when the response already carries a
	// final outcome. Repeated verdicts are refused, never merged.
	ErrAlreadyDecided = errors.New("response already decided")

	// ErrNotLeaseHolder is returned when the agent does not hold a live
	// lease on the response, including the case where the lease lapsed.
	ErrNotLeaseHolder = errors.New("agent does not hold a live lease")

	// ErrBatchNotReviewable is returned when the owning batch has left the
	// reviewable states, e.g. after an auto-approval finalized it.
	ErrBatchNotReviewable = errors.New("owning batch is not under review")
)
