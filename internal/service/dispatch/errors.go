package dispatch

import "errors"

var (
	// ErrNoneAvailable means no response currently matches the agent's
	// filters. Maps to an empty 404 on the API.
	ErrNoneAvailable = errors.New("no assignment available")

	// ErrLeaseRace means every candidate was leased by other agents between
	// the view read and the lease attempt. A retry will see fresh candidates.
	ErrLeaseRace = errors.New("lost lease race on all candidates")

	// ErrLeaseLost is the store-level signal that the conditional lease
	// update matched no row.
	ErrLeaseLost = errors.New("response no longer leasable")

	// ErrNotLeaseHolder is returned for skip or verify attempts by an agent
	// that does not hold a live lease on the response.
	ErrNotLeaseHolder = errors.New("agent does not hold the lease")

	// ErrInvalidMode rejects mode filters other than capi or cati.
	ErrInvalidMode = errors.New("invalid mode filter")

	// ErrMissingAgent rejects dispatch calls without an agent identity.
	ErrMissingAgent = errors.New("agent id required")
)
