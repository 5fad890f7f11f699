// Package dispatch hands pending responses to quality agents under
// time-bounded exclusive leases.
//
// Candidates come from the materialized assignment view (priority order,
// oldest first, skip-demoted last), but the lease itself is a conditional
// update against the responses table, so a stale view row can never
// double-assign. Losing a lease race to another agent just moves on to the
// next candidate.
package dispatch
