// Package sampling seals batches and evaluates their remainders.
//
// Sealing freezes a collecting batch: it resolves the effective QC config,
// draws a uniform random sample of ceil(n*pct/100) responses, marks sample
// and remainder rows pending review, and snapshots the config onto the
// batch so later rule edits cannot change its outcome.
//
// Evaluation runs whenever a sample verdict lands and from the periodic
// sweep. Once every sample response is adjudicated it computes the approval
// rate, walks the frozen rule table in order, and applies the first matching
// action to the remainder in a single atomic transition. Concurrent
// evaluations are safe: the store accepts exactly one terminal transition
// per batch.
package sampling
