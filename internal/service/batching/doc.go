// Package batching groups incoming survey responses into per-(survey,
// interviewer) batches and triggers the seal when a batch reaches capacity.
//
// The engine is the single write path from submission into the QC pipeline:
// it finds or creates the collecting batch for the response's key, appends
// atomically against the capacity bound, and hands full batches to the
// sampler. Appending the same response twice is a no-op, and batches left
// collecting at day end are sealed by the scheduler.
package batching
