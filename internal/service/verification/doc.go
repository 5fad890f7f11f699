// Package verification applies agent verdicts to leased responses.
//
// A verdict is accepted only from the live lease holder, only while the
// response is pending, and only while the owning batch is still under review
// (qc_in_progress, or queued_for_qc for routed remainders). The decision and
// the lease release are one conditional update, so a lapsed lease or a rival
// decision can never be overwritten. Sample verdicts trigger remainder
// evaluation on the owning batch.
package verification
