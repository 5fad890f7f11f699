package domain

import (
	"time"
)

// BatchStatus enumerates the lifecycle states of a QC batch.
type BatchStatus string

const (
	BatchCollecting   BatchStatus = "collecting"
	BatchQCInProgress BatchStatus = "qc_in_progress"
	BatchAutoApproved BatchStatus = "auto_approved"
	BatchQueuedForQC  BatchStatus = "queued_for_qc"
	BatchCompleted    BatchStatus = "completed"
)

// RemainderDecision is the outcome applied to a batch's un-sampled responses.
type RemainderDecision string

const (
	DecisionPending      RemainderDecision = "pending"
	DecisionAutoApproved RemainderDecision = "auto_approved"
	DecisionQueuedForQC  RemainderDecision = "queued_for_qc"
	DecisionRejectedAll  RemainderDecision = "rejected_all"
)

// QCStats tracks verdict tallies over a batch's sample responses.
// ApprovalRate is approved/(approved+rejected)*100, or 0 while the
// denominator is 0.
type QCStats struct {
	ApprovedCount int     `json:"approved_count" db:"approved_count"`
	RejectedCount int     `json:"rejected_count" db:"rejected_count"`
	PendingCount  int     `json:"pending_count" db:"pending_count"`
	ApprovalRate  float64 `json:"approval_rate" db:"approval_rate"`
}

// RemainderOutcome records which rule action decided the batch remainder.
type RemainderOutcome struct {
	Decision            RemainderDecision `json:"decision" db:"remainder_decision"`
	DecidedAt           *time.Time        `json:"decided_at" db:"remainder_decided_at"`
	TriggerApprovalRate *float64          `json:"trigger_approval_rate" db:"trigger_approval_rate"`
}

// ConfigSnapshot is the QC configuration frozen into a batch at seal time.
// Rule changes after seal never affect an already-sealed batch.
type ConfigSnapshot struct {
	SamplePercentage int            `json:"sample_percentage"`
	ApprovalRules    []ApprovalRule `json:"approval_rules"`
}

// Batch groups responses from one interviewer on one survey into a
// statistical unit. Responses accumulate while collecting; sealing selects
// the random sample and snapshots the active config.
type Batch struct {
	ID            string      `json:"id" db:"id"`
	TenantID      string      `json:"tenant_id" db:"tenant_id"`
	SurveyID      string      `json:"survey_id" db:"survey_id"`
	InterviewerID string      `json:"interviewer_id" db:"interviewer_id"`
	BatchDate     time.Time   `json:"batch_date" db:"batch_date"`
	Status        BatchStatus `json:"status" db:"status"`

	ResponseCount  int `json:"response_count" db:"response_count"`
	SampleCount    int `json:"sample_count" db:"sample_count"`
	RemainingCount int `json:"remaining_count" db:"remaining_count"`

	Stats     QCStats          `json:"qc_stats"`
	Config    ConfigSnapshot   `json:"batch_config"`
	Remainder RemainderOutcome `json:"remaining_decision"`

	ProcessingStartedAt *time.Time `json:"processing_started_at" db:"processing_started_at"`
	FinalizedAt         *time.Time `json:"finalized_at" db:"finalized_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the remainder decision has been applied and
// the batch will never transition again. Note that queued_for_qc is terminal
// for the batch even though its responses remain dispatchable.
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchAutoApproved || b.Status == BatchQueuedForQC || b.Status == BatchCompleted
}

// ExcludesFromDispatch returns true for terminal states whose responses must
// never appear in the assignment view.
func (b *Batch) ExcludesFromDispatch() bool {
	return b.Status == BatchAutoApproved || b.Status == BatchCompleted
}
