package domain

import (
	"encoding/json"
	"time"
)

// ResponseStatus enumerates the lifecycle states of a survey response.
// Lowercase snake_case is the canonical casing; the database enforces it
// with CHECK constraints and these constants are the only writers.
type ResponseStatus string

const (
	ResponseSubmitted       ResponseStatus = "submitted"
	ResponsePendingApproval ResponseStatus = "pending_approval"
	ResponseApproved        ResponseStatus = "approved"
	ResponseRejected        ResponseStatus = "rejected"
	ResponseAbandoned       ResponseStatus = "abandoned"
)

// Mode identifies the interview channel a response was collected through.
type Mode string

const (
	ModeCAPI Mode = "capi" // face-to-face
	ModeCATI Mode = "cati" // telephonic
)

// ValidMode reports whether s is a recognized interview mode.
func ValidMode(s string) bool {
	return Mode(s) == ModeCAPI || Mode(s) == ModeCATI
}

// Verdict is the decision an agent submits for a reviewed response.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Status returns the response status a verdict resolves to.
func (v Verdict) Status() ResponseStatus {
	if v == VerdictApprove {
		return ResponseApproved
	}
	return ResponseRejected
}

// Response represents a single completed survey interview. The answer
// payload itself is opaque to the QC core and travels in Metadata; the
// indexed columns the pipeline reads are first-class fields.
type Response struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	SurveyID      string          `json:"survey_id" db:"survey_id"`
	InterviewerID string          `json:"interviewer_id" db:"interviewer_id"`
	Mode          Mode            `json:"mode" db:"mode"`
	Status        ResponseStatus  `json:"status" db:"status"`
	Priority      int             `json:"priority" db:"priority"`
	SelectedAC    string          `json:"selected_ac" db:"selected_ac"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	// Batch membership, populated by the batching engine. IsSample is
	// meaningful only once the owning batch has sealed.
	IsSample      bool    `json:"is_sample_response" db:"is_sample_response"`
	BatchID       *string `json:"batch_id" db:"batch_id"`
	BatchPosition *int    `json:"batch_position" db:"batch_position"`

	// Lease state. At most one unexpired lease exists per response.
	LeasedBy       *string    `json:"leased_by" db:"leased_by"`
	LeasedAt       *time.Time `json:"leased_at" db:"leased_at"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at" db:"lease_expires_at"`
	LastSkippedAt  *time.Time `json:"last_skipped_at" db:"last_skipped_at"`
	LastSkippedBy  *string    `json:"last_skipped_by" db:"last_skipped_by"`

	Verification *Verification `json:"verification,omitempty"`

	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Verification records how a response reached a decision, whether by a
// human reviewer or by a batch remainder rule.
type Verification struct {
	ReviewerID   string    `json:"reviewer_id" db:"verified_by"`
	Verdict      string    `json:"verdict" db:"verdict"`
	DecidedAt    time.Time `json:"decided_at" db:"verified_at"`
	Feedback     string    `json:"feedback" db:"feedback"`
	AutoApproved bool      `json:"auto_approved" db:"auto_approved"`
	AutoRejected bool      `json:"auto_rejected" db:"auto_rejected"`
	BatchID      string    `json:"batch_id" db:"verification_batch_id"`
}

// IsDecided returns true once the response has a final QC outcome.
func (r *Response) IsDecided() bool {
	return r.Status == ResponseApproved || r.Status == ResponseRejected
}

// HasLiveLease reports whether an unexpired lease exists at the given instant.
func (r *Response) HasLiveLease(now time.Time) bool {
	return r.LeasedBy != nil && r.LeaseExpiresAt != nil && r.LeaseExpiresAt.After(now)
}

// LeaseHeldBy reports whether agentID holds a live lease on the response.
func (r *Response) LeaseHeldBy(agentID string, now time.Time) bool {
	return r.HasLiveLease(now) && *r.LeasedBy == agentID
}
