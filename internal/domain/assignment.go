package domain

import "time"

// ViewStatus reflects the lease state of an assignment-view row as of the
// last refresh. Dispatch re-verifies against the responses table, so a stale
// value here is never authoritative.
type ViewStatus string

const (
	AssignmentAvailable ViewStatus = "available"
	AssignmentAssigned  ViewStatus = "assigned"
	AssignmentExpired   ViewStatus = "expired"
)

// Assignment is one row of the materialized dispatch view: a response that
// is currently eligible for review, carrying only the filter and ordering
// keys the dispatcher needs.
type Assignment struct {
	ResponseID    string     `json:"response_id" db:"response_id"`
	TenantID      string     `json:"tenant_id" db:"tenant_id"`
	SurveyID      string     `json:"survey_id" db:"survey_id"`
	InterviewerID string     `json:"interviewer_id" db:"interviewer_id"`
	Mode          Mode       `json:"mode" db:"mode"`
	SelectedAC    string     `json:"selected_ac" db:"selected_ac"`
	Priority      int        `json:"priority" db:"priority"`
	LastSkippedAt *time.Time `json:"last_skipped_at" db:"last_skipped_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ViewStatus    ViewStatus `json:"view_status" db:"view_status"`
	RefreshedAt   time.Time  `json:"refreshed_at" db:"refreshed_at"`
}
