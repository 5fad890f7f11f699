package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

var batchRowColumns = []string{
	"id", "tenant_id", "survey_id", "interviewer_id", "batch_date", "status",
	"response_count", "sample_count", "remaining_count",
	"approved_count", "rejected_count", "pending_count", "approval_rate",
	"remainder_decision", "remainder_decided_at", "trigger_approval_rate",
	"config_sample_percentage", "config_approval_rules",
	"processing_started_at", "finalized_at", "created_at", "updated_at",
}

// collectingBatchRow builds a row for a batch that is still collecting.
func collectingBatchRow(id string, count int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(batchRowColumns).AddRow(
		id, "tenant-1", "survey-1", "int-1", now, "collecting",
		count, 0, 0,
		0, 0, 0, 0.0,
		"pending", nil, nil,
		nil, nil,
		nil, nil, now, now,
	)
}

var responseRowColumns = []string{
	"id", "tenant_id", "survey_id", "interviewer_id", "mode", "status", "priority", "selected_ac", "metadata",
	"is_sample_response", "batch_id", "batch_position",
	"leased_by", "leased_at", "lease_expires_at", "last_skipped_at", "last_skipped_by",
	"verified_by", "verdict", "verified_at", "feedback", "auto_approved", "auto_rejected", "verification_batch_id",
	"submitted_at", "created_at", "updated_at",
}

// leasedResponseRow builds a pending_approval sample row holding a live lease.
func leasedResponseRow(id, agentID string, expiresAt time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(responseRowColumns).AddRow(
		id, "tenant-1", "survey-1", "int-1", "capi", "pending_approval", 100, "AC-1", []byte(`{"q1":"yes"}`),
		true, "batch-1", 3,
		agentID, now, expiresAt, nil, nil,
		nil, nil, nil, "", false, false, nil,
		now, now, now,
	)
}
