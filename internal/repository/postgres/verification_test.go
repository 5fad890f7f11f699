package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/opinari/fieldqc/internal/service/verification"
)

func TestApplyVerdictWritesDecision(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE qc_responses").
		WithArgs("resp-1", "agent-1", "approved", "approve", "clean interview").
		WillReturnRows(sqlmock.NewRows([]string{"is_sample_response", "batch_id"}).AddRow(true, "batch-1"))

	repo := NewVerificationRepo(db)
	res, err := repo.ApplyVerdict(context.Background(), verification.VerdictParams{
		ResponseID: "resp-1",
		AgentID:    "agent-1",
		Verdict:    "approve",
		Feedback:   "clean interview",
	})
	if err != nil {
		t.Fatalf("ApplyVerdict() error: %v", err)
	}
	if !res.Applied {
		t.Fatal("expected Applied = true")
	}
	if !res.IsSample || res.BatchID != "batch-1" {
		t.Errorf("result = %+v, want sample row of batch-1", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestApplyVerdictLostPrecondition(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	// Lease expired or the response was already decided: zero rows, no error.
	mock.ExpectQuery("UPDATE qc_responses").
		WillReturnRows(sqlmock.NewRows([]string{"is_sample_response", "batch_id"}))

	repo := NewVerificationRepo(db)
	res, err := repo.ApplyVerdict(context.Background(), verification.VerdictParams{
		ResponseID: "resp-1",
		AgentID:    "agent-1",
		Verdict:    "reject",
	})
	if err != nil {
		t.Fatalf("ApplyVerdict() error: %v", err)
	}
	if res.Applied {
		t.Error("expected Applied = false when the conditional update matched nothing")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetResponseNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT").
		WithArgs("resp-404").
		WillReturnRows(sqlmock.NewRows(responseRowColumns))

	repo := NewVerificationRepo(db)
	_, err := repo.GetResponse(context.Background(), "resp-404")
	if err != verification.ErrNotFound {
		t.Fatalf("GetResponse() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetResponseAssemblesVerification(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows(responseRowColumns).AddRow(
		"resp-1", "tenant-1", "survey-1", "int-1", "capi", "approved", 100, "AC-1", nil,
		true, "batch-1", 0,
		nil, nil, nil, nil, nil,
		"agent-1", "approve", now, "looks good", false, false, "batch-1",
		now, now, now,
	)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	repo := NewVerificationRepo(db)
	resp, err := repo.GetResponse(context.Background(), "resp-1")
	if err != nil {
		t.Fatalf("GetResponse() error: %v", err)
	}
	if resp.Verification == nil {
		t.Fatal("expected verification trail on a decided response")
	}
	if resp.Verification.ReviewerID != "agent-1" || resp.Verification.Verdict != "approve" {
		t.Errorf("verification = %+v, want agent-1/approve", resp.Verification)
	}
	if resp.Verification.Feedback != "looks good" {
		t.Errorf("feedback = %q, want %q", resp.Verification.Feedback, "looks good")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
