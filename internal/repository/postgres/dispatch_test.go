package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/opinari/fieldqc/internal/service/dispatch"
)

func TestLeaseClaimsRow(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	expiresAt := time.Now().Add(30 * time.Minute)
	mock.ExpectQuery("UPDATE qc_responses").
		WithArgs("resp-1", "agent-1", expiresAt).
		WillReturnRows(leasedResponseRow("resp-1", "agent-1", expiresAt))

	repo := NewDispatchRepo(db)
	resp, err := repo.Lease(context.Background(), "resp-1", "agent-1", expiresAt)
	if err != nil {
		t.Fatalf("Lease() error: %v", err)
	}
	if resp.ID != "resp-1" {
		t.Errorf("response id = %s, want resp-1", resp.ID)
	}
	if resp.LeasedBy == nil || *resp.LeasedBy != "agent-1" {
		t.Error("lease holder not populated from returned row")
	}
	if resp.BatchID == nil || *resp.BatchID != "batch-1" {
		t.Error("batch id not populated from returned row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLeaseLostRace(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	// Conditional update matched nothing: another agent holds the lease.
	mock.ExpectQuery("UPDATE qc_responses").
		WillReturnRows(sqlmock.NewRows(responseRowColumns))

	repo := NewDispatchRepo(db)
	_, err := repo.Lease(context.Background(), "resp-1", "agent-1", time.Now().Add(time.Minute))
	if err != dispatch.ErrLeaseLost {
		t.Fatalf("Lease() error = %v, want ErrLeaseLost", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReleaseReportsHolderMatch(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE qc_responses").
		WithArgs("resp-1", "agent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qc_responses").
		WithArgs("resp-1", "agent-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewDispatchRepo(db)
	ok, err := repo.Release(context.Background(), "resp-1", "agent-1")
	if err != nil || !ok {
		t.Fatalf("Release() = %v, %v; want true, nil", ok, err)
	}
	ok, err = repo.Release(context.Background(), "resp-1", "agent-2")
	if err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if ok {
		t.Error("release by a non-holder should report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSkipRequiresLiveLease(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE qc_responses").
		WithArgs("resp-1", "agent-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewDispatchRepo(db)
	ok, err := repo.Skip(context.Background(), "resp-1", "agent-1")
	if err != nil {
		t.Fatalf("Skip() error: %v", err)
	}
	if ok {
		t.Error("skip without a live lease should report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCandidatesAppliesAllFilters(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"response_id", "tenant_id", "survey_id", "interviewer_id", "mode", "selected_ac",
		"priority", "last_skipped_at", "created_at", "view_status", "refreshed_at",
	}).AddRow("resp-2", "tenant-1", "survey-1", "int-1", "cati", "AC-7",
		100, nil, time.Now(), "available", time.Now())

	mock.ExpectQuery("SELECT a.response_id").
		WithArgs("tenant-1", "agent-1", 900.0, "cati", "AC-7", "resp-1", 5).
		WillReturnRows(rows)

	repo := NewDispatchRepo(db)
	got, err := repo.Candidates(context.Background(), dispatch.CandidateQuery{
		TenantID:          "tenant-1",
		AgentID:           "agent-1",
		Mode:              "cati",
		SelectedAC:        "AC-7",
		ExcludeResponseID: "resp-1",
		SkipCooldown:      15 * time.Minute,
		Limit:             5,
	})
	if err != nil {
		t.Fatalf("Candidates() error: %v", err)
	}
	if len(got) != 1 || got[0].ResponseID != "resp-2" {
		t.Fatalf("candidates = %+v, want one row resp-2", got)
	}
	if got[0].LastSkippedAt != nil {
		t.Error("never-skipped row should carry a nil LastSkippedAt")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCandidatesMinimalQuery(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	// No agent cooldown, no filters: tenant and limit only.
	mock.ExpectQuery("SELECT a.response_id").
		WithArgs("tenant-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"response_id", "tenant_id", "survey_id", "interviewer_id", "mode", "selected_ac",
			"priority", "last_skipped_at", "created_at", "view_status", "refreshed_at",
		}))

	repo := NewDispatchRepo(db)
	got, err := repo.Candidates(context.Background(), dispatch.CandidateQuery{TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("Candidates() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("candidates = %d rows, want none", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
