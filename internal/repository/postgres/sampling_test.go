package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/sampling"
)

func TestSealTransaction(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	snap := domain.ConfigSnapshot{
		SamplePercentage: 40,
		ApprovalRules:    domain.FallbackRules(),
	}

	mock.ExpectBegin()
	// The transition carries the membership count the sample was drawn from.
	mock.ExpectExec("UPDATE qc_batches").
		WithArgs("batch-1", 2, 3, 40, sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qc_responses").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE qc_responses").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := NewSamplingRepo(db)
	err := repo.Seal(context.Background(), "batch-1",
		[]string{"r1", "r2"}, []string{"r3", "r4", "r5"}, snap)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSealEmptyRemainderSkipsRemainderUpdate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	snap := domain.ConfigSnapshot{SamplePercentage: 100}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_batches").
		WithArgs("batch-1", 2, 0, 100, sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qc_responses").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := NewSamplingRepo(db)
	if err := repo.Seal(context.Background(), "batch-1", []string{"r1", "r2"}, nil, snap); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSealAlreadySealed(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_batches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM qc_batches").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("qc_in_progress"))
	mock.ExpectRollback()

	repo := NewSamplingRepo(db)
	err := repo.Seal(context.Background(), "batch-1", []string{"r1"}, nil, domain.ConfigSnapshot{SamplePercentage: 100})
	if err != sampling.ErrAlreadySealed {
		t.Fatalf("Seal() error = %v, want ErrAlreadySealed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSealRefusesStaleMembership(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	// The batch is still collecting but its response count moved past the
	// caller's membership read: the guarded transition matches no row and the
	// caller must re-read before sealing.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_batches").
		WithArgs("batch-1", 1, 2, 40, sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM qc_batches").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("collecting"))
	mock.ExpectRollback()

	repo := NewSamplingRepo(db)
	err := repo.Seal(context.Background(), "batch-1",
		[]string{"r1"}, []string{"r2", "r3"},
		domain.ConfigSnapshot{SamplePercentage: 40, ApprovalRules: domain.FallbackRules()})
	if err != sampling.ErrMembershipChanged {
		t.Fatalf("Seal() error = %v, want ErrMembershipChanged", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestApplyRemainderAutoApprove(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_batches").
		WithArgs("batch-1", "auto_approved", "auto_approved", 80.0, 32, 8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qc_responses").
		WillReturnResult(sqlmock.NewResult(0, 60))
	mock.ExpectExec("DELETE FROM qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 40))
	mock.ExpectCommit()

	repo := NewSamplingRepo(db)
	mutated, err := repo.ApplyRemainderDecision(context.Background(), sampling.RemainderParams{
		BatchID:     "batch-1",
		Decision:    domain.DecisionAutoApproved,
		BatchStatus: domain.BatchAutoApproved,
		Stats:       domain.QCStats{ApprovedCount: 32, RejectedCount: 8, ApprovalRate: 80.0},
		Feedback:    "auto approved: sample approval rate 80.0%",
	})
	if err != nil {
		t.Fatalf("ApplyRemainderDecision() error: %v", err)
	}
	if mutated != 60 {
		t.Errorf("mutated = %d, want 60", mutated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestApplyRemainderQueueForQC(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_batches").
		WithArgs("batch-1", "queued_for_qc", "queued_for_qc", 37.5, 15, 25).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 60))
	mock.ExpectCommit()

	repo := NewSamplingRepo(db)
	mutated, err := repo.ApplyRemainderDecision(context.Background(), sampling.RemainderParams{
		BatchID:     "batch-1",
		Decision:    domain.DecisionQueuedForQC,
		BatchStatus: domain.BatchQueuedForQC,
		Stats:       domain.QCStats{ApprovedCount: 15, RejectedCount: 25, ApprovalRate: 37.5},
	})
	if err != nil {
		t.Fatalf("ApplyRemainderDecision() error: %v", err)
	}
	if mutated != 60 {
		t.Errorf("published = %d, want 60", mutated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestApplyRemainderLosesRace(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_batches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewSamplingRepo(db)
	_, err := repo.ApplyRemainderDecision(context.Background(), sampling.RemainderParams{
		BatchID:     "batch-1",
		Decision:    domain.DecisionAutoApproved,
		BatchStatus: domain.BatchAutoApproved,
	})
	if err != sampling.ErrAlreadyDecided {
		t.Fatalf("ApplyRemainderDecision() error = %v, want ErrAlreadyDecided", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCountSampleVerdicts(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"approved", "rejected", "pending"}).AddRow(32, 8, 0))

	repo := NewSamplingRepo(db)
	approved, rejected, pending, err := repo.CountSampleVerdicts(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("CountSampleVerdicts() error: %v", err)
	}
	if approved != 32 || rejected != 8 || pending != 0 {
		t.Errorf("counts = %d/%d/%d, want 32/8/0", approved, rejected, pending)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCollectingIDsBeforeUsesDateCutoff(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	loc := time.FixedZone("IST", 5*3600+1800)
	cutoff := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)

	mock.ExpectQuery("SELECT id").
		WithArgs("2026-03-14", 500).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("batch-1").AddRow("batch-2"))

	repo := NewSamplingRepo(db)
	ids, err := repo.CollectingIDsBefore(context.Background(), cutoff, 500)
	if err != nil {
		t.Fatalf("CollectingIDsBefore() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "batch-1" {
		t.Errorf("ids = %v, want [batch-1 batch-2]", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
