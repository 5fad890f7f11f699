package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestViewRefresherReconciles(t *testing.T) {
	db, mock, cleanup := newWorkerDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM qc_assignments").
		WithArgs(viewDeleteChunk).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	vr := NewViewRefresher(db, nopLock{}, time.Second)
	vr.refresh(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestViewRefresherChunksLargeDeletes(t *testing.T) {
	db, mock, cleanup := newWorkerDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// A full chunk means another pass; the short second chunk ends the loop.
	mock.ExpectExec("DELETE FROM qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, viewDeleteChunk))
	mock.ExpectExec("DELETE FROM qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 17))
	mock.ExpectExec("UPDATE qc_assignments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	vr := NewViewRefresher(db, nopLock{}, time.Second)
	vr.refresh(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestViewRefresherYieldsWhenLockHeld(t *testing.T) {
	db, mock, cleanup := newWorkerDB(t)
	defer cleanup()

	// No expectations: nothing may touch the database.
	vr := NewViewRefresher(db, heldLock{}, time.Second)
	vr.refresh(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	db, mock, cleanup := newWorkerDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO qc_workers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qc_workers").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qc_workers").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reg := NewRegistry(db, "scheduler")
	if reg.WorkerID() == "" {
		t.Fatal("worker id should not be empty")
	}

	ctx := context.Background()
	reg.register(ctx)
	reg.heartbeat(ctx)
	reg.deregister()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
