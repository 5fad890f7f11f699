package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
)

var configRowColumns = []string{
	"id", "tenant_id", "survey_id", "sample_percentage", "approval_rules",
	"notes", "active", "created_at", "updated_at",
}

func TestCreateRotatesActiveConfig(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	surveyID := "survey-1"
	cfg := &domain.QCConfig{
		ID:               "cfg-2",
		TenantID:         "tenant-1",
		SurveyID:         &surveyID,
		SamplePercentage: 25,
		ApprovalRules:    domain.FallbackRules(),
		Notes:            "tightened sampling",
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE qc_configs").
		WithArgs("tenant-1", "survey-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO qc_configs").
		WithArgs("cfg-2", "tenant-1", &surveyID, 25, sqlmock.AnyArg(), "tightened sampling").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewConfigRepo(db)
	if err := repo.Create(context.Background(), cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateTenantDefaultScopesOnNullSurvey(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	cfg := &domain.QCConfig{
		ID:               "cfg-1",
		TenantID:         "tenant-1",
		SamplePercentage: 100,
	}

	mock.ExpectBegin()
	// Deactivation must target survey_id IS NULL, not every tenant config.
	mock.ExpectExec("survey_id IS NULL").
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO qc_configs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewConfigRepo(db)
	if err := repo.Create(context.Background(), cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindActiveSurveyScope(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now()
	rules := `[{"min_rate":50,"max_rate":100,"action":"auto_approve"}]`
	mock.ExpectQuery("survey_id = ").
		WithArgs("tenant-1", "survey-1").
		WillReturnRows(sqlmock.NewRows(configRowColumns).
			AddRow("cfg-1", "tenant-1", "survey-1", 25, []byte(rules), "", true, now, now))

	repo := NewConfigRepo(db)
	surveyID := "survey-1"
	cfg, err := repo.FindActive(context.Background(), "tenant-1", &surveyID)
	if err != nil {
		t.Fatalf("FindActive() error: %v", err)
	}
	if cfg.SamplePercentage != 25 {
		t.Errorf("sample percentage = %d, want 25", cfg.SamplePercentage)
	}
	if len(cfg.ApprovalRules) != 1 || cfg.ApprovalRules[0].Action != domain.ActionAutoApprove {
		t.Errorf("rules = %+v, want one auto_approve band", cfg.ApprovalRules)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindActiveNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("survey_id IS NULL").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows(configRowColumns))

	repo := NewConfigRepo(db)
	_, err := repo.FindActive(context.Background(), "tenant-1", nil)
	if err != qcconfig.ErrNotFound {
		t.Fatalf("FindActive() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListCountsAndPages(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT").
		WithArgs("tenant-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(configRowColumns).
			AddRow("cfg-2", "tenant-1", nil, 40, nil, "", true, now, now).
			AddRow("cfg-1", "tenant-1", nil, 30, nil, "", false, now.Add(-time.Hour), now))

	repo := NewConfigRepo(db)
	configs, total, err := repo.List(context.Background(), "tenant-1", nil, 50, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
	if len(configs) != 2 {
		t.Fatalf("page = %d rows, want 2", len(configs))
	}
	if configs[0].SurveyID != nil {
		t.Error("tenant default should scan with a nil survey id")
	}
	if configs[1].Active {
		t.Error("rotated config should scan as inactive")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
