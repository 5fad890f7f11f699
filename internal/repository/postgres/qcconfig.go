package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
)

const configColumns = `id, tenant_id, survey_id, sample_percentage, approval_rules, notes, active, created_at, updated_at`

// ConfigRepo implements qcconfig.Repository.
type ConfigRepo struct {
	db *sql.DB
}

func NewConfigRepo(db *sql.DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

// FindActive returns the active config for the exact scope requested: a
// survey row when surveyID is set, the tenant default when it is nil. The
// partial unique index guarantees at most one row per scope.
func (r *ConfigRepo) FindActive(ctx context.Context, tenantID string, surveyID *string) (*domain.QCConfig, error) {
	query := `
		SELECT ` + configColumns + `
		FROM qc_configs
		WHERE tenant_id = $1 AND active`
	args := []interface{}{tenantID}

	if surveyID == nil {
		query += " AND survey_id IS NULL"
	} else {
		query += " AND survey_id = $2"
		args = append(args, *surveyID)
	}

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, qcconfig.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active config: %w", err)
	}
	return cfg, nil
}

// Create deactivates the scope's current config and inserts the new one as
// active, in one transaction, so the partial unique index is never violated
// and the scope is never left without its newest policy.
func (r *ConfigRepo) Create(ctx context.Context, cfg *domain.QCConfig) error {
	rules, err := json.Marshal(cfg.ApprovalRules)
	if err != nil {
		return fmt.Errorf("marshal approval rules: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin config create: %w", err)
	}
	defer tx.Rollback()

	if cfg.SurveyID == nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE qc_configs SET active = FALSE, updated_at = NOW()
			WHERE tenant_id = $1 AND survey_id IS NULL AND active
		`, cfg.TenantID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE qc_configs SET active = FALSE, updated_at = NOW()
			WHERE tenant_id = $1 AND survey_id = $2 AND active
		`, cfg.TenantID, *cfg.SurveyID)
	}
	if err != nil {
		return fmt.Errorf("deactivate previous config: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qc_configs (id, tenant_id, survey_id, sample_percentage, approval_rules, notes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
	`, cfg.ID, cfg.TenantID, cfg.SurveyID, cfg.SamplePercentage, rules, cfg.Notes)
	if err != nil {
		return fmt.Errorf("insert config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit config create: %w", err)
	}
	return nil
}

func (r *ConfigRepo) List(ctx context.Context, tenantID string, surveyID *string, limit, offset int) ([]domain.QCConfig, int, error) {
	where := " WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	idx := 2

	if surveyID != nil {
		where += fmt.Sprintf(" AND survey_id = $%d", idx)
		args = append(args, *surveyID)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qc_configs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count configs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+configColumns+`
		FROM qc_configs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.QCConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, total, rows.Err()
}

func scanConfig(row rowScanner) (*domain.QCConfig, error) {
	var (
		cfg      domain.QCConfig
		surveyID sql.NullString
		rules    []byte
	)
	err := row.Scan(&cfg.ID, &cfg.TenantID, &surveyID, &cfg.SamplePercentage, &rules,
		&cfg.Notes, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.SurveyID = nullStr(surveyID)
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &cfg.ApprovalRules); err != nil {
			return nil, fmt.Errorf("parse approval rules: %w", err)
		}
	}
	return &cfg, nil
}
