package qcconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/logger"
)

// Source identifies which scope a resolved configuration came from.
type Source string

const (
	SourceSurvey        Source = "survey"
	SourceTenantDefault Source = "tenant_default"
	SourceFallback      Source = "fallback"
)

// Service resolves and manages QC configurations.
type Service struct {
	repo        Repository
	fallbackPct int
	cache       *resolveCache
}

// NewService builds a config service. fallbackPct is the sample percentage
// used when neither a survey config nor a tenant default exists. cacheTTL
// bounds how stale a resolved config may be; zero disables the cache.
func NewService(repo Repository, fallbackPct int, cacheTTL time.Duration) *Service {
	if fallbackPct < 1 || fallbackPct > 100 {
		fallbackPct = 40
	}
	return &Service{
		repo:        repo,
		fallbackPct: fallbackPct,
		cache:       newResolveCache(cacheTTL),
	}
}

// Resolve returns the effective configuration for a survey along with the
// scope it came from. Lookup order: active survey config, active tenant
// default, built-in fallback. The fallback is synthesized, never persisted.
func (s *Service) Resolve(ctx context.Context, tenantID, surveyID string) (*domain.QCConfig, Source, error) {
	if cfg, source, ok := s.cache.get(tenantID, surveyID); ok {
		return cfg, source, nil
	}

	if surveyID != "" {
		cfg, err := s.repo.FindActive(ctx, tenantID, &surveyID)
		if err == nil {
			s.cache.set(tenantID, surveyID, cfg, SourceSurvey)
			return cfg, SourceSurvey, nil
		}
		if err != ErrNotFound {
			return nil, "", fmt.Errorf("resolving survey config: %w", err)
		}
	}

	cfg, err := s.repo.FindActive(ctx, tenantID, nil)
	if err == nil {
		s.cache.set(tenantID, surveyID, cfg, SourceTenantDefault)
		return cfg, SourceTenantDefault, nil
	}
	if err != ErrNotFound {
		return nil, "", fmt.Errorf("resolving tenant default config: %w", err)
	}

	fallback := &domain.QCConfig{
		TenantID:         tenantID,
		SamplePercentage: s.fallbackPct,
		ApprovalRules:    domain.FallbackRules(),
		Active:           true,
	}
	s.cache.set(tenantID, surveyID, fallback, SourceFallback)
	return fallback, SourceFallback, nil
}

// ResolveConfig is Resolve without the source, for callers that only need
// the effective policy.
func (s *Service) ResolveConfig(ctx context.Context, tenantID, surveyID string) (*domain.QCConfig, error) {
	cfg, _, err := s.Resolve(ctx, tenantID, surveyID)
	return cfg, err
}

// CreateInput is the payload for installing a new configuration.
type CreateInput struct {
	SurveyID         *string               `json:"survey_id"`
	SamplePercentage int                   `json:"sample_percentage"`
	ApprovalRules    []domain.ApprovalRule `json:"approval_rules"`
	Notes            string                `json:"notes"`
}

// Create validates and installs a new active configuration for the scope,
// deactivating the previous active one. Batches sealed before this call keep
// their frozen snapshot; only future seals see the new rules.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (*domain.QCConfig, error) {
	if in.SurveyID != nil && *in.SurveyID == "" {
		return nil, fmt.Errorf("%w: survey_id must be omitted or non-empty", ErrValidation)
	}

	now := time.Now().UTC()
	cfg := &domain.QCConfig{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		SurveyID:         in.SurveyID,
		SamplePercentage: in.SamplePercentage,
		ApprovalRules:    in.ApprovalRules,
		Notes:            in.Notes,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("creating qc config: %w", err)
	}

	s.cache.invalidateTenant(tenantID)

	scope := "tenant default"
	if cfg.SurveyID != nil {
		scope = "survey " + *cfg.SurveyID
	}
	logger.Info("qc config installed",
		"config_id", cfg.ID,
		"tenant_id", tenantID,
		"scope", scope,
		"sample_percentage", cfg.SamplePercentage,
		"rules", len(cfg.ApprovalRules),
	)
	return cfg, nil
}

// List returns configuration history for a tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID string, surveyID *string, limit, offset int) ([]domain.QCConfig, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, tenantID, surveyID, limit, offset)
}
