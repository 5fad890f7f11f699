package qcconfig_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
)

type fakeRepo struct {
	configs   []domain.QCConfig
	findCalls int
	createErr error
}

func (f *fakeRepo) FindActive(ctx context.Context, tenantID string, surveyID *string) (*domain.QCConfig, error) {
	f.findCalls++
	for i := range f.configs {
		c := f.configs[i]
		if !c.Active || c.TenantID != tenantID {
			continue
		}
		if surveyID == nil && c.SurveyID == nil {
			return &c, nil
		}
		if surveyID != nil && c.SurveyID != nil && *surveyID == *c.SurveyID {
			return &c, nil
		}
	}
	return nil, qcconfig.ErrNotFound
}

func (f *fakeRepo) Create(ctx context.Context, cfg *domain.QCConfig) error {
	if f.createErr != nil {
		return f.createErr
	}
	for i := range f.configs {
		prev := &f.configs[i]
		sameScope := (prev.SurveyID == nil && cfg.SurveyID == nil) ||
			(prev.SurveyID != nil && cfg.SurveyID != nil && *prev.SurveyID == *cfg.SurveyID)
		if prev.TenantID == cfg.TenantID && sameScope {
			prev.Active = false
		}
	}
	f.configs = append(f.configs, *cfg)
	return nil
}

func (f *fakeRepo) List(ctx context.Context, tenantID string, surveyID *string, limit, offset int) ([]domain.QCConfig, int, error) {
	var out []domain.QCConfig
	for _, c := range f.configs {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func strPtr(s string) *string { return &s }

func activeConfig(tenant string, survey *string, pct int) domain.QCConfig {
	return domain.QCConfig{
		ID:               "cfg-" + tenant,
		TenantID:         tenant,
		SurveyID:         survey,
		SamplePercentage: pct,
		ApprovalRules: []domain.ApprovalRule{
			{MinRate: 80, MaxRate: 100, Action: domain.ActionAutoApprove},
			{MinRate: 0, MaxRate: 30, Action: domain.ActionRejectAll},
		},
		Active: true,
	}
}

func TestResolvePrefersSurveyConfig(t *testing.T) {
	repo := &fakeRepo{configs: []domain.QCConfig{
		activeConfig("t1", nil, 25),
		activeConfig("t1", strPtr("svy-1"), 40),
	}}
	svc := qcconfig.NewService(repo, 10, 0)

	cfg, source, err := svc.Resolve(context.Background(), "t1", "svy-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if source != qcconfig.SourceSurvey {
		t.Errorf("source = %q, want %q", source, qcconfig.SourceSurvey)
	}
	if cfg.SamplePercentage != 40 {
		t.Errorf("sample percentage = %d, want 40", cfg.SamplePercentage)
	}
}

func TestResolveFallsBackToTenantDefault(t *testing.T) {
	repo := &fakeRepo{configs: []domain.QCConfig{
		activeConfig("t1", nil, 25),
	}}
	svc := qcconfig.NewService(repo, 10, 0)

	cfg, source, err := svc.Resolve(context.Background(), "t1", "svy-unknown")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if source != qcconfig.SourceTenantDefault {
		t.Errorf("source = %q, want %q", source, qcconfig.SourceTenantDefault)
	}
	if cfg.SamplePercentage != 25 {
		t.Errorf("sample percentage = %d, want 25", cfg.SamplePercentage)
	}
}

func TestResolveBuiltInFallback(t *testing.T) {
	svc := qcconfig.NewService(&fakeRepo{}, 15, 0)

	cfg, source, err := svc.Resolve(context.Background(), "t-empty", "svy-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if source != qcconfig.SourceFallback {
		t.Errorf("source = %q, want %q", source, qcconfig.SourceFallback)
	}
	if cfg.SamplePercentage != 15 {
		t.Errorf("sample percentage = %d, want 15", cfg.SamplePercentage)
	}
	if len(cfg.ApprovalRules) != 2 {
		t.Fatalf("fallback rules = %d, want 2", len(cfg.ApprovalRules))
	}
	// Exactly 50% approval must auto-approve under the built-in policy.
	if !cfg.ApprovalRules[0].Contains(50) || cfg.ApprovalRules[0].Action != domain.ActionAutoApprove {
		t.Errorf("first fallback rule should auto-approve at exactly 50%%: %+v", cfg.ApprovalRules[0])
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	repo := &fakeRepo{configs: []domain.QCConfig{activeConfig("t1", strPtr("svy-1"), 40)}}
	svc := qcconfig.NewService(repo, 10, time.Minute)

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Resolve(context.Background(), "t1", "svy-1"); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}
	if repo.findCalls != 1 {
		t.Errorf("repo lookups = %d, want 1 (cached)", repo.findCalls)
	}
}

func TestResolveCacheDisabledByZeroTTL(t *testing.T) {
	repo := &fakeRepo{configs: []domain.QCConfig{activeConfig("t1", strPtr("svy-1"), 40)}}
	svc := qcconfig.NewService(repo, 10, 0)

	svc.Resolve(context.Background(), "t1", "svy-1")
	svc.Resolve(context.Background(), "t1", "svy-1")
	if repo.findCalls != 2 {
		t.Errorf("repo lookups = %d, want 2 (uncached)", repo.findCalls)
	}
}

func TestCreateInvalidatesCache(t *testing.T) {
	repo := &fakeRepo{configs: []domain.QCConfig{activeConfig("t1", strPtr("svy-1"), 40)}}
	svc := qcconfig.NewService(repo, 10, time.Minute)

	cfg, _, _ := svc.Resolve(context.Background(), "t1", "svy-1")
	if cfg.SamplePercentage != 40 {
		t.Fatalf("initial sample percentage = %d, want 40", cfg.SamplePercentage)
	}

	_, err := svc.Create(context.Background(), "t1", qcconfig.CreateInput{
		SurveyID:         strPtr("svy-1"),
		SamplePercentage: 70,
		ApprovalRules: []domain.ApprovalRule{
			{MinRate: 0, MaxRate: 100, Action: domain.ActionSendToQC},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cfg, _, _ = svc.Resolve(context.Background(), "t1", "svy-1")
	if cfg.SamplePercentage != 70 {
		t.Errorf("post-create sample percentage = %d, want 70 (cache not invalidated)", cfg.SamplePercentage)
	}
}

func TestCreateValidation(t *testing.T) {
	sendAll := []domain.ApprovalRule{{MinRate: 0, MaxRate: 100, Action: domain.ActionSendToQC}}

	tests := []struct {
		name    string
		input   qcconfig.CreateInput
		wantErr bool
	}{
		{
			name:    "valid",
			input:   qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: sendAll},
			wantErr: false,
		},
		{
			name:    "percentage zero",
			input:   qcconfig.CreateInput{SamplePercentage: 0, ApprovalRules: sendAll},
			wantErr: true,
		},
		{
			name:    "percentage above hundred",
			input:   qcconfig.CreateInput{SamplePercentage: 101, ApprovalRules: sendAll},
			wantErr: true,
		},
		{
			name:    "full sample needs no rules",
			input:   qcconfig.CreateInput{SamplePercentage: 100},
			wantErr: false,
		},
		{
			name:    "partial sample needs rules",
			input:   qcconfig.CreateInput{SamplePercentage: 50},
			wantErr: true,
		},
		{
			name: "inverted band",
			input: qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: []domain.ApprovalRule{
				{MinRate: 60, MaxRate: 40, Action: domain.ActionAutoApprove},
			}},
			wantErr: true,
		},
		{
			name: "band out of range",
			input: qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: []domain.ApprovalRule{
				{MinRate: -1, MaxRate: 50, Action: domain.ActionAutoApprove},
			}},
			wantErr: true,
		},
		{
			name: "overlapping bands rejected",
			input: qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: []domain.ApprovalRule{
				{MinRate: 50, MaxRate: 100, Action: domain.ActionAutoApprove},
				{MinRate: 40, MaxRate: 60, Action: domain.ActionSendToQC},
			}},
			wantErr: true,
		},
		{
			name: "touching endpoints overlap",
			input: qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: []domain.ApprovalRule{
				{MinRate: 50, MaxRate: 100, Action: domain.ActionAutoApprove},
				{MinRate: 0, MaxRate: 50, Action: domain.ActionSendToQC},
			}},
			wantErr: true,
		},
		{
			name: "unknown action",
			input: qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: []domain.ApprovalRule{
				{MinRate: 0, MaxRate: 100, Action: "escalate"},
			}},
			wantErr: true,
		},
		{
			name: "gaps between bands are allowed",
			input: qcconfig.CreateInput{SamplePercentage: 30, ApprovalRules: []domain.ApprovalRule{
				{MinRate: 80, MaxRate: 100, Action: domain.ActionAutoApprove},
				{MinRate: 0, MaxRate: 30, Action: domain.ActionRejectAll},
			}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := qcconfig.NewService(&fakeRepo{}, 10, 0)
			_, err := svc.Create(context.Background(), "t1", tt.input)
			if tt.wantErr {
				if !errors.Is(err, qcconfig.ErrValidation) {
					t.Errorf("err = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateDeactivatesPrevious(t *testing.T) {
	repo := &fakeRepo{}
	svc := qcconfig.NewService(repo, 10, 0)
	ctx := context.Background()

	rules := []domain.ApprovalRule{{MinRate: 0, MaxRate: 100, Action: domain.ActionSendToQC}}
	if _, err := svc.Create(ctx, "t1", qcconfig.CreateInput{SamplePercentage: 20, ApprovalRules: rules}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := svc.Create(ctx, "t1", qcconfig.CreateInput{SamplePercentage: 35, ApprovalRules: rules}); err != nil {
		t.Fatalf("second Create: %v", err)
	}

	active := 0
	for _, c := range repo.configs {
		if c.Active {
			active++
			if c.SamplePercentage != 35 {
				t.Errorf("active config percentage = %d, want 35", c.SamplePercentage)
			}
		}
	}
	if active != 1 {
		t.Errorf("active configs = %d, want exactly 1", active)
	}
}
