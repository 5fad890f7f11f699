package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/httputil"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
)

// resolvedConfig is an active config plus where the resolver found it:
// survey scope, tenant default, or the built-in fallback.
type resolvedConfig struct {
	Config *domain.QCConfig `json:"config"`
	Source qcconfig.Source  `json:"source"`
}

// HandleResolveConfig returns the config a batch sealed right now for this
// survey would snapshot.
//
//	GET /api/qc-config/survey/{surveyID}
func (h *Handlers) HandleResolveConfig(w http.ResponseWriter, r *http.Request) {
	cfg, source, err := h.configs.Resolve(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "surveyID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, resolvedConfig{Config: cfg, Source: source})
}

type createConfigRequest struct {
	SurveyID         *string               `json:"surveyId"`
	SamplePercentage int                   `json:"samplePercentage"`
	ApprovalRules    []domain.ApprovalRule `json:"approvalRules"`
	Notes            string                `json:"notes"`
}

// HandleCreateConfig validates and installs a new active config for the
// scope, deactivating the previous one. Omitting surveyId targets the
// tenant default. Batches already sealed keep their frozen snapshots.
//
//	POST /api/qc-config
func (h *Handlers) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	cfg, err := h.configs.Create(r.Context(), TenantFromContext(r.Context()), qcconfig.CreateInput{
		SurveyID:         req.SurveyID,
		SamplePercentage: req.SamplePercentage,
		ApprovalRules:    req.ApprovalRules,
		Notes:            req.Notes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.Created(w, cfg)
}

// HandleListConfigs returns the tenant's config history, newest first,
// inactive rows included. The survey param narrows to one survey's history.
//
//	GET /api/qc-config?survey=…
func (h *Handlers) HandleListConfigs(w http.ResponseWriter, r *http.Request) {
	var surveyID *string
	if s := r.URL.Query().Get("survey"); s != "" {
		surveyID = &s
	}

	params := ParsePagination(r, 50, 200)
	items, total, err := h.configs.List(r.Context(), TenantFromContext(r.Context()), surveyID, params.PageSize, params.Offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, NewPaginatedResponse(items, params, total))
}
