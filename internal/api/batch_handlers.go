package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/httputil"
	"github.com/opinari/fieldqc/internal/pkg/logger"
)

// HandleListBatches returns a filtered, paginated batch listing with live
// counters, newest first.
//
//	GET /api/batches?survey=…&interviewer=…&status=…&date=…
func (h *Handlers) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := domain.BatchFilter{
		SurveyID:      q.Get("survey"),
		InterviewerID: q.Get("interviewer"),
		Status:        q.Get("status"),
	}
	if date, ok := parseTimeParam(q.Get("date")); !ok {
		httputil.BadRequest(w, "date must be YYYY-MM-DD")
		return
	} else if date != nil {
		f.BatchDate = date
	}

	params := ParsePagination(r, 50, 200)
	items, total, err := h.batches.List(r.Context(), TenantFromContext(r.Context()), f, params.PageSize, params.Offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, NewPaginatedResponse(items, params, total))
}

// batchDetail is a batch with its member response ids split by sample
// membership. Before seal the split is unknown and every id reports as
// remainder.
type batchDetail struct {
	Batch                *domain.Batch `json:"batch"`
	SampleResponseIDs    []string      `json:"sample_response_ids"`
	RemainderResponseIDs []string      `json:"remainder_response_ids"`
}

// HandleGetBatch returns one batch with its member response ids.
//
//	GET /api/batches/{batchID}
func (h *Handlers) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	b, err := h.batches.Get(r.Context(), TenantFromContext(r.Context()), batchID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	sample, remainder, err := h.batches.Members(r.Context(), batchID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, batchDetail{Batch: b, SampleResponseIDs: sample, RemainderResponseIDs: remainder})
}

// HandleSealBatch seals a collecting batch ahead of its scheduled time,
// drawing the sample immediately. Requires at least one response; sealing
// twice is 409.
//
//	POST /api/batches/{batchID}/seal
func (h *Handlers) HandleSealBatch(w http.ResponseWriter, r *http.Request) {
	if h.sealer == nil {
		httputil.Unavailable(w, "sealing not configured")
		return
	}

	batchID := chi.URLParam(r, "batchID")
	if err := h.sealer.SealBatch(r.Context(), batchID); err != nil {
		respondServiceError(w, err)
		return
	}

	b, err := h.batches.Get(r.Context(), TenantFromContext(r.Context()), batchID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, b)
}

// processResult reports what one on-demand processing pass did.
type processResult struct {
	Sealed    int `json:"sealed"`
	Evaluated int `json:"evaluated"`
	Decided   int `json:"decided"`
}

// HandleProcessBatches runs the daily-seal catch-up and a full evaluation
// pass immediately instead of waiting for the schedulers. Per-batch
// evaluation failures are logged and skipped so one poisoned batch cannot
// wedge the pass.
//
//	POST /api/batches/process
func (h *Handlers) HandleProcessBatches(w http.ResponseWriter, r *http.Request) {
	if h.sealRunner == nil || h.evaluator == nil {
		httputil.Unavailable(w, "batch processing not configured")
		return
	}

	result := processResult{Sealed: h.sealRunner.RunOnce(r.Context())}

	ids, err := h.evaluator.InProgressIDs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	for _, id := range ids {
		decided, err := h.evaluator.EvaluateBatch(r.Context(), id)
		if err != nil {
			logger.Warn("on-demand evaluation failed", "batch_id", id, "error", err.Error())
			continue
		}
		result.Evaluated++
		if decided {
			result.Decided++
		}
	}

	httputil.OK(w, result)
}
