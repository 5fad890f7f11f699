package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/httputil"
	"github.com/opinari/fieldqc/internal/service/batching"
)

// parseTimeParam accepts RFC 3339 timestamps or bare dates.
func parseTimeParam(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, true
	}
	return nil, false
}

// HandleSubmitResponse ingests an interviewer submission and routes it
// through the batching engine. The created response comes back with its
// batch placement.
//
//	POST /api/responses
func (h *Handlers) HandleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var in batching.SubmitInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	resp, err := h.submitter.SubmitResponse(r.Context(), TenantFromContext(r.Context()), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.Created(w, resp)
}

// HandleGetResponse returns a single response with its verification record
// when one exists.
//
//	GET /api/responses/{responseID}
func (h *Handlers) HandleGetResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := h.responses.Get(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "responseID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, resp)
}

// HandleListResponses returns a filtered, paginated response listing,
// newest submissions first.
//
//	GET /api/responses?survey=…&interviewer=…&mode=…&status=…&from=…&to=…
func (h *Handlers) HandleListResponses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, ok := parseTimeParam(q.Get("from"))
	if !ok {
		httputil.BadRequest(w, "from must be RFC 3339 or YYYY-MM-DD")
		return
	}
	to, ok := parseTimeParam(q.Get("to"))
	if !ok {
		httputil.BadRequest(w, "to must be RFC 3339 or YYYY-MM-DD")
		return
	}

	f := domain.ResponseFilter{
		SurveyID:      q.Get("survey"),
		InterviewerID: q.Get("interviewer"),
		Mode:          q.Get("mode"),
		Status:        q.Get("status"),
		BatchID:       q.Get("batch"),
		SubmittedFrom: from,
		SubmittedTo:   to,
	}

	params := ParsePagination(r, 50, 200)
	items, total, err := h.responses.List(r.Context(), TenantFromContext(r.Context()), f, params.PageSize, params.Offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	httputil.OK(w, NewPaginatedResponse(items, params, total))
}
