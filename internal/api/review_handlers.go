package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/httputil"
	"github.com/opinari/fieldqc/internal/service/dispatch"
)

// agentFromRequest extracts the reviewing agent's id. Authentication happens
// upstream; the id arrives on the X-Agent-ID header with a query fallback
// for tooling.
func agentFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Agent-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("agent")
}

// assignmentPayload is the wire shape for a freshly leased response.
type assignmentPayload struct {
	Response  *domain.Response `json:"response"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// HandleNextAssignment leases the best eligible response for the calling
// agent. 404 means the pool is empty for these filters; 409 means candidates
// existed but every lease attempt lost to a faster agent.
//
//	GET /api/review/next?mode=capi|cati&ac=…&excludeResponseId=…
func (h *Handlers) HandleNextAssignment(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromRequest(r)
	if agentID == "" {
		httputil.BadRequest(w, "agent required: set X-Agent-ID header or agent query param")
		return
	}

	opts := dispatch.Options{
		Mode:              r.URL.Query().Get("mode"),
		SelectedAC:        r.URL.Query().Get("ac"),
		ExcludeResponseID: r.URL.Query().Get("excludeResponseId"),
	}

	a, err := h.dispatcher.NextAssignment(r.Context(), TenantFromContext(r.Context()), agentID, opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.counters.IncDispatched()
	httputil.OK(w, assignmentPayload{Response: a.Response, ExpiresAt: a.LeaseExpiresAt})
}

// HandleSkip releases the agent's lease and demotes the response in dispatch
// order. Skipping requires a live lease; a foreign or lapsed lease is 403.
//
//	POST /api/review/{responseID}/skip
func (h *Handlers) HandleSkip(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromRequest(r)
	if agentID == "" {
		httputil.BadRequest(w, "agent required: set X-Agent-ID header or agent query param")
		return
	}

	responseID := chi.URLParam(r, "responseID")
	if err := h.dispatcher.Skip(r.Context(), agentID, responseID); err != nil {
		respondServiceError(w, err)
		return
	}

	h.counters.IncSkipped()
	httputil.NoContent(w)
}

// HandleRelease gives the lease back without prejudice. Idempotent: releasing
// a lease the agent does not hold is already the desired state, so the
// endpoint always answers 204.
//
//	POST /api/review/{responseID}/release
func (h *Handlers) HandleRelease(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromRequest(r)
	if agentID == "" {
		httputil.BadRequest(w, "agent required: set X-Agent-ID header or agent query param")
		return
	}

	responseID := chi.URLParam(r, "responseID")
	if err := h.dispatcher.Release(r.Context(), agentID, responseID); err != nil {
		respondServiceError(w, err)
		return
	}

	h.counters.IncReleased()
	httputil.NoContent(w)
}

type verifyRequest struct {
	ResponseID string `json:"responseId"`
	Verdict    string `json:"verdict"`
	Feedback   string `json:"feedback"`
}

// HandleVerify records the agent's verdict on a leased response and kicks
// the owning batch's evaluation.
//
//	POST /api/review/verify
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromRequest(r)
	if agentID == "" {
		httputil.BadRequest(w, "agent required: set X-Agent-ID header or agent query param")
		return
	}

	var req verifyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ResponseID == "" {
		httputil.BadRequest(w, "responseId required")
		return
	}

	err := h.verifier.SubmitVerdict(r.Context(), agentID, req.ResponseID, domain.Verdict(req.Verdict), req.Feedback)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.counters.IncVerified()
	httputil.NoContent(w)
}
