package api

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/http"

	"github.com/opinari/fieldqc/internal/pkg/httputil"
	"github.com/opinari/fieldqc/internal/service/batching"
	"github.com/opinari/fieldqc/internal/service/dispatch"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
	"github.com/opinari/fieldqc/internal/service/sampling"
	"github.com/opinari/fieldqc/internal/service/verification"
)

// statusFor maps service sentinels onto HTTP status codes. Anything the
// switch does not recognize is an internal failure and reports 500 with a
// sanitized message; the raw error only ever reaches the server log.
func statusFor(err error) int {
	switch {
	case errors.Is(err, batching.ErrInvalidSubmission),
		errors.Is(err, dispatch.ErrInvalidMode),
		errors.Is(err, dispatch.ErrMissingAgent),
		errors.Is(err, verification.ErrInvalidVerdict),
		errors.Is(err, qcconfig.ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, verification.ErrNotFound),
		errors.Is(err, sampling.ErrNotFound),
		errors.Is(err, qcconfig.ErrNotFound),
		errors.Is(err, dispatch.ErrNoneAvailable):
		return http.StatusNotFound

	case errors.Is(err, verification.ErrAlreadyDecided),
		errors.Is(err, verification.ErrNotLeaseHolder),
		errors.Is(err, dispatch.ErrNotLeaseHolder):
		return http.StatusForbidden

	case errors.Is(err, dispatch.ErrLeaseRace),
		errors.Is(err, dispatch.ErrLeaseLost),
		errors.Is(err, sampling.ErrAlreadySealed),
		errors.Is(err, sampling.ErrAlreadyDecided),
		errors.Is(err, sampling.ErrEmptyBatch),
		errors.Is(err, sampling.ErrMembershipChanged),
		errors.Is(err, batching.ErrBatchConflict),
		errors.Is(err, verification.ErrBatchNotReviewable):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError translates a service error into the response envelope.
// 4xx sentinel messages are stable and safe to expose; everything else is
// logged and replaced with a generic message.
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusInternalServerError:
		httputil.InternalError(w, err)
	case status == http.StatusServiceUnavailable:
		httputil.Unavailable(w, "temporarily unavailable, retry shortly")
	default:
		httputil.Error(w, status, err.Error())
	}
}
