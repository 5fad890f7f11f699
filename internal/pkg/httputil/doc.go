// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler file should use these helpers instead of writing raw
// http.ResponseWriter calls, so all endpoints share one envelope shape
// ({success, data?, message?}) and consistent error logging.
package httputil
