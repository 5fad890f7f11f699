package api

import (
	"context"
	"net/http"

	"github.com/opinari/fieldqc/internal/pkg/httputil"
)

// tenantContextKey is the context key for the resolved tenant id.
type tenantContextKey struct{}

// DefaultDevTenant is the tenant assumed in dev mode when a request names none.
const DefaultDevTenant = "dev-tenant"

// TenantFromContext returns the tenant id resolved by TenantContext, or ""
// when the middleware did not run.
func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantContextKey{}).(string)
	return id
}

// TenantContext resolves the tenant for every request under /api.
// Priority: X-Tenant-ID header, then the tenant query param, then the dev
// default when devMode is on. Authentication happens upstream; this layer
// only scopes data access. Requests with no resolvable tenant get a 400.
func TenantContext(devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get("X-Tenant-ID")
			if tenant == "" {
				tenant = r.URL.Query().Get("tenant")
			}
			if tenant == "" && devMode {
				tenant = DefaultDevTenant
			}
			if tenant == "" {
				httputil.BadRequest(w, "tenant required: set X-Tenant-ID header or tenant query param")
				return
			}
			ctx := context.WithValue(r.Context(), tenantContextKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
