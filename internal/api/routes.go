package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes. Health endpoints sit outside /api
// so probes never need tenant headers.
func SetupRoutes(h *Handlers, health *HealthChecker, devMode bool) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Tenant-ID", "X-Agent-ID"},
		MaxAge:         300,
	}))

	// Health checks (no tenant required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	// API routes (tenant-scoped)
	r.Route("/api", func(r chi.Router) {
		r.Use(TenantContext(devMode))

		// Quality-agent review surface
		r.Route("/review", func(r chi.Router) {
			r.Get("/next", h.HandleNextAssignment)
			r.Post("/{responseID}/skip", h.HandleSkip)
			r.Post("/{responseID}/release", h.HandleRelease)
			r.Post("/verify", h.HandleVerify)
		})

		// Interviewer submission ingress and response reads
		r.Route("/responses", func(r chi.Router) {
			r.Post("/", h.HandleSubmitResponse)
			r.Get("/", h.HandleListResponses)
			r.Get("/{responseID}", h.HandleGetResponse)
		})

		// Batch administration
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.HandleListBatches)
			r.Post("/process", h.HandleProcessBatches)
			r.Get("/{batchID}", h.HandleGetBatch)
			r.Post("/{batchID}/seal", h.HandleSealBatch)
		})

		// Sampling configuration
		r.Route("/qc-config", func(r chi.Router) {
			r.Get("/", h.HandleListConfigs)
			r.Post("/", h.HandleCreateConfig)
			r.Get("/survey/{surveyID}", h.HandleResolveConfig)
		})

		// System routes
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", h.HandleSystemStatus)
		})
	})

	return r
}
