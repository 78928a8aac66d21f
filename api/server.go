/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     One structured line per request (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/members/*          Membership lifecycle
  /api/shares/*           Certificates, payments, dividends
  /api/approvals/*        Additional-share workflow
  /api/transfers/*        Transfer workflow
  /api/consolidations     Certificate merging
  /api/audit              Audit trail queries
  /api/scenarios/*        Demo profiles
  /metrics                Prometheus scrape target

SECURITY NOTE:
  No authentication middleware. The X-Acting-User header is recorded in
  the audit trail but never verified.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Acting-User"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/shares", h.ListMemberShares)
			r.Get("/{id}/eligibility", h.GetEligibility)
			r.Post("/{id}/suspend", h.SuspendMember)
			r.Post("/{id}/reinstate", h.ReinstateMember)
			r.Post("/{id}/offboarding", h.StartOffboarding)
			r.Delete("/{id}/offboarding", h.CancelOffboarding)
			r.Post("/{id}/terminate", h.TerminateMember)
		})

		// Share routes
		r.Route("/shares", func(r chi.Router) {
			r.Get("/{id}", h.GetShare)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/dividends", h.DeclareDividend)
			r.Get("/{id}/dividends", h.ListDividends)
		})

		// Approval workflow routes
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", h.ListApprovals)
			r.Post("/", h.CreateApproval)
			r.Post("/{id}/approve", h.ApproveApproval)
			r.Post("/{id}/reject", h.RejectApproval)
			r.Post("/{id}/complete", h.CompleteApproval)
		})

		// Transfer workflow routes
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", h.ListTransfers)
			r.Post("/", h.CreateTransfer)
			r.Post("/{id}/approve", h.ApproveTransfer)
			r.Post("/{id}/reject", h.RejectTransfer)
			r.Post("/{id}/complete", h.CompleteTransfer)
			r.Post("/{id}/cancel", h.CancelTransfer)
		})

		r.Post("/consolidations", h.CreateConsolidation)

		r.Get("/audit", h.ListAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/{name}/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		r.Get("/healthz", h.Healthz)
	})

	// Prometheus scrape target
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", indexPage)

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// indexPage lists the API surface for anyone hitting the root.
func indexPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Cooperative Share Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Cooperative Share Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/members">/api/members</a> - List members</li>
<li><a href="/api/approvals">/api/approvals</a> - List share requests</li>
<li><a href="/api/transfers">/api/transfers</a> - List transfers</li>
<li><a href="/api/audit">/api/audit</a> - Audit trail</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
}
