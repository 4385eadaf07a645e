/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zap request logging (method, path, status, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/requests/*          Submit, list, approve, amend, delete, bulk
  /api/leave-requests      Leave builder (days, half days, with pay)
  /api/offset-requests     Offset builder (use / return hours)
  /api/overtime-requests   Overtime builder (rated claim)
  /api/accounts/*          Balances, journal, grants
  /api/overtime/rate       Rate calculator without submitting
  /api/policies            Registered resource policies
  /api/admin/verify        Ledger verification
  /api/scenarios/*         Demo scenarios

ACTOR:
  Mutating routes read the acting user from the X-Actor-ID header.
  Identity is resolved upstream (gateway/SSO); this service only maps
  actor ids to roles through the RoleResolver.

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
	"go.uber.org/zap"
)

// ActorHeader carries the acting user's id.
const ActorHeader = "X-Actor-ID"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.SubmitRequest)
			r.Post("/bulk-status", h.BulkUpdateStatus)
			r.Get("/{id}", h.GetRequest)
			r.Patch("/{id}", h.AmendRequest)
			r.Delete("/{id}", h.DeleteRequest)
			r.Get("/{id}/history", h.GetHistory)
			r.Put("/{id}/status", h.UpdateStatus)
		})

		r.Post("/leave-requests", h.SubmitLeave)
		r.Post("/offset-requests", h.SubmitOffset)
		r.Post("/overtime-requests", h.SubmitOvertime)

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/grant", h.Grant)
			r.Get("/{employeeID}", h.ListAccounts)
			r.Get("/{employeeID}/{resource}", h.GetAccount)
			r.Get("/{employeeID}/{resource}/entries", h.GetEntries)
		})

		r.Post("/overtime/rate", h.ComputeOvertimeRate)
		r.Get("/policies", h.ListPolicies)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/verify", h.Verify)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("actor", r.Header.Get(ActorHeader)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
