/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (RequestLogger)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the operator console

ROUTE GROUPS:
  /api/tenants/{tenantID}/*  Billing engine, see handlers.go
  /api/scenarios/*           Reference scenario loader
  /healthz                   Store health
  /metrics                   Prometheus scrape endpoint (when configured)

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

// RouterConfig holds the outer-surface settings of NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	Logger      *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/tariff", h.GetTariff)
			r.Put("/tariff", h.PutTariff)

			r.Post("/readings", h.RecordReading)
			r.Post("/adjustments", h.SaveAdjustment)

			r.Route("/units", func(r chi.Router) {
				r.Get("/", h.ListUnits)
				r.Post("/", h.SaveUnit)
				r.Route("/{unitID}", func(r chi.Router) {
					r.Get("/", h.GetUnit)
					r.Get("/bills", h.ListBills)
					r.Get("/bills/preview", h.PreviewBill)
					r.Delete("/bills/{period}", h.DeleteBill)
					r.Post("/payments", h.RecordPayment)
					r.Get("/advance", h.GetAdvance)
					r.Post("/advance", h.CreditAdvance)
					r.Get("/statement", h.GetStatement)
					r.Get("/audit", h.ListAudit)
				})
			})

			r.Post("/bills/generate", h.GenerateBills)
			r.Post("/bills/mark-overdue", h.MarkOverdue)
			r.Get("/payments/{paymentID}/allocations", h.GetPaymentAllocations)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Post("/reference", h.LoadReferenceScenario)
		})
	})

	return r
}

// RequestLogger logs one line per request: Info below 400, Warn for 4xx,
// Error for 5xx.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.Int("body_size", ww.BytesWritten()),
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, zap.String("query", r.URL.RawQuery))
			}

			msg := "HTTP Request"
			switch {
			case status >= 500:
				log.Error(msg, fields...)
			case status >= 400:
				log.Warn(msg, fields...)
			default:
				log.Info(msg, fields...)
			}
		})
	}
}
