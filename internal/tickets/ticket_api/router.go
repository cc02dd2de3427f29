package ticket_api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	analytics_api "ms-ticket-lifecycle/internal/analytics/api"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/monitoring"
	"ms-ticket-lifecycle/internal/security"
)

type RouterOptions struct {
	Verifier  auth.Verifier
	Analytics *analytics_api.Handler
	Limiter   *security.RateLimiter
	Metrics   *monitoring.Metrics
	Logger    *logger.Logger

	AllowedOrigins []string
}

// NewRouter wires the public routes and the authenticated /api routes.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Get("/health", Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier, log))
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}

		r.Route("/tickets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleOrganizer))
				r.Post("/mint", h.MintTicket)
				r.Post("/cancel", h.CancelTicket)
				r.Get("/{ticketId}/audit", h.ListAuditLogs)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleBuyer, auth.RoleMarketplace))
				r.Post("/request-resale", h.RequestResale)
				r.Post("/transfer", h.TransferTicket)
			})

			r.Get("/tx/{txHash}", h.TransactionStatus)
			r.Get("/{ticketId}", h.ViewTicket)
			r.Get("/{ticketId}/qr", h.TicketQR)
		})

		if opts.Analytics != nil {
			opts.Analytics.RegisterRoutes(r)
		}
	})
	log.Info("ROUTER", "Ticket routes registered under /api/tickets")

	return r
}

// RequestLogger logs every request once it has been served.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), fmt.Sprintf("%dms", time.Since(start).Milliseconds()))
		})
	}
}
