package analytics_api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-ticket-lifecycle/internal/analytics"
	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the organizer-only analytics routes. Requests must
// already be authenticated.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleOrganizer))
		r.Get("/lifecycle", h.GetLifecycleSummary)
	})
}

// GetLifecycleSummary handles GET /api/analytics/lifecycle?days=N
func (h *Handler) GetLifecycleSummary(w http.ResponseWriter, r *http.Request) {
	days := analytics.DefaultWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.WriteError(w, apperror.Validation("days must be a positive integer"))
			return
		}
		days = n
	}

	summary, err := h.Service.Summary(r.Context(), days)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Failed to build lifecycle summary: "+err.Error())
		utils.WriteError(w, apperror.Wrap(apperror.CodeInternal, "failed to build lifecycle summary", err))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Lifecycle summary retrieved", summary))
}
