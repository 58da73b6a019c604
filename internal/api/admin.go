package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/identity"
)

// statsWindow is how far back the daily decision series reaches.
const statsWindow = 30 * 24 * time.Hour

// AdminHandler serves the read-mostly admin API.
type AdminHandler struct {
	*Handler
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(base *Handler) *AdminHandler {
	return &AdminHandler{Handler: base}
}

// RegisterRoutes registers admin routes. Callers mount them behind the
// admin identity middleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/stats", h.GetStats)
	r.Get("/api/users", h.ListUsers)
	r.Get("/api/executors", h.ListExecutors)
	r.Get("/api/clients", h.ListClients)
	r.Get("/api/orders", h.ListOrders)
	r.Get("/api/reviews", h.ListReviews)
	r.Get("/api/blocks", h.ListBlocks)
	r.Delete("/api/blocks/{userID}", h.DeleteBlock)
	r.Get("/api/export/metrics.csv", h.ExportMetrics)
	r.Get("/api/export/users.csv", h.ExportUsers)
}

type statsResponse struct {
	*domain.Stats
	Daily []domain.DailyDecisions `json:"daily"`
}

// GetStats returns the dashboard counters and the recent decision series.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	stats, err := h.repo.Stats(r.Context(), now)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	daily, err := h.repo.DailyDecisions(r.Context(), now.Add(-statsWindow))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if daily == nil {
		daily = []domain.DailyDecisions{}
	}
	JSON(w, http.StatusOK, statsResponse{Stats: stats, Daily: daily})
}

// ListUsers lists users, optionally filtered by ?role=executor|client|none.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	switch role {
	case "", "none", string(domain.RoleExecutor), string(domain.RoleClient):
	default:
		badRequest(w, r, "role must be executor, client or none")
		return
	}
	users, err := h.repo.ListUsers(r.Context(), role)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(users))
}

// ListExecutors lists executor profiles.
func (h *AdminHandler) ListExecutors(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.repo.ListExecutorProfiles(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(profiles))
}

// ListClients lists client profiles.
func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.repo.ListClientProfiles(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(profiles))
}

// ListOrders lists orders, optionally of one client via ?client_id=.
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var clientID int64
	if v := r.URL.Query().Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			badRequest(w, r, "client_id must be a positive integer")
			return
		}
		clientID = id
	}
	orders, err := h.repo.ListOrders(r.Context(), clientID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(orders))
}

// ListReviews lists reviews, optionally filtered by ?status=.
func (h *AdminHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch domain.ReviewStatus(status) {
	case "", domain.ReviewPending, domain.ReviewSelecting, domain.ReviewApproved, domain.ReviewRejected:
	default:
		badRequest(w, r, "unknown review status")
		return
	}
	reviews, err := h.repo.ListReviews(r.Context(), status)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(reviews))
}

// ListBlocks lists active blocks.
func (h *AdminHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.repo.ListBlocks(r.Context(), h.now())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(blocks))
}

// DeleteBlock lifts a user's block early.
func (h *AdminHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		badRequest(w, r, "userID must be a positive integer")
		return
	}
	deleted, err := h.repo.DeleteBlock(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !deleted {
		notFound(w, r, "user is not blocked")
		return
	}
	admin, _ := identity.AdminFromContext(r.Context())
	h.logger.Info("Block lifted", "user_id", userID, "admin", admin.Fingerprint, "remote_ip", identity.IPFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
