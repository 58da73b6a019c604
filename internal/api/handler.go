// Package api provides HTTP handlers for the marketplace admin panel.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/moogar0880/problems"

	"github.com/ashureev/taskmarket/internal/domain"
)

// Repository is the storage the admin panel reads.
type Repository interface {
	ListUsers(ctx context.Context, role string) ([]*domain.User, error)
	ListExecutorProfiles(ctx context.Context) ([]*domain.ExecutorProfile, error)
	ListClientProfiles(ctx context.Context) ([]*domain.ClientProfile, error)
	ListOrders(ctx context.Context, clientID int64) ([]*domain.Order, error)
	ListReviews(ctx context.Context, status string) ([]*domain.Review, error)
	ListBlocks(ctx context.Context, now time.Time) ([]*domain.Block, error)
	DeleteBlock(ctx context.Context, userID int64) (bool, error)
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
	DailyDecisions(ctx context.Context, since time.Time) ([]domain.DailyDecisions, error)
	Ping(ctx context.Context) error
}

// Handler provides common handler utilities.
type Handler struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:   repo,
		now:    time.Now,
		logger: logger.With("module", "api"),
	}
}

// SetClock overrides the time source.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Problem writes an RFC 7807 problem document.
func Problem(w http.ResponseWriter, p *problems.Problem) {
	w.Header().Set("Content-Type", problems.ProblemMediaType)
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Debug("Failed to encode problem", "error", err)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(r.URL.Path).
		WithType("validation_error").
		WithDetail(detail))
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, problems.NewStatusProblem(http.StatusNotFound).
		WithInstance(r.URL.Path).
		WithType("not_found").
		WithDetail(detail))
}

// internalError logs err and answers without exposing it.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Request failed", "error", err, "path", r.URL.Path)
	Problem(w, problems.NewStatusProblem(http.StatusInternalServerError).
		WithInstance(r.URL.Path).
		WithType("internal_error"))
}
