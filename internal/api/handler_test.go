//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/moogar0880/problems"

	"github.com/ashureev/taskmarket/internal/domain"
)

type fakeRepo struct {
	users    []*domain.User
	blocks   map[int64]*domain.Block
	reviews  []*domain.Review
	stats    *domain.Stats
	daily    []domain.DailyDecisions
	err      error
	pingErr  error
	lastRole string
}

func (f *fakeRepo) ListUsers(_ context.Context, role string) ([]*domain.User, error) {
	f.lastRole = role
	return f.users, f.err
}

func (f *fakeRepo) ListExecutorProfiles(context.Context) ([]*domain.ExecutorProfile, error) {
	return nil, f.err
}

func (f *fakeRepo) ListClientProfiles(context.Context) ([]*domain.ClientProfile, error) {
	return nil, f.err
}

func (f *fakeRepo) ListOrders(context.Context, int64) ([]*domain.Order, error) {
	return nil, f.err
}

func (f *fakeRepo) ListReviews(_ context.Context, status string) ([]*domain.Review, error) {
	var out []*domain.Review
	for _, r := range f.reviews {
		if status == "" || string(r.Status) == status {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeRepo) ListBlocks(context.Context, time.Time) ([]*domain.Block, error) {
	var out []*domain.Block
	for _, b := range f.blocks {
		out = append(out, b)
	}
	return out, f.err
}

func (f *fakeRepo) DeleteBlock(_ context.Context, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.blocks[userID]
	delete(f.blocks, userID)
	return ok, nil
}

func (f *fakeRepo) Stats(context.Context, time.Time) (*domain.Stats, error) {
	return f.stats, f.err
}

func (f *fakeRepo) DailyDecisions(context.Context, time.Time) ([]domain.DailyDecisions, error) {
	return f.daily, f.err
}

func (f *fakeRepo) Ping(context.Context) error {
	return f.pingErr
}

func newRouter(repo *fakeRepo) http.Handler {
	base := NewHandler(repo, nil)
	base.SetClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	NewHealthHandler(map[string]func(context.Context) error{"database": repo.Ping}).RegisterHealth(r)
	NewAdminHandler(base).RegisterRoutes(r)
	return r
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestProblem(t *testing.T) {
	w := httptest.NewRecorder()

	Problem(w, problems.NewStatusProblem(http.StatusConflict).
		WithInstance("/api/blocks/7").
		WithType("conflict").
		WithDetail("already lifted"))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != problems.ProblemMediaType {
		t.Errorf("Content-Type = %q, want %q", ct, problems.ProblemMediaType)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if got["status"] != float64(http.StatusConflict) || got["type"] != "conflict" ||
		got["detail"] != "already lifted" || got["instance"] != "/api/blocks/7" {
		t.Errorf("unexpected problem body %v", got)
	}
}

func TestHealth(t *testing.T) {
	repo := &fakeRepo{}
	w := do(newRouter(repo), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	repo.pingErr = errors.New("disk gone")
	w = do(newRouter(repo), http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"database":"unreachable"`) {
		t.Errorf("body = %s, want database unreachable", w.Body.String())
	}
}

func TestGetStats(t *testing.T) {
	repo := &fakeRepo{
		stats: &domain.Stats{Users: 3, PendingReviews: 1},
		daily: []domain.DailyDecisions{{Day: "2026-02-28", Approved: 1}},
	}
	w := do(newRouter(repo), http.MethodGet, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got struct {
		Users          int                     `json:"users"`
		PendingReviews int                     `json:"pending_reviews"`
		Daily          []domain.DailyDecisions `json:"daily"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Users != 3 || got.PendingReviews != 1 || len(got.Daily) != 1 {
		t.Errorf("unexpected stats %+v", got)
	}
}

func TestListUsersValidatesRole(t *testing.T) {
	repo := &fakeRepo{}
	h := newRouter(repo)

	w := do(h, http.MethodGet, "/api/users?role=admin")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want problem json", ct)
	}

	w = do(h, http.MethodGet, "/api/users?role=executor")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if repo.lastRole != "executor" {
		t.Errorf("role = %q, want executor", repo.lastRole)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s, want empty array", w.Body.String())
	}
}

func TestListReviewsByStatus(t *testing.T) {
	repo := &fakeRepo{reviews: []*domain.Review{
		{ID: "a", Status: domain.ReviewPending},
		{ID: "b", Status: domain.ReviewApproved},
	}}
	h := newRouter(repo)

	w := do(h, http.MethodGet, "/api/reviews?status=pending")
	var got []domain.Review
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("reviews = %+v, want only a", got)
	}

	if w := do(h, http.MethodGet, "/api/reviews?status=lost"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteBlock(t *testing.T) {
	repo := &fakeRepo{blocks: map[int64]*domain.Block{42: {UserID: 42}}}
	h := newRouter(repo)

	if w := do(h, http.MethodDelete, "/api/blocks/42"); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w := do(h, http.MethodDelete, "/api/blocks/42"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if w := do(h, http.MethodDelete, "/api/blocks/abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	repo := &fakeRepo{err: errors.New("sqlite: secret path /var/db")}
	w := do(newRouter(repo), http.MethodGet, "/api/executors")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("body leaks error: %s", w.Body.String())
	}
}

func TestExportUsersCSV(t *testing.T) {
	repo := &fakeRepo{users: []*domain.User{{UserID: 1, Username: "anna", Role: domain.RoleClient}}}
	w := do(newRouter(repo), http.MethodGet, "/api/export/users.csv")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if !strings.Contains(w.Body.String(), "1,anna,client,") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestExportMetricsCSV(t *testing.T) {
	repo := &fakeRepo{stats: &domain.Stats{Orders: 4}}
	w := do(newRouter(repo), http.MethodGet, "/api/export/metrics.csv")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "orders,4") {
		t.Errorf("body = %s", w.Body.String())
	}
}
