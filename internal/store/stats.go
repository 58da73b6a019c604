package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// Stats returns marketplace counters as of now.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*domain.Stats, error) {
	var st domain.Stats
	counters := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&st.Users, `SELECT COUNT(*) FROM users`, nil},
		{&st.Executors, `SELECT COUNT(*) FROM executor_profiles`, nil},
		{&st.VerifiedExecutors, `SELECT COUNT(*) FROM executor_profiles WHERE verified = 1`, nil},
		{&st.Clients, `SELECT COUNT(*) FROM client_profiles`, nil},
		{&st.VerifiedClients, `SELECT COUNT(*) FROM client_profiles WHERE verified = 1`, nil},
		{&st.Orders, `SELECT COUNT(*) FROM orders`, nil},
		{&st.PendingReviews, `SELECT COUNT(*) FROM reviews WHERE status IN (?, ?)`,
			[]any{string(domain.ReviewPending), string(domain.ReviewSelecting)}},
		{&st.ActiveBlocks, `SELECT COUNT(*) FROM blocks WHERE expires_at > ?`, []any{now.Unix()}},
		{&st.ApprovedDecisions, `SELECT COUNT(*) FROM decisions WHERE decision = ?`, []any{string(domain.ReviewApproved)}},
		{&st.RejectedDecisions, `SELECT COUNT(*) FROM decisions WHERE decision = ?`, []any{string(domain.ReviewRejected)}},
	}
	for _, c := range counters {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %q: %w", c.query, err)
		}
	}
	return &st, nil
}

// DailyDecisions counts moderation outcomes per UTC day since the given time.
func (s *SQLiteStore) DailyDecisions(ctx context.Context, since time.Time) ([]domain.DailyDecisions, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(decided_at, 'unixepoch') AS day,
		       SUM(CASE WHEN decision = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN decision = ? THEN 1 ELSE 0 END)
		FROM decisions
		WHERE decided_at >= ?
		GROUP BY day
		ORDER BY day`,
		string(domain.ReviewApproved), string(domain.ReviewRejected), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query daily decisions: %w", err)
	}
	defer closeRows(rows, "daily decisions")

	var out []domain.DailyDecisions
	for rows.Next() {
		var d domain.DailyDecisions
		if err := rows.Scan(&d.Day, &d.Approved, &d.Rejected); err != nil {
			return nil, fmt.Errorf("scan daily decisions: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily decisions: %w", err)
	}
	return out, nil
}
