// Package report renders marketplace data as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// WriteMetrics writes the counters as name,value rows followed by the daily
// decision series as day,approved,rejected rows.
func WriteMetrics(w io.Writer, stats *domain.Stats, daily []domain.DailyDecisions) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"metric", "value"},
		{"users", strconv.Itoa(stats.Users)},
		{"executors", strconv.Itoa(stats.Executors)},
		{"verified_executors", strconv.Itoa(stats.VerifiedExecutors)},
		{"clients", strconv.Itoa(stats.Clients)},
		{"verified_clients", strconv.Itoa(stats.VerifiedClients)},
		{"orders", strconv.Itoa(stats.Orders)},
		{"pending_reviews", strconv.Itoa(stats.PendingReviews)},
		{"active_blocks", strconv.Itoa(stats.ActiveBlocks)},
		{"approved_decisions", strconv.Itoa(stats.ApprovedDecisions)},
		{"rejected_decisions", strconv.Itoa(stats.RejectedDecisions)},
	}
	if len(daily) > 0 {
		rows = append(rows, []string{}, []string{"day", "approved", "rejected"})
		for _, d := range daily {
			rows = append(rows, []string{d.Day, strconv.Itoa(d.Approved), strconv.Itoa(d.Rejected)})
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write metrics csv: %w", err)
	}
	return nil
}

// WriteUsers writes one row per user.
func WriteUsers(w io.Writer, users []*domain.User) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"user_id", "username", "role", "created_at"}); err != nil {
		return fmt.Errorf("write users csv: %w", err)
	}
	for _, u := range users {
		role := string(u.Role)
		if role == "" {
			role = "none"
		}
		row := []string{strconv.FormatInt(u.UserID, 10), u.Username, role, u.CreatedAt.UTC().Format(time.RFC3339)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write users csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write users csv: %w", err)
	}
	return nil
}
