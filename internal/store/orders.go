package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// CreateOrder stores an order with its jobs and files in one transaction.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := o.Status
	if status == "" {
		status = domain.OrderOpen
	}

	var id int64
	err := s.inTx(ctx, "create order", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (client_id, title, description, budget, deadline_days, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ClientID, o.Title, o.Description, o.Budget, o.DeadlineDays, status, created.Unix())
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("order id: %w", err)
		}
		for i, job := range o.JobIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO order_jobs (order_id, job_id, position) VALUES (?, ?, ?)`, id, job, i); err != nil {
				return fmt.Errorf("insert order job %d: %w", job, err)
			}
		}
		for i, path := range o.Files {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO order_files (order_id, position, path) VALUES (?, ?, ?)`, id, i, path); err != nil {
				return fmt.Errorf("insert order file: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	o.ID = id
	o.Status = status
	o.CreatedAt = time.Unix(created.Unix(), 0)
	return id, nil
}

// ListOrders lists orders newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, clientID int64) ([]*domain.Order, error) {
	query := `SELECT id, client_id, title, description, budget, deadline_days, status, created_at FROM orders`
	var args []any
	if clientID != 0 {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	var out []*domain.Order
	for rows.Next() {
		var o domain.Order
		var createdAt int64
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Title, &o.Description, &o.Budget, &o.DeadlineDays, &o.Status, &createdAt); err != nil {
			closeRows(rows, "orders")
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &o)
	}
	closeRows(rows, "orders")
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for _, o := range out {
		if o.JobIDs, err = s.int64Column(ctx, `SELECT job_id FROM order_jobs WHERE order_id = ? ORDER BY position`, o.ID); err != nil {
			return nil, fmt.Errorf("load order jobs: %w", err)
		}
		if o.Files, err = s.stringColumn(ctx, `SELECT path FROM order_files WHERE order_id = ? ORDER BY position`, o.ID); err != nil {
			return nil, fmt.Errorf("load order files: %w", err)
		}
	}
	return out, nil
}
