package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// UpsertUser creates a user or refreshes their username.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, role, created_at, updated_at)
	VALUES (?, ?, '', ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		updated_at = excluded.updated_at`

	now := time.Now()
	created := user.CreatedAt
	if created.IsZero() {
		created = now
	}
	return retry(ctx, "upsert user", func() error {
		if _, err := s.db.ExecContext(ctx, query, user.UserID, user.Username, created.Unix(), now.Unix()); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT user_id, username, role, created_at, updated_at FROM users WHERE user_id = ?`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return u, nil
}

// ListUsers lists users ordered by registration time. The role "none"
// selects users without a role.
func (s *SQLiteStore) ListUsers(ctx context.Context, role string) ([]*domain.User, error) {
	query := `SELECT user_id, username, role, created_at, updated_at FROM users`
	var args []any
	switch role {
	case "":
	case "none":
		query += ` WHERE role = ''`
	default:
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at, user_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var role string
	var createdAt, updatedAt int64
	if err := row.Scan(&u.UserID, &u.Username, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

func setRole(ctx context.Context, tx *sql.Tx, userID int64, role domain.Role, now time.Time) error {
	query := `
	INSERT INTO users (user_id, username, role, created_at, updated_at)
	VALUES (?, '', ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		role = excluded.role,
		updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, query, userID, string(role), now.Unix(), now.Unix()); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}
