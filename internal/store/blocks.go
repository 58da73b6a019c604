package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// GetBlock retrieves the user's block, expired or not.
func (s *SQLiteStore) GetBlock(ctx context.Context, userID int64) (*domain.Block, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, expires_at, reasons_json, updated_at FROM blocks WHERE user_id = ?`, userID)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	return b, nil
}

// UpsertBlock stores the block, overwriting any existing one.
func (s *SQLiteStore) UpsertBlock(ctx context.Context, b *domain.Block) error {
	return retry(ctx, "upsert block", func() error {
		return upsertBlock(ctx, s.db, b)
	})
}

func upsertBlock(ctx context.Context, db execer, b *domain.Block) error {
	reasonsJSON, err := marshalJSON(nonNil(b.Reasons))
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := db.ExecContext(ctx, `
	INSERT INTO blocks (user_id, expires_at, reasons_json, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		expires_at = excluded.expires_at,
		reasons_json = excluded.reasons_json,
		updated_at = excluded.updated_at`,
		b.UserID, b.ExpiresAt.Unix(), reasonsJSON, updated.Unix()); err != nil {
		return fmt.Errorf("upsert block: %w", err)
	}
	return nil
}

// DeleteBlock lifts the user's block.
func (s *SQLiteStore) DeleteBlock(ctx context.Context, userID int64) (bool, error) {
	var n int64
	err := retry(ctx, "delete block", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("delete block: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n > 0, err
}

// ListBlocks lists blocks active at now, soonest to expire first.
func (s *SQLiteStore) ListBlocks(ctx context.Context, now time.Time) ([]*domain.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, expires_at, reasons_json, updated_at FROM blocks
		WHERE expires_at > ? ORDER BY expires_at, user_id`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer closeRows(rows, "blocks")

	var out []*domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return out, nil
}

// DeleteExpiredBlocks purges blocks that ended at or before now.
func (s *SQLiteStore) DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := retry(ctx, "delete expired blocks", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE expires_at <= ?`, now.Unix())
		if err != nil {
			return fmt.Errorf("delete expired blocks: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanBlock(row scanner) (*domain.Block, error) {
	var b domain.Block
	var expires, updated int64
	var reasonsJSON string
	if err := row.Scan(&b.UserID, &expires, &reasonsJSON, &updated); err != nil {
		return nil, err
	}
	b.ExpiresAt = time.Unix(expires, 0)
	b.UpdatedAt = time.Unix(updated, 0)
	if err := unmarshalJSON(reasonsJSON, &b.Reasons); err != nil {
		return nil, fmt.Errorf("decode reasons: %w", err)
	}
	return &b, nil
}
