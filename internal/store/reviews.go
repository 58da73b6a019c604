package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

const reviewColumns = `id, subject_id, kind, status, fields_json, payload_json, card_text,
	reasons_json, card_chat_id, card_message_id, moderator_id, created_at, decided_at`

// CreateReview stores a new review.
func (s *SQLiteStore) CreateReview(ctx context.Context, r *domain.Review) error {
	fieldsJSON, payloadJSON, reasonsJSON, err := encodeReview(r)
	if err != nil {
		return err
	}
	query := `INSERT INTO reviews (` + reviewColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return retry(ctx, "create review", func() error {
		if _, err := s.db.ExecContext(ctx, query,
			r.ID, r.SubjectID, string(r.Kind), string(r.Status), fieldsJSON, payloadJSON, r.CardText,
			reasonsJSON, r.CardChatID, r.CardMessageID, nullID(r.ModeratorID), r.CreatedAt.Unix(), nullUnix(r.DecidedAt),
		); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	})
}

// GetReview retrieves a review by id.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	r, err := scanReview(s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan review: %w", err)
	}
	return r, nil
}

// UpdateReview stores the review's status, reasons and card reference.
func (s *SQLiteStore) UpdateReview(ctx context.Context, r *domain.Review) error {
	return retry(ctx, "update review", func() error {
		return updateReview(ctx, s.db, r)
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateReview(ctx context.Context, db execer, r *domain.Review) error {
	reasonsJSON, err := marshalJSON(nonNil(r.Reasons))
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}
	res, err := db.ExecContext(ctx, `
	UPDATE reviews SET status = ?, reasons_json = ?, card_chat_id = ?, card_message_id = ?,
		moderator_id = ?, decided_at = ?
	WHERE id = ?`,
		string(r.Status), reasonsJSON, r.CardChatID, r.CardMessageID,
		nullID(r.ModeratorID), nullUnix(r.DecidedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("review %s not found", r.ID)
	}
	return nil
}

// OpenReview returns the subject's undecided review, if any.
func (s *SQLiteStore) OpenReview(ctx context.Context, subjectID int64) (*domain.Review, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews
		WHERE subject_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		subjectID, string(domain.ReviewPending), string(domain.ReviewSelecting))
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan open review: %w", err)
	}
	return r, nil
}

// ListReviews lists reviews newest first.
func (s *SQLiteStore) ListReviews(ctx context.Context, status string) ([]*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer closeRows(rows, "reviews")

	var out []*domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return out, nil
}

// ApproveReview marks the review approved, verifies a registration or applies an edit,
// lifts any block and logs the decision, in one transaction.
func (s *SQLiteStore) ApproveReview(ctx context.Context, r *domain.Review) error {
	decided := decidedAt(r)
	return s.inTx(ctx, "approve review", func(tx *sql.Tx) error {
		if err := updateReview(ctx, tx, r); err != nil {
			return err
		}
		if r.Kind.IsEdit() {
			if err := applyEdit(ctx, tx, r, decided); err != nil {
				return err
			}
		} else {
			table := profileTable(r.Kind)
			res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET verified = 1 WHERE user_id = ?`, r.SubjectID)
			if err != nil {
				return fmt.Errorf("verify profile: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%s profile %d not found", r.Kind.Subject(), r.SubjectID)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE user_id = ?`, r.SubjectID); err != nil {
			return fmt.Errorf("clear block: %w", err)
		}
		return logDecision(ctx, tx, r, decided)
	})
}

// RejectReview marks the review rejected, stores the block and logs the
// decision in one transaction. A rejected registration also loses its
// profile and role; a rejected edit leaves the approved profile untouched.
func (s *SQLiteStore) RejectReview(ctx context.Context, r *domain.Review, block *domain.Block) error {
	decided := decidedAt(r)
	return s.inTx(ctx, "reject review", func(tx *sql.Tx) error {
		if err := updateReview(ctx, tx, r); err != nil {
			return err
		}
		if err := upsertBlock(ctx, tx, block); err != nil {
			return err
		}
		if !r.Kind.IsEdit() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+profileTable(r.Kind)+` WHERE user_id = ?`, r.SubjectID); err != nil {
				return fmt.Errorf("delete profile: %w", err)
			}
			if err := setRole(ctx, tx, r.SubjectID, domain.RoleNone, decided); err != nil {
				return err
			}
		}
		return logDecision(ctx, tx, r, decided)
	})
}

func logDecision(ctx context.Context, tx *sql.Tx, r *domain.Review, decided time.Time) error {
	reasonsJSON, err := marshalJSON(nonNil(r.Reasons))
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO decisions (review_id, subject_id, kind, decision, reasons_json, moderator_id, decided_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubjectID, string(r.Kind), string(r.Status), reasonsJSON, r.ModeratorID, decided.Unix()); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func decidedAt(r *domain.Review) time.Time {
	if r.DecidedAt.IsZero() {
		return time.Now()
	}
	return r.DecidedAt
}

func profileTable(kind domain.ReviewKind) string {
	if kind.Subject() == string(domain.RoleExecutor) {
		return "executor_profiles"
	}
	return "client_profiles"
}

func encodeReview(r *domain.Review) (fieldsJSON, payloadJSON, reasonsJSON string, err error) {
	if fieldsJSON, err = marshalJSON(nonNil(r.Fields)); err != nil {
		return "", "", "", fmt.Errorf("encode fields: %w", err)
	}
	payload := r.Payload
	if payload == nil {
		payload = map[string][]string{}
	}
	if payloadJSON, err = marshalJSON(payload); err != nil {
		return "", "", "", fmt.Errorf("encode payload: %w", err)
	}
	if reasonsJSON, err = marshalJSON(nonNil(r.Reasons)); err != nil {
		return "", "", "", fmt.Errorf("encode reasons: %w", err)
	}
	return fieldsJSON, payloadJSON, reasonsJSON, nil
}

func scanReview(row scanner) (*domain.Review, error) {
	var r domain.Review
	var kind, status, fieldsJSON, payloadJSON, reasonsJSON string
	var moderator, decided sql.NullInt64
	var createdAt int64
	if err := row.Scan(
		&r.ID, &r.SubjectID, &kind, &status, &fieldsJSON, &payloadJSON, &r.CardText,
		&reasonsJSON, &r.CardChatID, &r.CardMessageID, &moderator, &createdAt, &decided,
	); err != nil {
		return nil, err
	}
	r.Kind = domain.ReviewKind(kind)
	r.Status = domain.ReviewStatus(status)
	r.ModeratorID = moderator.Int64
	r.CreatedAt = time.Unix(createdAt, 0)
	r.DecidedAt = fromNullUnix(decided)
	if err := unmarshalJSON(fieldsJSON, &r.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := unmarshalJSON(payloadJSON, &r.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := unmarshalJSON(reasonsJSON, &r.Reasons); err != nil {
		return nil, fmt.Errorf("decode reasons: %w", err)
	}
	if len(r.Fields) == 0 {
		r.Fields = nil
	}
	if len(r.Payload) == 0 {
		r.Payload = nil
	}
	if len(r.Reasons) == 0 {
		r.Reasons = nil
	}
	return &r, nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
