package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/taskmarket/internal/domain"
)

// ErrReviewPending is returned when the user already has a submission waiting
// for a moderator.
var ErrReviewPending = errors.New("a submission is already awaiting review")

// ErrProfileUnverified is returned for an edit of a profile that was never
// approved.
var ErrProfileUnverified = errors.New("profile has not been approved")

// BlockedError refuses a user who was rejected until Until.
type BlockedError struct {
	Until   time.Time
	Reasons []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked until %s", e.Until.Format(time.RFC3339))
}

// CooldownError refuses an edit submitted too soon after the last update.
type CooldownError struct {
	AllowedAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("edits allowed again at %s", e.AllowedAt.Format(time.RFC3339))
}

// Admit decides whether the user may start a submission of the given kind.
func (g *Gate) Admit(ctx context.Context, userID int64, kind domain.ReviewKind) error {
	now := g.now()

	block, err := g.repo.GetBlock(ctx, userID)
	if err != nil {
		return fmt.Errorf("get block: %w", err)
	}
	if block.ActiveAt(now) {
		return &BlockedError{Until: block.ExpiresAt, Reasons: block.Reasons}
	}

	open, err := g.repo.OpenReview(ctx, userID)
	if err != nil {
		return fmt.Errorf("get open review: %w", err)
	}
	if open != nil {
		return ErrReviewPending
	}

	if !kind.IsEdit() {
		return nil
	}
	updatedAt, verified, err := g.repo.ProfileUpdatedAt(ctx, userID, kind.Subject())
	if err != nil {
		return fmt.Errorf("get profile update time: %w", err)
	}
	if !verified {
		return ErrProfileUnverified
	}
	if g.cfg.EditCooldown <= 0 {
		return nil
	}
	if allowed := updatedAt.Add(g.cfg.EditCooldown); now.Before(allowed) {
		return &CooldownError{AllowedAt: allowed}
	}
	return nil
}

// AdmissionMessage renders an admission refusal for the user. ok is false for
// errors that are not refusals.
func AdmissionMessage(err error) (string, bool) {
	var blocked *BlockedError
	var cooldown *CooldownError
	switch {
	case errors.As(err, &blocked):
		return fmt.Sprintf("You cannot submit a profile until %s.", formatDate(blocked.Until)), true
	case errors.As(err, &cooldown):
		return fmt.Sprintf("You can change your profile again after %s.", formatDate(cooldown.AllowedAt)), true
	case errors.Is(err, ErrProfileUnverified):
		return "Your profile has not been approved yet, so it cannot be edited. Register again from the menu.", true
	case errors.Is(err, ErrReviewPending):
		return "Your previous submission is still being reviewed. Please wait for the moderator's decision.", true
	}
	return "", false
}

func formatDate(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04 UTC")
}
