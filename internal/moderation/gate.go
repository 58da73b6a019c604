// Package moderation implements the human review step that every
// registration and profile edit passes before it becomes visible.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/multiselect"
)

// Repository is the storage the gate needs.
type Repository interface {
	CreateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	UpdateReview(ctx context.Context, r *domain.Review) error
	// OpenReview returns the subject's pending or selecting review, if any.
	OpenReview(ctx context.Context, subjectID int64) (*domain.Review, error)
	// ApproveReview applies an approval atomically: verifies a registration's
	// profile or applies an edit payload, clears the block and logs the decision.
	ApproveReview(ctx context.Context, r *domain.Review) error
	// RejectReview applies a rejection atomically: stores the block, drops a
	// registration's profile and role, and logs the decision.
	RejectReview(ctx context.Context, r *domain.Review, block *domain.Block) error
	GetBlock(ctx context.Context, userID int64) (*domain.Block, error)
	// ProfileUpdatedAt reports when the subject's profile last changed and
	// whether it is verified.
	ProfileUpdatedAt(ctx context.Context, userID int64, subject string) (time.Time, bool, error)
}

// Config holds moderation settings.
type Config struct {
	ModeratorChatID int64
	Moderators      []int64
	EditCooldown    time.Duration
}

// lockStripes bounds the mutexes serializing presses on the same card.
const lockStripes = 64

// Card action verbs.
const (
	ActApprove = "approve"
	ActReject  = "reject"
	ActReason  = "reason"
	ActConfirm = "confirm"
	ActBack    = "back"
)

// Callback notices shown to the moderator pressing a card button.
const (
	NoticeModeratorsOnly = "Moderators only."
	NoticeDecided        = "This submission has already been decided."
	NoticeUnknown        = "This submission no longer exists."
	NoticeNeedReason     = "Select at least one reason."
)

// Gate posts review cards and applies moderator decisions.
type Gate struct {
	repo   Repository
	render chat.Renderer
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
	locks  [lockStripes]sync.Mutex
}

// NewGate creates a moderation gate.
func NewGate(repo Repository, render chat.Renderer, cfg Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		repo:   repo,
		render: render,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("module", "moderation"),
	}
}

// SetClock replaces the gate's clock.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// IsModerator reports whether the user may act on review cards.
func (g *Gate) IsModerator(userID int64) bool {
	return slices.Contains(g.cfg.Moderators, userID)
}

// Submission is a finished draft handed to moderation.
type Submission struct {
	SubjectID int64
	Username  string
	Kind      domain.ReviewKind
	// Summary is the human readable draft shown on the card.
	Summary string
	Fields  []string
	Payload map[string][]string
}

// Submit stores a review and posts its card to the moderator chat.
func (g *Gate) Submit(ctx context.Context, s Submission) (*domain.Review, error) {
	r := &domain.Review{
		ID:        uuid.NewString(),
		SubjectID: s.SubjectID,
		Kind:      s.Kind,
		Status:    domain.ReviewPending,
		Fields:    s.Fields,
		Payload:   s.Payload,
		CardText:  cardHeader(s) + "\n\n" + s.Summary,
		CreatedAt: g.now(),
	}

	ref, err := g.render.Send(ctx, g.cfg.ModeratorChatID, g.card(r))
	if err != nil {
		return nil, fmt.Errorf("post review card: %w", err)
	}
	r.CardChatID = ref.ChatID
	r.CardMessageID = ref.MessageID

	if err := g.repo.CreateReview(ctx, r); err != nil {
		if _, editErr := g.render.Edit(ctx, ref, chat.Prompt{Text: r.CardText + "\n\n❗ Not recorded, ignore this card."}); editErr != nil {
			g.logger.Warn("Failed to mark orphan review card", "review_id", r.ID, "error", editErr)
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	g.logger.Info("Review submitted", "review_id", r.ID, "user_id", r.SubjectID, "kind", r.Kind)
	return r, nil
}

// HandleAction applies a card button press by moderatorID. The returned
// notice, if any, is shown to the moderator.
func (g *Gate) HandleAction(ctx context.Context, moderatorID int64, token string) (string, error) {
	if !g.IsModerator(moderatorID) {
		g.logger.Warn("Moderation action by non-moderator", "user_id", moderatorID, "token", token)
		return NoticeModeratorsOnly, nil
	}
	prefix, parts := chat.SplitToken(token)
	if prefix != chat.PrefixModeration || len(parts) < 2 {
		return "", fmt.Errorf("malformed moderation token %q", token)
	}

	verb, id := parts[0], parts[1]
	unlock := g.lock(id)
	defer unlock()

	r, err := g.repo.GetReview(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get review: %w", err)
	}
	if r == nil {
		return NoticeUnknown, nil
	}
	if !r.Status.Open() {
		g.clearCard(ctx, r)
		return NoticeDecided, nil
	}

	switch verb {
	case ActApprove:
		return "", g.approve(ctx, r, moderatorID)
	case ActReject:
		return g.step(ctx, r, evReject)
	case ActBack:
		r.Reasons = nil
		return g.step(ctx, r, evBack)
	case ActReason:
		if len(parts) < 3 || r.Status != domain.ReviewSelecting {
			return "", nil
		}
		if _, ok := LookupReason(parts[2]); !ok {
			return "", fmt.Errorf("unknown reason %q", parts[2])
		}
		r.Reasons = multiselect.Toggle(r.Reasons, parts[2], 0)
		if err := g.repo.UpdateReview(ctx, r); err != nil {
			return "", fmt.Errorf("update review: %w", err)
		}
		return "", g.redraw(ctx, r)
	case ActConfirm:
		return g.reject(ctx, r, moderatorID)
	}
	return "", fmt.Errorf("unknown moderation action %q", verb)
}

func (g *Gate) lock(id string) func() {
	m := &g.locks[lockStripe(id)]
	m.Lock()
	return m.Unlock
}

func lockStripe(id string) uint64 {
	return xxhash.Sum64String(id) % lockStripes
}

func (g *Gate) step(ctx context.Context, r *domain.Review, event string) (string, error) {
	if err := transition(ctx, r, event); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return "", nil
		}
		return "", err
	}
	if err := g.repo.UpdateReview(ctx, r); err != nil {
		return "", fmt.Errorf("update review: %w", err)
	}
	return "", g.redraw(ctx, r)
}

func (g *Gate) approve(ctx context.Context, r *domain.Review, moderatorID int64) error {
	if err := transition(ctx, r, evApprove); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil
		}
		return err
	}
	r.ModeratorID = moderatorID
	r.DecidedAt = g.now()
	if err := g.repo.ApproveReview(ctx, r); err != nil {
		return fmt.Errorf("approve review: %w", err)
	}
	g.logger.Info("Review approved", "review_id", r.ID, "user_id", r.SubjectID, "moderator_id", moderatorID)

	g.finishCard(ctx, r, fmt.Sprintf("✅ Approved by %d", moderatorID))
	text := "Your registration has been approved. Welcome aboard!"
	if r.Kind.IsEdit() {
		text = "Your changes have been verified and are now visible."
	}
	g.notify(ctx, r.SubjectID, text)
	return nil
}

func (g *Gate) reject(ctx context.Context, r *domain.Review, moderatorID int64) (string, error) {
	if err := transition(ctx, r, evConfirm); err != nil {
		if errors.Is(err, ErrNoReasons) {
			return NoticeNeedReason, nil
		}
		if errors.Is(err, ErrInvalidTransition) {
			return "", nil
		}
		return "", err
	}
	dur, err := BlockDuration(r.Reasons)
	if err != nil {
		return "", err
	}

	now := g.now()
	r.ModeratorID = moderatorID
	r.DecidedAt = now
	block := &domain.Block{
		UserID:    r.SubjectID,
		ExpiresAt: now.Add(dur),
		Reasons:   slices.Clone(r.Reasons),
		UpdatedAt: now,
	}
	if err := g.repo.RejectReview(ctx, r, block); err != nil {
		return "", fmt.Errorf("reject review: %w", err)
	}
	g.logger.Info("Review rejected",
		"review_id", r.ID,
		"user_id", r.SubjectID,
		"moderator_id", moderatorID,
		"reasons", r.Reasons,
		"blocked_until", block.ExpiresAt,
	)

	labels := strings.Join(ReasonLabels(r.Reasons), ", ")
	g.finishCard(ctx, r, fmt.Sprintf("❌ Rejected by %d: %s", moderatorID, labels))

	what := "Your registration has been rejected"
	if r.Kind.IsEdit() {
		what = "Your profile changes have been rejected"
	}
	g.notify(ctx, r.SubjectID, fmt.Sprintf("%s.\nReasons: %s.\nYou can try again after %s.",
		what, labels, formatDate(block.ExpiresAt)))
	return "", nil
}

// card renders the review card for its current status.
func (g *Gate) card(r *domain.Review) chat.Prompt {
	p := chat.Prompt{Text: r.CardText}
	switch r.Status {
	case domain.ReviewPending:
		p = p.Row(
			chat.Action{Label: "✅ Approve", Token: chat.Token(chat.PrefixModeration, ActApprove, r.ID)},
			chat.Action{Label: "❌ Reject", Token: chat.Token(chat.PrefixModeration, ActReject, r.ID)},
		)
	case domain.ReviewSelecting:
		opts := make([]multiselect.Option, 0, len(Reasons))
		for _, rs := range Reasons {
			opts = append(opts, multiselect.Option{ID: rs.Code, Label: fmt.Sprintf("%s (%dd)", rs.Label, rs.Days)})
		}
		p.Text += "\n\nSelect rejection reasons:"
		p.Rows = multiselect.Render(opts, r.Reasons, multiselect.View{
			ToggleToken: func(code string) string {
				return chat.Token(chat.PrefixModeration, ActReason, r.ID, code)
			},
			ConfirmLabel: "Confirm rejection",
			ConfirmToken: chat.Token(chat.PrefixModeration, ActConfirm, r.ID),
			PerRow:       1,
		})
		p = p.Row(chat.Action{Label: "↩️ Back", Token: chat.Token(chat.PrefixModeration, ActBack, r.ID)})
	}
	return p
}

func (g *Gate) cardRef(r *domain.Review) chat.MessageRef {
	return chat.MessageRef{ChatID: r.CardChatID, MessageID: r.CardMessageID}
}

func (g *Gate) redraw(ctx context.Context, r *domain.Review) error {
	if _, err := g.render.Edit(ctx, g.cardRef(r), g.card(r)); err != nil {
		return fmt.Errorf("redraw review card: %w", err)
	}
	return nil
}

func (g *Gate) finishCard(ctx context.Context, r *domain.Review, verdict string) {
	p := chat.Prompt{Text: r.CardText + "\n\n" + verdict}
	if _, err := g.render.Edit(ctx, g.cardRef(r), p); err != nil {
		g.logger.Warn("Failed to update review card", "review_id", r.ID, "error", err)
	}
}

func (g *Gate) clearCard(ctx context.Context, r *domain.Review) {
	if err := g.render.ClearActions(ctx, g.cardRef(r)); err != nil {
		g.logger.Debug("Failed to clear review card", "review_id", r.ID, "error", err)
	}
}

func (g *Gate) notify(ctx context.Context, userID int64, text string) {
	if _, err := g.render.Send(ctx, userID, chat.Prompt{Text: text}); err != nil {
		g.logger.Warn("Failed to notify user", "user_id", userID, "error", err)
	}
}

func cardHeader(s Submission) string {
	var title string
	switch s.Kind {
	case domain.ReviewExecutorRegistration:
		title = "🆕 Executor registration"
	case domain.ReviewClientRegistration:
		title = "🆕 Client registration"
	case domain.ReviewExecutorEdit:
		title = "✏️ Executor profile edit"
	case domain.ReviewClientEdit:
		title = "✏️ Client profile edit"
	default:
		title = string(s.Kind)
	}
	who := fmt.Sprintf("id %d", s.SubjectID)
	if s.Username != "" {
		who = "@" + s.Username + ", " + who
	}
	return fmt.Sprintf("%s\n%s", title, who)
}
