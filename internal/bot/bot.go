// Package bot routes chat events to the workflow engine, the moderation
// gate and the main menu, and persists completed workflows.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/moderation"
	"github.com/ashureev/taskmarket/internal/session"
	"github.com/ashureev/taskmarket/internal/workflow"
)

// Repository is the storage the bot needs.
type Repository interface {
	UpsertUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	CreateExecutorProfile(ctx context.Context, p *domain.ExecutorProfile) error
	CreateClientProfile(ctx context.Context, p *domain.ClientProfile) error
	DiscardProfile(ctx context.Context, userID int64, subject string) (bool, error)
	GetExecutorProfile(ctx context.Context, userID int64) (*domain.ExecutorProfile, error)
	GetClientProfile(ctx context.Context, userID int64) (*domain.ClientProfile, error)
	CreateOrder(ctx context.Context, o *domain.Order) (int64, error)
	ListOrders(ctx context.Context, clientID int64) ([]*domain.Order, error)
	ListProfessions(ctx context.Context) ([]domain.Profession, error)
	ListJobs(ctx context.Context, professionID int64) ([]domain.Job, error)
	ListLanguages(ctx context.Context) ([]domain.Language, error)
}

// Moderation is the review gate.
type Moderation interface {
	Submit(ctx context.Context, s moderation.Submission) (*domain.Review, error)
	Admit(ctx context.Context, userID int64, kind domain.ReviewKind) error
	HandleAction(ctx context.Context, moderatorID int64, token string) (string, error)
}

// Fetcher stores uploaded files locally.
type Fetcher interface {
	Fetch(ctx context.Context, subjectID int64, fileID, name string) (string, error)
}

// CallbackAnswerer acknowledges button presses.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Config wires the bot's collaborators.
type Config struct {
	Sessions   session.Store
	Renderer   chat.Renderer
	Callbacks  CallbackAnswerer
	Repo       Repository
	Moderation Moderation
	Files      Fetcher
	Now        func() time.Time
}

// Bot is the chat front end.
type Bot struct {
	engine    *workflow.Engine
	render    chat.Renderer
	callbacks CallbackAnswerer
	repo      Repository
	mod       Moderation
	files     Fetcher
	catalog   *Catalog
	now       func() time.Time
	logger    *slog.Logger
}

// New creates the bot and its workflow engine.
func New(cfg Config, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Bot{
		render:    cfg.Renderer,
		callbacks: cfg.Callbacks,
		repo:      cfg.Repo,
		mod:       cfg.Moderation,
		files:     cfg.Files,
		catalog:   NewCatalog(cfg.Repo),
		now:       cfg.Now,
		logger:    logger.With("module", "bot"),
	}

	defs, err := workflow.Definitions(b.catalog)
	if err != nil {
		return nil, err
	}
	b.engine, err = workflow.NewEngine(workflow.EngineConfig{
		Store:     cfg.Sessions,
		Renderer:  cfg.Renderer,
		Committer: b,
		Workflows: defs,
		Admit:     b.admit,
		OnCancel:  b.onCancel,
		Now:       cfg.Now,

		FailureActions: []chat.Action{menuButton()},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create workflow engine: %w", err)
	}
	return b, nil
}

// Engine exposes the workflow engine.
func (b *Bot) Engine() *workflow.Engine {
	return b.engine
}

// HandleEvent processes one inbound event. Failures are logged; the user
// has already been shown a generic message where one applies.
func (b *Bot) HandleEvent(ctx context.Context, ev chat.Event) {
	if err := b.handle(ctx, ev); err != nil {
		b.logger.Error("Event handling failed", "error", err, "user_id", ev.UserID, "input", fmt.Sprintf("%T", ev.Input))
	}
}

func (b *Bot) handle(ctx context.Context, ev chat.Event) error {
	switch in := ev.Input.(type) {
	case chat.ActionInput:
		return b.onAction(ctx, ev, in)
	case chat.TextInput:
		if !ev.Private() {
			return nil
		}
		if cmd, ok := command(in.Text); ok {
			return b.onCommand(ctx, ev, cmd)
		}
	case chat.FileInput:
		if !ev.Private() {
			return nil
		}
	default:
		return fmt.Errorf("unsupported input %T", in)
	}

	handled, err := b.engine.Handle(ctx, ev.UserID, ev.Input)
	if err != nil || handled {
		return err
	}
	return b.showMenu(ctx, ev.UserID, "")
}

func (b *Bot) onAction(ctx context.Context, ev chat.Event, in chat.ActionInput) error {
	var notice string
	defer func() {
		if err := b.callbacks.AnswerCallback(ctx, ev.CallbackID, notice); err != nil {
			b.logger.Debug("Failed to answer callback", "error", err, "user_id", ev.UserID)
		}
	}()

	prefix, parts := chat.SplitToken(in.Token)
	switch prefix {
	case chat.PrefixModeration:
		var err error
		notice, err = b.mod.HandleAction(ctx, ev.UserID, in.Token)
		if err != nil {
			notice = workflow.MsgGenericFailure
		}
		return err
	case chat.PrefixMenu:
		if !ev.Private() {
			return nil
		}
		return b.onMenu(ctx, ev, parts)
	case chat.PrefixWorkflow:
		handled, err := b.engine.Handle(ctx, ev.UserID, in)
		if err == nil && !handled {
			notice = "This form is no longer active."
		}
		return err
	}
	return nil
}

func (b *Bot) onCommand(ctx context.Context, ev chat.Event, cmd string) error {
	switch cmd {
	case "start", "menu":
		if err := b.repo.UpsertUser(ctx, &domain.User{UserID: ev.UserID, Username: ev.Username}); err != nil {
			b.fail(ctx, ev.UserID)
			return fmt.Errorf("upsert user: %w", err)
		}
		cancelled, err := b.engine.Cancel(ctx, ev.UserID)
		if err != nil {
			b.logger.Warn("Failed to drop session on menu", "error", err, "user_id", ev.UserID)
		}
		if cancelled && err == nil {
			// The cancel hook has shown the menu.
			return nil
		}
		return b.showMenu(ctx, ev.UserID, "")
	case "cancel":
		cancelled, err := b.engine.Cancel(ctx, ev.UserID)
		if err != nil || cancelled {
			return err
		}
		return b.showMenu(ctx, ev.UserID, "Nothing to cancel.")
	}
	_, err := b.render.Send(ctx, ev.UserID, chat.Prompt{Text: "Unknown command. Send /start to open the menu."})
	return err
}

func (b *Bot) onCancel(ctx context.Context, userID int64) error {
	return b.showMenu(ctx, userID, workflow.MsgCancelled)
}

// start begins a workflow, explaining refusals to the user.
func (b *Bot) start(ctx context.Context, userID int64, workflowID string, seed session.Answers) error {
	err := b.engine.Start(ctx, userID, workflowID, seed)
	if err == nil {
		return nil
	}
	if text, ok := refusalMessage(err); ok {
		_, sendErr := b.render.Send(ctx, userID, chat.Prompt{Text: text}.Row(menuButton()))
		return sendErr
	}
	b.fail(ctx, userID)
	return fmt.Errorf("start %s: %w", workflowID, err)
}

// fail shows the generic apology with a way back to the menu.
func (b *Bot) fail(ctx context.Context, userID int64) {
	if _, err := b.render.Send(ctx, userID, chat.Prompt{Text: workflow.MsgGenericFailure}.Row(menuButton())); err != nil {
		b.logger.Warn("Failed to notify user", "error", err, "user_id", userID)
	}
}

var (
	errAlreadyRegistered = errors.New("already registered")
	errNoProfile         = errors.New("no profile")
	errNotVerifiedClient = errors.New("not a verified client")
)

func refusalMessage(err error) (string, bool) {
	if text, ok := moderation.AdmissionMessage(err); ok {
		return text, true
	}
	switch {
	case errors.Is(err, errAlreadyRegistered):
		return "You are already registered.", true
	case errors.Is(err, errNoProfile):
		return "You have no profile to edit yet.", true
	case errors.Is(err, errNotVerifiedClient):
		return "Only clients with an approved profile can post orders.", true
	}
	return "", false
}

// command extracts a bot command name from text such as "/start" or
// "/start@market_bot payload".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(name[0], "@")
	return strings.ToLower(cmd), true
}
