package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/fields"
	"github.com/ashureev/taskmarket/internal/multiselect"
	"github.com/ashureev/taskmarket/internal/session"
)

const lockStripes = 64

// Draft is the collected output of a completed workflow run.
type Draft struct {
	UserID   int64
	Workflow string
	Purpose  Purpose
	Subject  string
	// Fields lists the keys the workflow collects; skipped optional keys are
	// absent from Answers.
	Fields      []string
	Answers     session.Answers
	CompletedAt time.Time
}

// Committer persists a completed draft.
type Committer interface {
	Commit(ctx context.Context, d Draft) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, d Draft) error

// Commit calls f.
func (f CommitFunc) Commit(ctx context.Context, d Draft) error {
	return f(ctx, d)
}

// AdmitFunc decides whether a user may start a workflow. A non-nil error
// refuses the start and no session is created.
type AdmitFunc func(ctx context.Context, userID int64, def *Definition) error

// CancelFunc is called after a session is cancelled, outside the user's lock.
type CancelFunc func(ctx context.Context, userID int64) error

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store     session.Store
	Renderer  chat.Renderer
	Committer Committer
	Workflows []*Definition
	Admit     AdmitFunc
	OnCancel  CancelFunc
	Now       func() time.Time

	// FailureActions are attached to the generic failure message, typically
	// a way back to the main menu.
	FailureActions []chat.Action
}

// Engine walks users through workflows. Inputs of one user are processed
// one at a time; different users proceed independently.
type Engine struct {
	store    session.Store
	render   chat.Renderer
	commit   Committer
	defs     map[string]*Definition
	admit    AdmitFunc
	onCancel CancelFunc
	failRow  []chat.Action
	now      func() time.Time
	logger   *slog.Logger
	locks    [lockStripes]sync.Mutex
}

// NewEngine creates an engine over the given workflows.
func NewEngine(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if cfg.Store == nil || cfg.Renderer == nil || cfg.Committer == nil {
		return nil, fmt.Errorf("workflow engine requires a store, a renderer and a committer")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	defs := make(map[string]*Definition, len(cfg.Workflows))
	for _, d := range cfg.Workflows {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate workflow %s", d.ID)
		}
		defs[d.ID] = d
	}

	return &Engine{
		store:    cfg.Store,
		render:   cfg.Renderer,
		commit:   cfg.Committer,
		defs:     defs,
		admit:    cfg.Admit,
		onCancel: cfg.OnCancel,
		failRow:  slices.Clone(cfg.FailureActions),
		now:      cfg.Now,
		logger:   logger.With("module", "workflow"),
	}, nil
}

// Definition returns a registered workflow.
func (e *Engine) Definition(id string) (*Definition, bool) {
	d, ok := e.defs[id]
	return d, ok
}

func (e *Engine) lock(userID int64) func() {
	m := &e.locks[uint64(userID)%lockStripes]
	m.Lock()
	return m.Unlock
}

// Start begins workflowID for the user, replacing any session in progress.
// seed pre-fills answers a workflow depends on, such as the profession of an
// executor editing their jobs. Admission errors are returned unchanged.
func (e *Engine) Start(ctx context.Context, userID int64, workflowID string, seed session.Answers) error {
	def, ok := e.defs[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	unlock := e.lock(userID)
	defer unlock()

	if e.admit != nil {
		if err := e.admit(ctx, userID, def); err != nil {
			return err
		}
	}

	prev, err := e.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if prev != nil {
		e.retract(ctx, prev.LastPrompt)
	}

	now := e.now()
	s := &session.Session{
		UserID:    userID,
		Workflow:  def.ID,
		Answers:   seed.Clone(),
		StartedAt: now,
		UpdatedAt: now,
	}
	if s.Answers == nil {
		s.Answers = session.Answers{}
	}

	first := &def.Steps[0]
	e.enter(s, first)
	if err := e.show(ctx, def, first, s, "", false); err != nil {
		return fmt.Errorf("render first step: %w", err)
	}
	if err := e.store.Put(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	e.logger.Info("Workflow started", "user_id", userID, "workflow", def.ID)
	return nil
}

// Summary renders a draft's answers the way its confirm step shows them.
func (e *Engine) Summary(ctx context.Context, d Draft) (string, error) {
	def, ok := e.defs[d.Workflow]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, d.Workflow)
	}
	return e.summary(ctx, def, &session.Session{Answers: d.Answers})
}

// Active returns the user's session in progress, or nil.
func (e *Engine) Active(ctx context.Context, userID int64) (*session.Session, error) {
	return e.store.Get(ctx, userID)
}

// Cancel discards the user's session. It reports whether there was one.
func (e *Engine) Cancel(ctx context.Context, userID int64) (bool, error) {
	unlock := e.lock(userID)
	s, err := e.store.Get(ctx, userID)
	if err != nil {
		unlock()
		return false, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		unlock()
		return false, nil
	}
	err = e.discard(ctx, s)
	unlock()
	if err != nil {
		return true, err
	}
	return true, e.cancelled(ctx, userID)
}

// Handle feeds one input to the user's session. It reports whether the
// user had a session. Collaborator failures are shown to the user as a
// generic apology before being returned for logging.
func (e *Engine) Handle(ctx context.Context, userID int64, in chat.Input) (bool, error) {
	handled, cancelled, err := e.handle(ctx, userID, in)
	if cancelled && err == nil {
		err = e.cancelled(ctx, userID)
	}
	return handled, err
}

func (e *Engine) handle(ctx context.Context, userID int64, in chat.Input) (handled, cancelled bool, err error) {
	unlock := e.lock(userID)
	defer unlock()

	s, err := e.store.Get(ctx, userID)
	if err != nil {
		return false, false, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return false, false, nil
	}

	def, ok := e.defs[s.Workflow]
	var step *Step
	if ok {
		step, ok = def.Step(s.Step)
	}
	if !ok {
		e.logger.Warn("Dropping session for unknown workflow step", "user_id", userID, "workflow", s.Workflow, "step", s.Step)
		return false, false, e.store.Delete(ctx, userID)
	}

	switch in := in.(type) {
	case chat.TextInput:
		err = e.onText(ctx, def, step, s, in)
	case chat.FileInput:
		err = e.onFile(ctx, def, step, s, in)
	case chat.ActionInput:
		verb, arg, ok := parseAction(in.Token)
		if !ok {
			return false, false, nil
		}
		if verb == ActCancel {
			return true, true, e.discard(ctx, s)
		}
		err = e.onAction(ctx, def, step, s, verb, arg)
	default:
		return false, false, fmt.Errorf("unsupported input %T", in)
	}
	return true, false, err
}

func parseAction(token string) (verb, arg string, ok bool) {
	prefix, parts := chat.SplitToken(token)
	if prefix != chat.PrefixWorkflow || len(parts) == 0 {
		return "", "", false
	}
	return parts[0], strings.Join(parts[1:], ":"), true
}

func (e *Engine) onText(ctx context.Context, def *Definition, step *Step, s *session.Session, in chat.TextInput) error {
	switch step.Kind {
	case KindText:
		v, err := step.Validate(in.Text)
		if err != nil {
			return e.reject(ctx, def, step, s, err, false)
		}
		s.Answers[step.Key] = []string{v}
		return e.advance(ctx, def, step, s)
	case KindList:
		if step.AcceptFiles {
			return e.reject(ctx, def, step, s, fields.ErrWrongInputKind, false)
		}
		v, err := step.Validate(in.Text)
		if err != nil {
			return e.reject(ctx, def, step, s, err, false)
		}
		return e.appendItem(ctx, def, step, s, v)
	case KindFile:
		return e.reject(ctx, def, step, s, fields.ErrWrongInputKind, false)
	default:
		return e.reject(ctx, def, step, s, errUseButtons, false)
	}
}

func (e *Engine) onFile(ctx context.Context, def *Definition, step *Step, s *session.Session, in chat.FileInput) error {
	switch step.Kind {
	case KindFile:
		if !in.Photo && !strings.HasPrefix(in.MIMEType, "image/") {
			return e.reject(ctx, def, step, s, fields.ErrWrongInputKind, false)
		}
		s.Answers[step.Key] = []string{in.FileID}
		return e.advance(ctx, def, step, s)
	case KindList:
		if !step.AcceptFiles {
			return e.reject(ctx, def, step, s, fields.ErrWrongInputKind, false)
		}
		return e.appendItem(ctx, def, step, s, in.FileID)
	case KindText:
		return e.reject(ctx, def, step, s, fields.ErrWrongInputKind, false)
	default:
		return e.reject(ctx, def, step, s, errUseButtons, false)
	}
}

func (e *Engine) onAction(ctx context.Context, def *Definition, step *Step, s *session.Session, verb, arg string) error {
	switch {
	case verb == ActSkip && step.Optional:
		delete(s.Answers, step.Key)
		s.Pending = nil
		return e.advance(ctx, def, step, s)

	case verb == ActOption && step.Kind == KindChoice:
		known, err := e.hasOption(ctx, step, s, arg)
		if err != nil {
			return e.fail(ctx, s, err)
		}
		if !known {
			return e.reject(ctx, def, step, s, errUnknownOption, true)
		}
		s.Answers[step.Key] = []string{arg}
		return e.advance(ctx, def, step, s)

	case verb == ActToggle && step.Kind == KindMulti:
		known, err := e.hasOption(ctx, step, s, arg)
		if err != nil {
			return e.fail(ctx, s, err)
		}
		if !known {
			return e.reject(ctx, def, step, s, errUnknownOption, true)
		}
		s.Pending = multiselect.Toggle(s.Pending, arg, step.MaxSelections)
		if err := e.show(ctx, def, step, s, "", true); err != nil {
			return e.fail(ctx, s, err)
		}
		return e.save(ctx, s)

	case verb == ActOK && step.Kind == KindMulti:
		if len(s.Pending) == 0 {
			return e.reject(ctx, def, step, s, errNothingSelected, true)
		}
		s.Answers[step.Key] = slices.Clone(s.Pending)
		return e.advance(ctx, def, step, s)

	case verb == ActDone && step.Kind == KindList:
		if len(s.Pending) == 0 {
			return e.reject(ctx, def, step, s, errNothingAdded, true)
		}
		s.Answers[step.Key] = slices.Clone(s.Pending)
		return e.advance(ctx, def, step, s)

	case verb == ActSubmit && step.Kind == KindConfirm:
		return e.submit(ctx, def, s)

	default:
		// Stale button from an earlier prompt.
		e.logger.Debug("Ignoring action for current step", "user_id", s.UserID, "step", step.Key, "verb", verb)
		return nil
	}
}

func (e *Engine) hasOption(ctx context.Context, step *Step, s *session.Session, id string) (bool, error) {
	opts, err := step.Options(ctx, s.Answers)
	if err != nil {
		return false, fmt.Errorf("list options for %s: %w", step.Key, err)
	}
	return slices.ContainsFunc(opts, func(o Option) bool { return o.ID == id }), nil
}

// enter prepares the accumulator for a step. Multiselects start from the
// current answer so edits show existing selections.
func (e *Engine) enter(s *session.Session, step *Step) {
	s.Step = step.Key
	s.Pending = nil
	if step.Kind == KindMulti {
		s.Pending = slices.Clone(s.Answers[step.Key])
	}
}

func (e *Engine) advance(ctx context.Context, def *Definition, step *Step, s *session.Session) error {
	key, err := def.next(step.Key, s.Answers)
	if err != nil {
		return e.fail(ctx, s, err)
	}
	next, _ := def.Step(key)

	e.enter(s, next)
	if err := e.show(ctx, def, next, s, "", false); err != nil {
		return e.fail(ctx, s, err)
	}
	return e.save(ctx, s)
}

func (e *Engine) appendItem(ctx context.Context, def *Definition, step *Step, s *session.Session, item string) error {
	if step.MaxItems > 0 && len(s.Pending) >= step.MaxItems {
		return e.reject(ctx, def, step, s, errListFull, false)
	}
	s.Pending = append(s.Pending, item)
	if err := e.show(ctx, def, step, s, fmt.Sprintf("Added. %d so far.", len(s.Pending)), false); err != nil {
		return e.fail(ctx, s, err)
	}
	return e.save(ctx, s)
}

// reject re-renders the current step with an explanation. Answers and the
// accumulator are left untouched.
func (e *Engine) reject(ctx context.Context, def *Definition, step *Step, s *session.Session, cause error, inPlace bool) error {
	msg := stepErrorMessage(cause)
	if msg == "" {
		msg = fields.Message(cause)
	}
	e.logger.Debug("Step input rejected", "user_id", s.UserID, "workflow", def.ID, "step", step.Key, "reason", cause)

	if err := e.show(ctx, def, step, s, "⚠️ "+msg, inPlace); err != nil {
		return e.fail(ctx, s, err)
	}
	return e.save(ctx, s)
}

func (e *Engine) submit(ctx context.Context, def *Definition, s *session.Session) error {
	draft := Draft{
		UserID:      s.UserID,
		Workflow:    def.ID,
		Purpose:     def.Purpose,
		Subject:     def.Subject,
		Fields:      def.Fields(),
		Answers:     s.Answers.Clone(),
		CompletedAt: e.now(),
	}

	if err := e.commit.Commit(ctx, draft); err != nil {
		e.logger.Error("Workflow commit failed", "error", err, "user_id", s.UserID, "workflow", def.ID, "keep_session", def.KeepOnCommitFailure)
		if def.KeepOnCommitFailure {
			// The confirm prompt keeps its submit button for a retry.
			e.apologize(ctx, s.UserID)
			if saveErr := e.save(ctx, s); saveErr != nil {
				return saveErr
			}
			return err
		}
		if delErr := e.discard(ctx, s); delErr != nil {
			e.logger.Error("Failed to drop session after commit failure", "error", delErr, "user_id", s.UserID)
		}
		e.apologize(ctx, s.UserID)
		return err
	}

	if err := e.store.Delete(ctx, s.UserID); err != nil {
		return fmt.Errorf("delete completed session: %w", err)
	}
	e.retract(ctx, s.LastPrompt)
	e.logger.Info("Workflow completed", "user_id", s.UserID, "workflow", def.ID, "fields", len(draft.Answers))
	return nil
}

// fail reports a collaborator failure to the user. The stored session is not
// touched, so the user can repeat the last input.
func (e *Engine) fail(ctx context.Context, s *session.Session, cause error) error {
	e.apologize(ctx, s.UserID)
	return cause
}

func (e *Engine) discard(ctx context.Context, s *session.Session) error {
	if err := e.store.Delete(ctx, s.UserID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.retract(ctx, s.LastPrompt)
	e.logger.Info("Workflow cancelled", "user_id", s.UserID, "workflow", s.Workflow, "step", s.Step)
	return nil
}

func (e *Engine) cancelled(ctx context.Context, userID int64) error {
	if e.onCancel == nil {
		e.notify(ctx, userID, MsgCancelled)
		return nil
	}
	return e.onCancel(ctx, userID)
}

func (e *Engine) save(ctx context.Context, s *session.Session) error {
	s.UpdatedAt = e.now()
	if err := e.store.Put(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, userID int64, text string) {
	if _, err := e.render.Send(ctx, userID, chat.Prompt{Text: text}); err != nil {
		e.logger.Warn("Failed to notify user", "error", err, "user_id", userID)
	}
}

// apologize sends the generic failure text with the configured way out.
func (e *Engine) apologize(ctx context.Context, userID int64) {
	p := chat.Prompt{Text: MsgGenericFailure}
	if len(e.failRow) > 0 {
		p = p.Row(e.failRow...)
	}
	if _, err := e.render.Send(ctx, userID, p); err != nil {
		e.logger.Warn("Failed to notify user", "error", err, "user_id", userID)
	}
}

func (e *Engine) retract(ctx context.Context, ref chat.MessageRef) {
	if ref.IsZero() {
		return
	}
	if err := e.render.ClearActions(ctx, ref); err != nil {
		e.logger.Debug("Failed to clear prompt actions", "error", err, "message_id", ref.MessageID)
	}
}

// show renders the step prompt, either replacing the previous prompt in
// place or as a new message, and records the reference.
func (e *Engine) show(ctx context.Context, def *Definition, step *Step, s *session.Session, notice string, inPlace bool) error {
	p, err := e.prompt(ctx, def, step, s, notice)
	if err != nil {
		return err
	}

	if inPlace && !s.LastPrompt.IsZero() {
		ref, err := e.render.Edit(ctx, s.LastPrompt, p)
		if err == nil {
			s.LastPrompt = ref
			return nil
		}
		e.logger.Debug("Edit in place failed, sending new prompt", "error", err, "user_id", s.UserID)
	}

	e.retract(ctx, s.LastPrompt)
	ref, err := e.render.Send(ctx, s.UserID, p)
	if err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}
	s.LastPrompt = ref
	return nil
}

func workflowToken(parts ...string) string {
	return chat.Token(append([]string{chat.PrefixWorkflow}, parts...)...)
}

func (e *Engine) prompt(ctx context.Context, def *Definition, step *Step, s *session.Session, notice string) (chat.Prompt, error) {
	var b strings.Builder
	if notice != "" {
		b.WriteString(notice)
		b.WriteString("\n\n")
	}

	var p chat.Prompt
	switch step.Kind {
	case KindChoice:
		b.WriteString(step.Prompt)
		opts, err := step.Options(ctx, s.Answers)
		if err != nil {
			return p, fmt.Errorf("list options for %s: %w", step.Key, err)
		}
		for _, o := range opts {
			p = p.Row(chat.Action{Label: o.Label, Token: workflowToken(ActOption, o.ID)})
		}
	case KindMulti:
		b.WriteString(step.Prompt)
		opts, err := step.Options(ctx, s.Answers)
		if err != nil {
			return p, fmt.Errorf("list options for %s: %w", step.Key, err)
		}
		if step.MaxSelections > 0 {
			fmt.Fprintf(&b, "\n\nSelected: %d of %d", len(s.Pending), step.MaxSelections)
		}
		p.Rows = multiselect.Render(opts, s.Pending, multiselect.View{
			ToggleToken:  func(id string) string { return workflowToken(ActToggle, id) },
			ConfirmLabel: labelDone,
			ConfirmToken: workflowToken(ActOK),
		})
	case KindList:
		b.WriteString(step.Prompt)
		if len(s.Pending) > 0 && !step.AcceptFiles {
			b.WriteString("\n\nAdded so far:\n" + strings.Join(s.Pending, "\n"))
		}
		p = p.Row(chat.Action{Label: labelDone, Token: workflowToken(ActDone)})
	case KindConfirm:
		summary, err := e.summary(ctx, def, s)
		if err != nil {
			return p, err
		}
		b.WriteString(summary)
		b.WriteString("\n\n")
		b.WriteString(step.Prompt)
		p = p.Row(chat.Action{Label: labelSubmit, Token: workflowToken(ActSubmit)})
	default:
		b.WriteString(step.Prompt)
	}

	if step.Optional {
		p = p.Row(chat.Action{Label: labelSkip, Token: workflowToken(ActSkip)})
	}
	p = p.Row(chat.Action{Label: labelCancel, Token: workflowToken(ActCancel)})
	p.Text = b.String()
	return p, nil
}

// summary lists the collected answers in step order.
func (e *Engine) summary(ctx context.Context, def *Definition, s *session.Session) (string, error) {
	var lines []string
	for i := range def.Steps {
		step := &def.Steps[i]
		values, ok := s.Answers[step.Key]
		if !ok || step.Kind == KindConfirm {
			continue
		}

		var value string
		switch step.Kind {
		case KindChoice, KindMulti:
			opts, err := step.Options(ctx, s.Answers)
			if err != nil {
				return "", fmt.Errorf("list options for %s: %w", step.Key, err)
			}
			value = strings.Join(multiselect.Labels(values, opts), ", ")
		case KindFile:
			value = "attached"
		case KindList:
			if step.AcceptFiles {
				value = fmt.Sprintf("%d file(s)", len(values))
			} else {
				value = strings.Join(values, ", ")
			}
		default:
			value = strings.Join(values, " ")
		}
		lines = append(lines, step.Title+": "+value)
	}
	return strings.Join(lines, "\n"), nil
}
