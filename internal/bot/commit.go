package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/moderation"
	"github.com/ashureev/taskmarket/internal/workflow"
)

// reviewKind maps a workflow to the review its drafts go through. Orders
// are published without review.
func reviewKind(purpose workflow.Purpose, subject string) (domain.ReviewKind, bool) {
	switch {
	case purpose == workflow.PurposeRegistration && subject == string(domain.RoleExecutor):
		return domain.ReviewExecutorRegistration, true
	case purpose == workflow.PurposeRegistration && subject == string(domain.RoleClient):
		return domain.ReviewClientRegistration, true
	case purpose == workflow.PurposeEdit && subject == string(domain.RoleExecutor):
		return domain.ReviewExecutorEdit, true
	case purpose == workflow.PurposeEdit && subject == string(domain.RoleClient):
		return domain.ReviewClientEdit, true
	}
	return "", false
}

// admit decides whether the user may start the workflow.
func (b *Bot) admit(ctx context.Context, userID int64, def *workflow.Definition) error {
	user, err := b.repo.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	role := domain.RoleNone
	if user != nil {
		role = user.Role
	}

	switch def.Purpose {
	case workflow.PurposeOrder:
		if role != domain.RoleClient {
			return errNotVerifiedClient
		}
		p, err := b.repo.GetClientProfile(ctx, userID)
		if err != nil {
			return fmt.Errorf("get client profile: %w", err)
		}
		if p == nil || !p.Verified {
			return errNotVerifiedClient
		}
		return nil
	case workflow.PurposeRegistration:
		if role != domain.RoleNone {
			return errAlreadyRegistered
		}
	case workflow.PurposeEdit:
		if string(role) != def.Subject {
			return errNoProfile
		}
	}

	kind, ok := reviewKind(def.Purpose, def.Subject)
	if !ok {
		return fmt.Errorf("workflow %s has no review kind", def.ID)
	}
	return b.mod.Admit(ctx, userID, kind)
}

// Commit persists a completed draft.
func (b *Bot) Commit(ctx context.Context, d workflow.Draft) error {
	if d.Purpose == workflow.PurposeOrder {
		return b.commitOrder(ctx, d)
	}

	kind, ok := reviewKind(d.Purpose, d.Subject)
	if !ok {
		return fmt.Errorf("no review kind for workflow %s", d.Workflow)
	}

	sub := moderation.Submission{SubjectID: d.UserID, Kind: kind}
	if user, err := b.repo.GetUser(ctx, d.UserID); err == nil && user != nil {
		sub.Username = user.Username
	}

	var err error
	switch kind {
	case domain.ReviewExecutorRegistration:
		err = b.createExecutor(ctx, d)
	case domain.ReviewClientRegistration:
		err = b.createClient(ctx, d)
	default:
		sub.Fields = d.Fields
		sub.Payload, err = b.editPayload(ctx, d)
	}
	if err != nil {
		return err
	}

	if sub.Summary, err = b.engine.Summary(ctx, d); err != nil {
		return fmt.Errorf("summarize draft: %w", err)
	}
	if _, err := b.mod.Submit(ctx, sub); err != nil {
		if !kind.IsEdit() {
			b.discardRegistration(ctx, d.UserID, kind)
		}
		return fmt.Errorf("submit for review: %w", err)
	}

	text := "Thank you! Your profile was sent to the moderators. We will let you know their decision."
	if kind.IsEdit() {
		text = "Thank you! Your changes were sent to the moderators and will appear once approved."
	}
	b.notify(ctx, d.UserID, text)
	return nil
}

// discardRegistration backs out a profile that never reached a moderator so
// it cannot be verified through a later edit.
func (b *Bot) discardRegistration(ctx context.Context, userID int64, kind domain.ReviewKind) {
	removed, err := b.repo.DiscardProfile(ctx, userID, kind.Subject())
	if err != nil {
		b.logger.Error("Failed to discard unreviewed profile", "user_id", userID, "kind", kind, "error", err)
		return
	}
	if removed {
		b.logger.Info("Discarded unreviewed profile", "user_id", userID, "kind", kind)
	}
}

func (b *Bot) createExecutor(ctx context.Context, d workflow.Draft) error {
	a := d.Answers
	photo, err := b.files.Fetch(ctx, d.UserID, a.Get(domain.FieldPhoto), "photo.jpg")
	if err != nil {
		return fmt.Errorf("fetch photo: %w", err)
	}
	profession, err := strconv.ParseInt(a.Get(domain.FieldProfession), 10, 64)
	if err != nil {
		return fmt.Errorf("profession: %w", err)
	}
	jobs, err := parseIDs(a[domain.FieldJobs])
	if err != nil {
		return fmt.Errorf("jobs: %w", err)
	}

	p := &domain.ExecutorProfile{
		UserID:       d.UserID,
		Name:         a.Get(domain.FieldName),
		PhotoPath:    photo,
		Age:          a.Int(domain.FieldAge),
		ProfessionID: profession,
		JobIDs:       jobs,
		Description:  a.Get(domain.FieldDescription),
		Rate:         a.Get(domain.FieldRate),
		Experience:   a.Get(domain.FieldExperience),
		Links:        a[domain.FieldLinks],
		Contacts:     a.Get(domain.FieldContacts),
		Location:     a.Get(domain.FieldLocation),
	}
	if err := b.repo.CreateExecutorProfile(ctx, p); err != nil {
		return fmt.Errorf("create executor profile: %w", err)
	}
	return nil
}

func (b *Bot) createClient(ctx context.Context, d workflow.Draft) error {
	a := d.Answers
	langs, err := parseIDs(a[domain.FieldLanguages])
	if err != nil {
		return fmt.Errorf("languages: %w", err)
	}
	p := &domain.ClientProfile{
		UserID:      d.UserID,
		ClientType:  a.Get(domain.FieldClientType),
		CompanyName: a.Get(domain.FieldCompanyName),
		Name:        a.Get(domain.FieldName),
		LanguageIDs: langs,
		Description: a.Get(domain.FieldDescription),
		Contacts:    a.Get(domain.FieldContacts),
	}
	if err := b.repo.CreateClientProfile(ctx, p); err != nil {
		return fmt.Errorf("create client profile: %w", err)
	}
	return nil
}

// editPayload collects the edited fields. Skipped optional fields are sent
// as empty values so approval clears them. A new photo is stored under a
// separate name so the approved one stays until the edit is approved.
func (b *Bot) editPayload(ctx context.Context, d workflow.Draft) (map[string][]string, error) {
	payload := make(map[string][]string, len(d.Fields))
	for _, key := range d.Fields {
		values := d.Answers[key]
		if key == domain.FieldPhoto && len(values) > 0 {
			name := fmt.Sprintf("photo-%d.jpg", d.CompletedAt.Unix())
			path, err := b.files.Fetch(ctx, d.UserID, values[0], name)
			if err != nil {
				return nil, fmt.Errorf("fetch photo: %w", err)
			}
			values = []string{path}
		}
		if values == nil {
			values = []string{}
		}
		payload[key] = values
	}
	return payload, nil
}

func (b *Bot) commitOrder(ctx context.Context, d workflow.Draft) error {
	a := d.Answers
	budget, err := strconv.ParseInt(a.Get(domain.FieldBudget), 10, 64)
	if err != nil {
		return fmt.Errorf("budget: %w", err)
	}
	jobs, err := parseIDs(a[domain.FieldJobs])
	if err != nil {
		return fmt.Errorf("jobs: %w", err)
	}

	var paths []string
	for i, fileID := range a[domain.FieldFiles] {
		name := fmt.Sprintf("order-%d-%d", d.CompletedAt.Unix(), i+1)
		path, err := b.files.Fetch(ctx, d.UserID, fileID, name)
		if err != nil {
			return fmt.Errorf("fetch order file: %w", err)
		}
		paths = append(paths, path)
	}

	o := &domain.Order{
		ClientID:     d.UserID,
		Title:        a.Get(domain.FieldTitle),
		Description:  a.Get(domain.FieldDescription),
		JobIDs:       jobs,
		Budget:       budget,
		DeadlineDays: a.Int(domain.FieldDeadline),
		Files:        paths,
		CreatedAt:    d.CompletedAt,
	}
	id, err := b.repo.CreateOrder(ctx, o)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	b.logger.Info("Order created", "user_id", d.UserID, "order_id", id)
	b.notify(ctx, d.UserID, fmt.Sprintf("Your order #%d has been published.", id))
	return nil
}

func (b *Bot) notify(ctx context.Context, userID int64, text string) {
	if _, err := b.render.Send(ctx, userID, chat.Prompt{Text: text}.Row(menuButton())); err != nil {
		b.logger.Warn("Failed to notify user", "error", err, "user_id", userID)
	}
}
