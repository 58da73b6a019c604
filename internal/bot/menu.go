package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/session"
	"github.com/ashureev/taskmarket/internal/workflow"
)

// Menu actions under the menu token prefix.
const (
	menuHome     = "home"
	menuRegister = "reg"
	menuProfile  = "profile"
	menuEdit     = "edit"
	menuOrder    = "order"
	menuOrders   = "orders"
)

func menuToken(parts ...string) string {
	return chat.Token(append([]string{chat.PrefixMenu}, parts...)...)
}

func menuButton() chat.Action {
	return chat.Action{Label: "🏠 Menu", Token: menuToken(menuHome)}
}

// fieldLabels names editable fields in the edit picker.
var fieldLabels = map[string]string{
	domain.FieldName:        "Name",
	domain.FieldPhoto:       "Photo",
	domain.FieldAge:         "Age",
	domain.FieldProfession:  "Profession and jobs",
	domain.FieldJobs:        "Jobs",
	domain.FieldDescription: "About",
	domain.FieldRate:        "Rate",
	domain.FieldExperience:  "Experience",
	domain.FieldLinks:       "Portfolio links",
	domain.FieldContacts:    "Contacts",
	domain.FieldLocation:    "Location",
	domain.FieldLanguages:   "Languages",
}

func (b *Bot) showMenu(ctx context.Context, userID int64, notice string) error {
	user, err := b.repo.GetUser(ctx, userID)
	if err != nil {
		b.fail(ctx, userID)
		return fmt.Errorf("get user: %w", err)
	}
	role := domain.RoleNone
	if user != nil {
		role = user.Role
	}

	var text strings.Builder
	if notice != "" {
		text.WriteString(notice + "\n\n")
	}
	p := chat.Prompt{}
	switch role {
	case domain.RoleExecutor:
		text.WriteString("Main menu. Clients will find you by your profile.")
		p = p.Row(chat.Action{Label: "👤 My profile", Token: menuToken(menuProfile)}).
			Row(chat.Action{Label: "✏️ Edit profile", Token: menuToken(menuEdit)})
	case domain.RoleClient:
		text.WriteString("Main menu. Post an order to find an executor.")
		p = p.Row(chat.Action{Label: "📝 New order", Token: menuToken(menuOrder)}).
			Row(chat.Action{Label: "📋 My orders", Token: menuToken(menuOrders)}).
			Row(
				chat.Action{Label: "👤 My profile", Token: menuToken(menuProfile)},
				chat.Action{Label: "✏️ Edit profile", Token: menuToken(menuEdit)},
			)
	default:
		text.WriteString("Welcome to the marketplace! Who are you?")
		p = p.Row(chat.Action{Label: "🛠 I am an executor", Token: menuToken(menuRegister, string(domain.RoleExecutor))}).
			Row(chat.Action{Label: "💼 I am a client", Token: menuToken(menuRegister, string(domain.RoleClient))})
	}
	p.Text = text.String()
	_, err = b.render.Send(ctx, userID, p)
	return err
}

func (b *Bot) onMenu(ctx context.Context, ev chat.Event, parts []string) error {
	if len(parts) == 0 {
		return b.showMenu(ctx, ev.UserID, "")
	}
	switch parts[0] {
	case menuHome:
		return b.showMenu(ctx, ev.UserID, "")
	case menuRegister:
		if len(parts) < 2 {
			return nil
		}
		if err := b.repo.UpsertUser(ctx, &domain.User{UserID: ev.UserID, Username: ev.Username}); err != nil {
			b.fail(ctx, ev.UserID)
			return fmt.Errorf("upsert user: %w", err)
		}
		switch domain.Role(parts[1]) {
		case domain.RoleExecutor:
			return b.start(ctx, ev.UserID, workflow.ExecutorRegistration, nil)
		case domain.RoleClient:
			return b.start(ctx, ev.UserID, workflow.ClientRegistration, nil)
		}
		return nil
	case menuProfile:
		return b.showProfile(ctx, ev.UserID)
	case menuEdit:
		if len(parts) >= 2 {
			return b.startEdit(ctx, ev.UserID, parts[1])
		}
		return b.showEditPicker(ctx, ev.UserID)
	case menuOrder:
		return b.start(ctx, ev.UserID, workflow.CreateOrder, nil)
	case menuOrders:
		return b.showOrders(ctx, ev.UserID)
	}
	return nil
}

func (b *Bot) showEditPicker(ctx context.Context, userID int64) error {
	user, err := b.repo.GetUser(ctx, userID)
	if err != nil {
		b.fail(ctx, userID)
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.HasRole() {
		return b.showMenu(ctx, userID, "You have no profile to edit yet.")
	}

	groups, prefix := workflow.EditableClientFields, workflow.ClientEditPrefix
	if user.Role == domain.RoleExecutor {
		groups, prefix = workflow.EditableExecutorFields, workflow.ExecutorEditPrefix
	}
	p := chat.Prompt{Text: "What would you like to change?"}
	var row []chat.Action
	for _, keys := range groups {
		row = append(row, chat.Action{Label: fieldLabels[keys[0]], Token: menuToken(menuEdit, prefix+keys[0])})
		if len(row) == 2 {
			p = p.Row(row...)
			row = nil
		}
	}
	p = p.Row(row...).Row(menuButton())
	_, err = b.render.Send(ctx, userID, p)
	return err
}

// startEdit starts an edit workflow seeded with the values later steps
// depend on, so multiselects open with the current selection.
func (b *Bot) startEdit(ctx context.Context, userID int64, workflowID string) error {
	def, ok := b.engine.Definition(workflowID)
	if !ok || def.Purpose != workflow.PurposeEdit {
		return nil
	}

	seed := session.Answers{}
	switch def.Subject {
	case string(domain.RoleExecutor):
		p, err := b.repo.GetExecutorProfile(ctx, userID)
		if err != nil {
			b.fail(ctx, userID)
			return fmt.Errorf("get executor profile: %w", err)
		}
		if p != nil && workflowID == workflow.ExecutorEditPrefix+domain.FieldJobs {
			seed[domain.FieldProfession] = []string{formatID(p.ProfessionID)}
			seed[domain.FieldJobs] = formatIDs(p.JobIDs)
		}
	case string(domain.RoleClient):
		p, err := b.repo.GetClientProfile(ctx, userID)
		if err != nil {
			b.fail(ctx, userID)
			return fmt.Errorf("get client profile: %w", err)
		}
		if p != nil && workflowID == workflow.ClientEditPrefix+domain.FieldLanguages {
			seed[domain.FieldLanguages] = formatIDs(p.LanguageIDs)
		}
	}
	return b.start(ctx, userID, workflowID, seed)
}
