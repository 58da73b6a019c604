package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
)

func (b *Bot) showProfile(ctx context.Context, userID int64) error {
	user, err := b.repo.GetUser(ctx, userID)
	if err != nil {
		b.fail(ctx, userID)
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.HasRole() {
		return b.showMenu(ctx, userID, "You have not registered yet.")
	}

	var text string
	switch user.Role {
	case domain.RoleExecutor:
		text, err = b.executorCard(ctx, userID)
	case domain.RoleClient:
		text, err = b.clientCard(ctx, userID)
	}
	if err != nil {
		b.fail(ctx, userID)
		return err
	}
	_, err = b.render.Send(ctx, userID, chat.Prompt{Text: text}.Row(menuButton()))
	return err
}

func (b *Bot) executorCard(ctx context.Context, userID int64) (string, error) {
	p, err := b.repo.GetExecutorProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get executor profile: %w", err)
	}
	if p == nil {
		return "Your profile was not found.", nil
	}
	profs, err := b.catalog.Professions(ctx)
	if err != nil {
		return "", err
	}
	jobs, err := b.catalog.AllJobs(ctx)
	if err != nil {
		return "", err
	}

	lines := []string{
		"👤 " + p.Name + status(p.Verified),
		fmt.Sprintf("Age: %d", p.Age),
		"Profession: " + labelOf(profs, formatID(p.ProfessionID)),
		"Jobs: " + labelsOf(jobs, formatIDs(p.JobIDs)),
		"Rate: " + p.Rate,
		"Experience: " + p.Experience,
		"About: " + p.Description,
	}
	if len(p.Links) > 0 {
		lines = append(lines, "Portfolio: "+strings.Join(p.Links, ", "))
	}
	if p.Contacts != "" {
		lines = append(lines, "Contacts: "+p.Contacts)
	}
	if p.Location != "" {
		lines = append(lines, "Location: "+p.Location)
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) clientCard(ctx context.Context, userID int64) (string, error) {
	p, err := b.repo.GetClientProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get client profile: %w", err)
	}
	if p == nil {
		return "Your profile was not found.", nil
	}
	langs, err := b.catalog.Languages(ctx)
	if err != nil {
		return "", err
	}

	lines := []string{"💼 " + p.Name + status(p.Verified)}
	if p.CompanyName != "" {
		lines = append(lines, "Company: "+p.CompanyName)
	}
	lines = append(lines, "Languages: "+labelsOf(langs, formatIDs(p.LanguageIDs)))
	if p.Description != "" {
		lines = append(lines, "About: "+p.Description)
	}
	if p.Contacts != "" {
		lines = append(lines, "Contacts: "+p.Contacts)
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) showOrders(ctx context.Context, userID int64) error {
	orders, err := b.repo.ListOrders(ctx, userID)
	if err != nil {
		b.fail(ctx, userID)
		return fmt.Errorf("list orders: %w", err)
	}
	text := "You have not posted any orders yet."
	if len(orders) > 0 {
		lines := make([]string, 0, len(orders))
		for _, o := range orders {
			lines = append(lines, fmt.Sprintf("#%d %s: %d, %d day(s), %s", o.ID, o.Title, o.Budget, o.DeadlineDays, o.Status))
		}
		text = "Your orders:\n" + strings.Join(lines, "\n")
	}
	_, err = b.render.Send(ctx, userID, chat.Prompt{Text: text}.Row(menuButton()))
	return err
}

func status(verified bool) string {
	if verified {
		return " ✅"
	}
	return " (awaiting moderation)"
}
