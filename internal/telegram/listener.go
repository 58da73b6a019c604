package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/taskmarket/internal/chat"
)

// Updater is the long-polling side of *tgbotapi.BotAPI.
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Listen long-polls updates and hands every convertible one to dispatch
// until ctx is cancelled.
func Listen(ctx context.Context, bot Updater, timeout int, dispatch func(chat.Event), logger *slog.Logger) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeout
	updates := bot.GetUpdatesChan(cfg)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := ToEvent(u)
			if !ok {
				logger.Debug("Ignoring update", "update_id", u.UpdateID)
				continue
			}
			dispatch(ev)
		}
	}
}

// ToEvent converts an update into a chat event. Updates without a sender or
// without a usable input are reported as not ok.
func ToEvent(u tgbotapi.Update) (chat.Event, bool) {
	if q := u.CallbackQuery; q != nil {
		if q.From == nil {
			return chat.Event{}, false
		}
		ev := chat.Event{
			UserID:     q.From.ID,
			ChatID:     q.From.ID,
			Username:   q.From.UserName,
			CallbackID: q.ID,
			Input:      chat.ActionInput{Token: q.Data},
		}
		if q.Message != nil && q.Message.Chat != nil {
			ev.ChatID = q.Message.Chat.ID
		}
		return ev, true
	}

	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return chat.Event{}, false
	}
	ev := chat.Event{UserID: m.From.ID, ChatID: m.Chat.ID, Username: m.From.UserName}

	switch {
	case len(m.Photo) > 0:
		// Telegram lists photo sizes ascending; keep the largest.
		largest := m.Photo[len(m.Photo)-1]
		ev.Input = chat.FileInput{FileID: largest.FileID, Caption: m.Caption, Photo: true, MIMEType: "image/jpeg"}
	case m.Document != nil:
		ev.Input = chat.FileInput{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MIMEType: m.Document.MimeType,
			Caption:  m.Caption,
		}
	case m.Text != "":
		ev.Input = chat.TextInput{Text: m.Text}
	default:
		return chat.Event{}, false
	}
	return ev, true
}
