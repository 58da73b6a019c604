// Package telegram connects the bot core to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/taskmarket/internal/chat"
)

// API is the subset of *tgbotapi.BotAPI the client uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client renders prompts as Telegram messages with inline keyboards.
type Client struct {
	api    API
	logger *slog.Logger
}

// NewClient wraps a Bot API connection.
func NewClient(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger.With("module", "telegram")}
}

// Dial connects to the Bot API with the given token.
func Dial(token string, logger *slog.Logger) (*tgbotapi.BotAPI, *Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return bot, NewClient(bot, logger), nil
}

// Send posts a new message.
func (c *Client) Send(_ context.Context, chatID int64, p chat.Prompt) (chat.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, p.Text)
	if len(p.Rows) > 0 {
		msg.ReplyMarkup = keyboard(p.Rows)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text and keyboard of a sent message.
func (c *Client) Edit(_ context.Context, ref chat.MessageRef, p chat.Prompt) (chat.MessageRef, error) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, p.Text, keyboard(p.Rows))
	if _, err := c.api.Request(edit); err != nil && !notModified(err) {
		return chat.MessageRef{}, fmt.Errorf("edit message: %w", err)
	}
	return ref, nil
}

// ClearActions removes the inline keyboard of a sent message.
func (c *Client) ClearActions(_ context.Context, ref chat.MessageRef) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, keyboard(nil))
	if _, err := c.api.Request(edit); err != nil && !notModified(err) {
		return fmt.Errorf("clear keyboard: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally showing text.
func (c *Client) AnswerCallback(_ context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// FileURL resolves a direct download URL for a file id.
func (c *Client) FileURL(_ context.Context, fileID string) (string, error) {
	u, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	return u, nil
}

func keyboard(rows [][]chat.Action) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Token))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: out}
}

// notModified reports Telegram's refusal to apply an edit that changes nothing.
func notModified(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return strings.Contains(tgErr.Message, "message is not modified")
	}
	return strings.Contains(err.Error(), "message is not modified")
}
