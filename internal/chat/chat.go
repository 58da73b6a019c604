// Package chat defines the transport-neutral contracts between the bot core
// and the messenger: inbound events, outbound prompts and action tokens.
package chat

import (
	"context"
	"strings"
)

// Token prefixes routed by the bot.
const (
	PrefixWorkflow   = "wf"
	PrefixModeration = "mod"
	PrefixMenu       = "menu"
)

// Input is one inbound user input. It is one of TextInput, FileInput or ActionInput.
type Input interface {
	isInput()
}

// TextInput is a plain text message.
type TextInput struct {
	Text string
}

// FileInput is a photo or document. Caption is optional.
type FileInput struct {
	FileID   string
	FileName string
	MIMEType string
	Caption  string
	Photo    bool
}

// ActionInput is a button press carrying an opaque action token.
type ActionInput struct {
	Token string
}

func (TextInput) isInput()   {}
func (FileInput) isInput()   {}
func (ActionInput) isInput() {}

// Event is an inbound input tagged with its sender.
type Event struct {
	UserID     int64
	ChatID     int64
	Username   string
	CallbackID string
	Input      Input
}

// Private reports whether the event came from the user's own chat.
func (e Event) Private() bool {
	return e.ChatID == e.UserID
}

// Action is a labeled button.
type Action struct {
	Label string
	Token string
}

// Prompt is a message body with rows of actions.
type Prompt struct {
	Text string
	Rows [][]Action
}

// Row appends a row of actions and returns the prompt.
func (p Prompt) Row(actions ...Action) Prompt {
	if len(actions) == 0 {
		return p
	}
	p.Rows = append(p.Rows, actions)
	return p
}

// MessageRef points at a rendered message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether the reference is unset.
func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

// Renderer sends prompts and edits them in place.
type Renderer interface {
	Send(ctx context.Context, chatID int64, p Prompt) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, p Prompt) (MessageRef, error)
	ClearActions(ctx context.Context, ref MessageRef) error
}

// Token joins parts into an action token, e.g. Token("wf", "opt", "3") == "wf:opt:3".
func Token(parts ...string) string {
	return strings.Join(parts, ":")
}

// SplitToken splits an action token into its prefix and remaining parts.
func SplitToken(token string) (string, []string) {
	parts := strings.Split(token, ":")
	return parts[0], parts[1:]
}
