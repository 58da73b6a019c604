// Package session stores per-user workflow progress.
package session

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/ashureev/taskmarket/internal/chat"
)

// Answers maps a field key to its collected values. Single-valued fields
// hold one element.
type Answers map[string][]string

// Get returns the first value for key.
func (a Answers) Get(key string) string {
	if v := a[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Int returns the first value for key parsed as an integer.
func (a Answers) Int(key string) int {
	n, _ := strconv.Atoi(a.Get(key))
	return n
}

// Has reports whether key was answered.
func (a Answers) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = slices.Clone(v)
	}
	return out
}

// Session is the live progress of one user through one workflow.
type Session struct {
	UserID   int64   `json:"user_id"`
	Workflow string  `json:"workflow"`
	Step     string  `json:"step"`
	Answers  Answers `json:"answers"`
	// Pending accumulates items for the current multiselect or list step.
	Pending    []string        `json:"pending,omitempty"`
	LastPrompt chat.MessageRef `json:"last_prompt"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Answers = s.Answers.Clone()
	c.Pending = slices.Clone(s.Pending)
	return &c
}

// Keys returns the answered keys in sorted order.
func (s *Session) Keys() []string {
	return slices.Sorted(maps.Keys(s.Answers))
}

// Store persists sessions keyed by user id.
type Store interface {
	// Get returns the user's session, or nil if there is none.
	Get(ctx context.Context, userID int64) (*Session, error)

	// Put creates or replaces the user's session.
	Put(ctx context.Context, s *Session) error

	// Delete removes the user's session. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID int64) error

	// DeleteIdle removes sessions not updated since before and returns how many were removed.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}
