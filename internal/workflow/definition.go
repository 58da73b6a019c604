// Package workflow drives users through multi-step data collection
// conversations: registration, profile edits and order creation.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ashureev/taskmarket/internal/fields"
	"github.com/ashureev/taskmarket/internal/multiselect"
	"github.com/ashureev/taskmarket/internal/session"
)

// StepKind selects how a step consumes input.
type StepKind int

const (
	// KindText accepts one validated text message.
	KindText StepKind = iota
	// KindFile accepts one photo or image document.
	KindFile
	// KindChoice accepts one option picked from a keyboard.
	KindChoice
	// KindMulti accepts a bounded multiselect confirmed with a button.
	KindMulti
	// KindList accumulates repeated text items or files until done.
	KindList
	// KindConfirm shows a summary and submits the draft.
	KindConfirm
)

func (k StepKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindChoice:
		return "choice"
	case KindMulti:
		return "multi"
	case KindList:
		return "list"
	case KindConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Purpose tells the committer what a completed draft is for.
type Purpose int

const (
	PurposeRegistration Purpose = iota
	PurposeEdit
	PurposeOrder
)

func (p Purpose) String() string {
	switch p {
	case PurposeRegistration:
		return "registration"
	case PurposeEdit:
		return "edit"
	case PurposeOrder:
		return "order"
	default:
		return fmt.Sprintf("Purpose(%d)", int(p))
	}
}

// Option is a selectable value of a choice or multiselect step.
type Option = multiselect.Option

// OptionsFunc lists the options of a step. It may depend on earlier answers.
type OptionsFunc func(ctx context.Context, answers session.Answers) ([]Option, error)

// Step describes one prompt of a workflow.
type Step struct {
	Key    string
	Kind   StepKind
	Title  string
	Prompt string

	// Validate checks text input for text steps and text list items.
	Validate fields.Func
	// Optional steps offer a skip action.
	Optional bool
	// MaxSelections caps multiselect steps; zero means unbounded.
	MaxSelections int
	// MaxItems caps list steps; zero means unbounded.
	MaxItems int
	// AcceptFiles makes a list step collect files instead of text.
	AcceptFiles bool
	// Options lists the choices of choice and multiselect steps.
	Options OptionsFunc
	// Next returns the key of the step that follows once this one is answered.
	// Empty means the next step in order.
	Next func(answers session.Answers) string
}

// Definition is an ordered sequence of steps collecting one record.
type Definition struct {
	ID      string
	Purpose Purpose
	// Subject is the record kind: "executor", "client" or "order".
	Subject string
	Steps   []Step
	// KeepOnCommitFailure keeps the session at the confirm step when the
	// commit fails so the user can press submit again.
	KeepOnCommitFailure bool
}

// Step returns the step with the given key.
func (d *Definition) Step(key string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].Key == key {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// First returns the key of the first step.
func (d *Definition) First() string {
	return d.Steps[0].Key
}

// Fields returns the keys of the data-collecting steps in order.
func (d *Definition) Fields() []string {
	var out []string
	for _, s := range d.Steps {
		if s.Kind != KindConfirm {
			out = append(out, s.Key)
		}
	}
	return out
}

// next resolves the step that follows key given the answers so far.
func (d *Definition) next(key string, answers session.Answers) (string, error) {
	for i, s := range d.Steps {
		if s.Key != key {
			continue
		}
		if s.Next != nil {
			if n := s.Next(answers); n != "" {
				if _, ok := d.Step(n); !ok {
					return "", fmt.Errorf("workflow %s: step %s branches to unknown step %s", d.ID, key, n)
				}
				return n, nil
			}
		}
		if i+1 >= len(d.Steps) {
			return "", fmt.Errorf("workflow %s: no step after %s", d.ID, key)
		}
		return d.Steps[i+1].Key, nil
	}
	return "", fmt.Errorf("workflow %s: unknown step %s", d.ID, key)
}

// Validate checks structural invariants of the definition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("workflow without id")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", d.ID)
	}
	if last := d.Steps[len(d.Steps)-1]; last.Kind != KindConfirm {
		return fmt.Errorf("workflow %s must end with a confirm step", d.ID)
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Key == "" || strings.Contains(s.Key, ":") {
			return fmt.Errorf("workflow %s: invalid step key %q", d.ID, s.Key)
		}
		if seen[s.Key] {
			return fmt.Errorf("workflow %s: duplicate step %s", d.ID, s.Key)
		}
		seen[s.Key] = true

		switch s.Kind {
		case KindText:
			if s.Validate == nil {
				return fmt.Errorf("workflow %s: text step %s has no validator", d.ID, s.Key)
			}
		case KindList:
			if !s.AcceptFiles && s.Validate == nil {
				return fmt.Errorf("workflow %s: list step %s has no validator", d.ID, s.Key)
			}
		case KindChoice, KindMulti:
			if s.Options == nil {
				return fmt.Errorf("workflow %s: step %s has no options", d.ID, s.Key)
			}
		}
	}
	return nil
}

// Subset derives a workflow that collects only the given keys of base,
// in base order, followed by a confirm step. Branching is dropped.
func Subset(base *Definition, id string, keys ...string) (*Definition, error) {
	d := &Definition{
		ID:      id,
		Purpose: PurposeEdit,
		Subject: base.Subject,
	}
	for _, s := range base.Steps {
		if s.Kind == KindConfirm || !slices.Contains(keys, s.Key) {
			continue
		}
		s.Next = nil
		d.Steps = append(d.Steps, s)
	}
	if len(d.Steps) != len(keys) {
		return nil, fmt.Errorf("workflow %s: keys %v not all found in %s", id, keys, base.ID)
	}
	d.Steps = append(d.Steps, confirmStep())
	return d, d.Validate()
}

// SingleField derives a one-field edit workflow from base.
func SingleField(base *Definition, id, key string) (*Definition, error) {
	return Subset(base, id, key)
}

func confirmStep() Step {
	return Step{Key: "confirm", Kind: KindConfirm, Title: "Confirm", Prompt: "Please check the details and submit."}
}
