// Package multiselect implements bounded selection sets with FIFO eviction
// and their checklist rendering.
package multiselect

import (
	"slices"

	"github.com/ashureev/taskmarket/internal/chat"
)

// Option is one selectable item.
type Option struct {
	ID    string
	Label string
}

// Toggle removes item if it is selected, otherwise appends it. When the
// selection is already at limit the oldest item is evicted first. A limit of
// zero or less means unbounded. The input slice is not modified.
func Toggle(sel []string, item string, limit int) []string {
	if i := slices.Index(sel, item); i >= 0 {
		return slices.Delete(slices.Clone(sel), i, i+1)
	}
	out := slices.Clone(sel)
	for limit > 0 && len(out) >= limit {
		out = out[1:]
	}
	return append(out, item)
}

// Filter keeps only selected items that are still offered, preserving order.
func Filter(sel []string, options []Option) []string {
	out := make([]string, 0, len(sel))
	for _, id := range sel {
		if slices.ContainsFunc(options, func(o Option) bool { return o.ID == id }) {
			out = append(out, id)
		}
	}
	return out
}

// Labels returns the labels of the selected items in selection order.
func Labels(sel []string, options []Option) []string {
	byID := make(map[string]string, len(options))
	for _, o := range options {
		byID[o.ID] = o.Label
	}
	out := make([]string, 0, len(sel))
	for _, id := range sel {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		} else {
			out = append(out, id)
		}
	}
	return out
}

// View configures checklist rendering.
type View struct {
	// ToggleToken builds the action token for an option.
	ToggleToken func(id string) string
	// ConfirmLabel and ConfirmToken describe the confirm action.
	ConfirmLabel string
	ConfirmToken string
	// PerRow is the number of options per keyboard row; defaults to 2.
	PerRow int
}

const (
	markOn  = "✅ "
	markOff = "▫️ "
)

// Render builds checklist rows marking the selected options. The confirm
// action is appended only when at least one option is selected.
func Render(options []Option, sel []string, v View) [][]chat.Action {
	perRow := v.PerRow
	if perRow <= 0 {
		perRow = 2
	}

	var rows [][]chat.Action
	var row []chat.Action
	for _, o := range options {
		label := markOff + o.Label
		if slices.Contains(sel, o.ID) {
			label = markOn + o.Label
		}
		row = append(row, chat.Action{Label: label, Token: v.ToggleToken(o.ID)})
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if len(sel) > 0 && v.ConfirmToken != "" {
		rows = append(rows, []chat.Action{{Label: v.ConfirmLabel, Token: v.ConfirmToken}})
	}
	return rows
}
