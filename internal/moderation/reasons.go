package moderation

import (
	"errors"
	"fmt"
	"time"
)

// Reason is a rejection reason offered to moderators.
type Reason struct {
	Code  string
	Label string
	Days  int
}

// Reasons lists the rejection reasons in display order.
var Reasons = []Reason{
	{Code: "photo", Label: "Unsuitable photo", Days: 3},
	{Code: "info", Label: "Incomplete information", Days: 3},
	{Code: "rude", Label: "Offensive content", Days: 7},
	{Code: "fake", Label: "Fake profile", Days: 30},
	{Code: "spam", Label: "Spam or advertising", Days: 30},
	{Code: "dup", Label: "Duplicate account", Days: 14},
}

// ErrNoReasons is returned when a rejection has no reason selected.
var ErrNoReasons = errors.New("rejection requires at least one reason")

// LookupReason finds a reason by code.
func LookupReason(code string) (Reason, bool) {
	for _, r := range Reasons {
		if r.Code == code {
			return r, true
		}
	}
	return Reason{}, false
}

// BlockDuration returns the longest block among the given reason codes.
func BlockDuration(codes []string) (time.Duration, error) {
	if len(codes) == 0 {
		return 0, ErrNoReasons
	}
	days := 0
	for _, c := range codes {
		r, ok := LookupReason(c)
		if !ok {
			return 0, fmt.Errorf("unknown reason %q", c)
		}
		days = max(days, r.Days)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// ReasonLabels maps codes to their labels in the given order.
func ReasonLabels(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if r, ok := LookupReason(c); ok {
			out = append(out, r.Label)
		} else {
			out = append(out, c)
		}
	}
	return out
}
