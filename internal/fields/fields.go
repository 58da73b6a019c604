// Package fields validates raw user input for profile and order fields.
package fields

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MinAge = 18
	MaxAge = 100
)

var (
	// ErrInvalidFormat indicates the input could not be parsed for the field.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric input outside the allowed range.
	ErrOutOfRange = errors.New("out of range")

	// ErrTooLong indicates free text over the length ceiling.
	ErrTooLong = errors.New("too long")

	// ErrEmpty indicates blank free text.
	ErrEmpty = errors.New("empty")

	// ErrWrongInputKind indicates non-text input where text was expected or vice versa.
	ErrWrongInputKind = errors.New("wrong input kind")
)

// TooLongError reports the observed length of over-length input.
type TooLongError struct {
	Length int
	Max    int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("text is %d characters, limit is %d", e.Length, e.Max)
}

// Is makes errors.Is(err, ErrTooLong) match.
func (e *TooLongError) Is(target error) bool {
	return target == ErrTooLong
}

// Func validates raw input and returns the normalized value.
type Func func(raw string) (string, error)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Age accepts an integer in [MinAge, MaxAge].
func Age(raw string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidFormat
	}
	if err := validate.Var(n, fmt.Sprintf("gte=%d,lte=%d", MinAge, MaxAge)); err != nil {
		return "", ErrOutOfRange
	}
	return strconv.Itoa(n), nil
}

// URL accepts a well-formed absolute URL.
func URL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", ErrInvalidFormat
	}
	if err := validate.Var(s, "url"); err != nil {
		return "", ErrInvalidFormat
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidFormat
	}
	return s, nil
}

// Price accepts a non-negative integer amount. Spaces used as thousands
// separators are ignored.
func Price(raw string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return "", ErrInvalidFormat
	}
	return strconv.FormatInt(n, 10), nil
}

// DayCount accepts an integer number of days, at least one.
func DayCount(raw string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return "", ErrInvalidFormat
	}
	return strconv.Itoa(n), nil
}

// Text returns a validator for non-empty free text of at most max characters.
func Text(max int) Func {
	return func(raw string) (string, error) {
		s := strings.TrimSpace(raw)
		if s == "" {
			return "", ErrEmpty
		}
		if n := utf8.RuneCountInString(s); n > max {
			return "", &TooLongError{Length: n, Max: max}
		}
		return s, nil
	}
}

// Message returns the user-facing explanation for a validation error.
func Message(err error) string {
	var tooLong *TooLongError
	switch {
	case errors.As(err, &tooLong):
		return fmt.Sprintf("The text is too long: %d characters, the limit is %d. Please shorten it.", tooLong.Length, tooLong.Max)
	case errors.Is(err, ErrOutOfRange):
		return fmt.Sprintf("The value must be between %d and %d.", MinAge, MaxAge)
	case errors.Is(err, ErrWrongInputKind):
		return "This step expects a different kind of message. Please follow the prompt."
	case errors.Is(err, ErrEmpty):
		return "The message is empty. Please send some text."
	case errors.Is(err, ErrInvalidFormat):
		return "The value has an invalid format. Please check it and try again."
	default:
		return "The value was not accepted. Please try again."
	}
}
