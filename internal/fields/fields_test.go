package fields

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAge(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{in: "29", want: "29"},
		{in: " 18 ", want: "18"},
		{in: "100", want: "100"},
		{in: "17", err: ErrOutOfRange},
		{in: "101", err: ErrOutOfRange},
		{in: "twenty", err: ErrInvalidFormat},
		{in: "", err: ErrInvalidFormat},
	}
	for _, tt := range tests {
		got, err := Age(tt.in)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestURL(t *testing.T) {
	for _, ok := range []string{"https://a.com", "http://example.org/path?q=1", " https://b.io "} {
		_, err := URL(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"a.com", "https://", "not a url", "/relative/path", "https://a .com"} {
		_, err := URL(bad)
		assert.ErrorIs(t, err, ErrInvalidFormat, bad)
	}
}

func TestPriceAndDayCount(t *testing.T) {
	got, err := Price("15 000")
	require.NoError(t, err)
	assert.Equal(t, "15000", got)

	_, err = Price("2000/hr")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	_, err = Price("-500")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	_, err = Price("- 1 000")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	got, err = Price("0")
	require.NoError(t, err)
	assert.Equal(t, "0", got)

	got, err = DayCount("3")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	_, err = DayCount("0")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	_, err = DayCount("-2")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestTextReportsObservedLength(t *testing.T) {
	v := Text(500)

	_, err := v(strings.Repeat("я", 501))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLong))

	var tooLong *TooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 501, tooLong.Length)
	assert.Contains(t, Message(err), "501")

	got, err := v("  fine  ")
	require.NoError(t, err)
	assert.Equal(t, "fine", got)

	_, err = v("   ")
	assert.ErrorIs(t, err, ErrEmpty)
}
