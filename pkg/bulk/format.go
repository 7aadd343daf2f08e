package bulk

import (
	"errors"
	"time"
)

// NullValue marks a cell that has no value.
const NullValue = "#N/A"

var ErrInvalidDate = errors.New("invalid date")

// FormatDate renders the calendar date of t, in the location of t, as YYYY-MM-DD.
func FormatDate(t time.Time) (string, error) {
	if t.IsZero() {
		return "", ErrInvalidDate
	}
	return t.Format(time.DateOnly), nil
}

// FormatDateTime renders t in UTC with millisecond precision, e.g.
// 2023-01-31T12:30:59.001Z.
func FormatDateTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", ErrInvalidDate
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z"), nil
}

func FormatNullValue() string {
	return NullValue
}
