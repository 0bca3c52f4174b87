package domain

import (
	"fmt"
	"time"
)

// WindowKind names a time window the service can serve.
type WindowKind string

const (
	WindowHour   WindowKind = "hour"
	WindowDay    WindowKind = "day"
	WindowWeek   WindowKind = "week"
	WindowMonth  WindowKind = "month"
	WindowCustom WindowKind = "custom"
)

const (
	day      = 24 * time.Hour
	dateOnly = "2006-01-02"
)

// Window is a requested time range. Start and End are only set for custom
// windows and hold UTC calendar dates (midnight).
type Window struct {
	Kind  WindowKind
	Start time.Time
	End   time.Time
}

// ParseWindowKind validates a window name.
func ParseWindowKind(s string) (WindowKind, error) {
	switch k := WindowKind(s); k {
	case WindowHour, WindowDay, WindowWeek, WindowMonth, WindowCustom:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedWindow, s)
	}
}

// FeedWindow returns a non-custom window. Use CustomWindow for date ranges.
func FeedWindow(kind WindowKind) Window {
	return Window{Kind: kind}
}

// CustomWindow builds an inclusive calendar-date window. Both dates are
// truncated to UTC midnight.
func CustomWindow(start, end time.Time) (Window, error) {
	s := truncateDate(start)
	e := truncateDate(end)
	if s.After(e) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, s.Format(dateOnly), e.Format(dateOnly))
	}
	return Window{Kind: WindowCustom, Start: s, End: e}, nil
}

// ParseCustomWindow parses YYYY-MM-DD bounds.
func ParseCustomWindow(start, end string) (Window, error) {
	s, err := time.Parse(dateOnly, start)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start: %v", ErrInvalidRange, err)
	}
	e, err := time.Parse(dateOnly, end)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end: %v", ErrInvalidRange, err)
	}
	return CustomWindow(s, e)
}

// IsFeed reports whether the window maps onto one of the three direct feeds.
func (w Window) IsFeed() bool {
	switch w.Kind {
	case WindowHour, WindowDay, WindowWeek:
		return true
	default:
		return false
	}
}

// Key is the cache key for the window.
func (w Window) Key() string {
	if w.Kind == WindowCustom {
		return fmt.Sprintf("custom:%s:%s", w.Start.Format(dateOnly), w.End.Format(dateOnly))
	}
	return string(w.Kind)
}

func (w Window) String() string {
	return w.Key()
}

// EndOfDay returns the last millisecond of the custom window's end date.
func (w Window) EndOfDay() time.Time {
	return w.End.Add(day - time.Millisecond)
}

// Bounds returns the inclusive epoch-ms range covered by a custom window.
func (w Window) Bounds() (int64, int64) {
	return w.Start.UnixMilli(), w.EndOfDay().UnixMilli()
}

// Span returns the nominal duration of a rolling window. Custom windows return
// the length of their date range.
func (w Window) Span() time.Duration {
	switch w.Kind {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return day
	case WindowWeek:
		return 7 * day
	case WindowMonth:
		return 30 * day
	case WindowCustom:
		return w.End.Sub(w.Start) + day
	default:
		return 0
	}
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
