package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind discriminates fetch failures.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindHTTPStatus ErrorKind = "http_status"
	KindParse      ErrorKind = "parse"
	KindCancelled  ErrorKind = "cancelled"
)

var (
	// ErrCancelled marks a fetch abandoned by its caller. It is not a failure
	// and must never reach a user-visible error state.
	ErrCancelled = errors.New("fetch cancelled")

	// ErrMalformedRecord is wrapped by parse errors caused by a feature that is
	// missing its id or geometry.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrInvalidRange is returned for custom ranges whose start is after the end.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrUnsupportedWindow is returned when a window has no direct feed.
	ErrUnsupportedWindow = errors.New("unsupported window")
)

// FetchError carries the kind of a failed fetch along with the operation that
// produced it.
type FetchError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + string(e.Kind) + " error"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NetworkError wraps a transport-level failure, including client timeouts.
func NetworkError(op string, err error) error {
	return &FetchError{Kind: KindNetwork, Op: op, Err: err}
}

// HTTPStatusError reports a non-success response.
func HTTPStatusError(op string, status int) error {
	return &FetchError{Kind: KindHTTPStatus, Op: op, StatusCode: status}
}

// ParseError wraps malformed JSON or malformed feature geometry.
func ParseError(op string, err error) error {
	return &FetchError{Kind: KindParse, Op: op, Err: err}
}

// CancelledError reports that the caller abandoned the fetch.
func CancelledError(op string) error {
	return &FetchError{Kind: KindCancelled, Op: op, Err: ErrCancelled}
}

// KindOf returns the kind of err, or "" when err is not a fetch error.
// A bare context cancellation is reported as KindCancelled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return ""
}

// IsCancelled reports whether err means the caller gave up on the fetch.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || KindOf(err) == KindCancelled
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
