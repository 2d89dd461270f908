package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindEmptyTranscript     Kind = "empty_transcript"
	KindInvalidDuration     Kind = "invalid_duration"
	KindNoHighlightsFound   Kind = "no_highlights_found"
	KindUnknownStyleToken   Kind = "unknown_style_token"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindInvalidArgument     Kind = "invalid_argument"
	KindNotFound            Kind = "not_found"
	KindCancelled           Kind = "cancelled"
)

// Error carries a Kind so callers can branch on the failure class while
// keeping the wrapped cause for messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	ErrEmptyTranscript     = &Error{Kind: KindEmptyTranscript}
	ErrInvalidDuration     = &Error{Kind: KindInvalidDuration}
	ErrNoHighlightsFound   = &Error{Kind: KindNoHighlightsFound}
	ErrUnknownStyleToken   = &Error{Kind: KindUnknownStyleToken}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrCancelled           = &Error{Kind: KindCancelled}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrEmptyTranscript)
// works for every instance built with New or Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a caller may retry err. Only provider
// failures are transient; everything else is bad input.
func Retryable(err error) bool {
	return KindOf(err) == KindProviderUnavailable
}
