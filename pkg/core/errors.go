package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies search errors for callers and the HTTP layer.
type ErrorKind int

const (
	// KindSearchFailure means the index could not execute a query.
	KindSearchFailure ErrorKind = iota
	// KindNotFound is a valid "no such record, keyword or anchor" outcome.
	KindNotFound
	// KindInvalidRequest means the caller supplied an inconsistent request.
	// It is always returned before any query is issued.
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidRequest:
		return "bad_request"
	default:
		return "search_failure"
	}
}

// SearchError is the typed error surfaced by the search layer. Message is safe
// to show to API clients; Err carries the backend detail and is never exposed.
type SearchError struct {
	Kind    ErrorKind
	Param   string
	Message string
	Err     error
}

func (e *SearchError) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Param != "" {
		msg = fmt.Sprintf("%s (parameter %q)", msg, e.Param)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// SearchFailure wraps a backend error.
func SearchFailure(message string, err error) error {
	return &SearchError{Kind: KindSearchFailure, Message: message, Err: err}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &SearchError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequest builds a bad-request error naming the offending parameter.
func InvalidRequest(param, format string, args ...any) error {
	return &SearchError{Kind: KindInvalidRequest, Param: param, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Errors that are not SearchErrors are
// treated as search failures.
func KindOf(err error) ErrorKind {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindSearchFailure
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

func IsInvalidRequest(err error) bool {
	return err != nil && KindOf(err) == KindInvalidRequest
}

func IsSearchFailure(err error) bool {
	return err != nil && KindOf(err) == KindSearchFailure
}
