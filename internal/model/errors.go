package model

import (
	"errors"
	"fmt"
)

// Category is the stable, machine-readable class of a failure. The string
// values are the wire tags.
type Category string

const (
	CategoryNotFound         Category = "NotFound"
	CategoryPermissionDenied Category = "PermissionDenied"
	CategoryTransient        Category = "Transient"
	CategoryInvalidAction    Category = "InvalidAction"
	CategoryInternal         Category = "Internal"
	CategoryTimeout          Category = "Timeout"
	CategoryThrottled        Category = "Throttled"
	CategoryVersionMismatch  Category = "VersionMismatch"
	CategoryUnavailable      Category = "Unavailable"
)

// Error is a categorised failure. Err, when set, is the underlying cause.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Category)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same category, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Category == e.Category && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound         = &Error{Category: CategoryNotFound}
	ErrPermissionDenied = &Error{Category: CategoryPermissionDenied}
	ErrTransient        = &Error{Category: CategoryTransient}
	ErrInvalidAction    = &Error{Category: CategoryInvalidAction}
	ErrInternal         = &Error{Category: CategoryInternal}
	ErrTimeout          = &Error{Category: CategoryTimeout}
	ErrThrottled        = &Error{Category: CategoryThrottled}
	ErrVersionMismatch  = &Error{Category: CategoryVersionMismatch}
	ErrUnavailable      = &Error{Category: CategoryUnavailable}

	// ErrConnectionLost is reported by backends when the connection to the
	// accessibility service dropped. The provider reinitializes once on it.
	ErrConnectionLost = errors.New("accessibility connection lost")
)

// Errorf builds a categorised error with a formatted message.
func Errorf(c Category, format string, args ...any) *Error {
	return &Error{Category: c, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a category to err. An err that already carries a category
// keeps it.
func Wrap(c Category, msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Category: c, Message: msg, Err: err}
}

func NotFound(id NodeID) *Error {
	return &Error{Category: CategoryNotFound, Message: fmt.Sprintf("node %s not found", id)}
}

func InvalidAction(msg string) *Error {
	return &Error{Category: CategoryInvalidAction, Message: msg}
}

func Unavailable(msg string, err error) *Error {
	return &Error{Category: CategoryUnavailable, Message: msg, Err: err}
}

func Transient(msg string, err error) *Error {
	return &Error{Category: CategoryTransient, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Category: CategoryInternal, Message: msg, Err: err}
}

// CategoryOf classifies err. Uncategorised errors are Internal.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryInternal
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
