// Package apperr defines the error taxonomy shared by every layer.
//
// Errors carry an operation name and a Kind. Transport code maps the kind to
// a status; everything else only wraps.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Sentinel kinds, usable with errors.Is.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrBadRequest   = &Error{Kind: KindBadRequest}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInternal     = &Error{Kind: KindInternal}
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the concrete error type.
type Error struct {
	Op     string
	Kind   Kind
	Msg    string
	Err    error
	Fields []FieldError
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so errors.Is(err, ErrNotFound) works
// across wrapping layers.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns an error of kind with a message.
func New(op string, kind Kind, msg string) error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(op string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NewKind returns a bare error of kind.
func NewKind(op string, kind Kind) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind wraps err and forces kind.
func WrapKind(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap wraps err keeping its kind; unknown errors become internal.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// Invalid builds a bad-request error listing field problems.
func Invalid(op string, fields ...FieldError) error {
	return &Error{Op: op, Kind: KindBadRequest, Msg: "validation failed", Fields: fields}
}

// KindOf returns the outermost kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldsOf collects field errors from err's chain.
func FieldsOf(err error) []FieldError {
	var out []FieldError
	for err != nil {
		if e, ok := err.(*Error); ok {
			out = append(out, e.Fields...)
		}
		err = errors.Unwrap(err)
	}
	return out
}

// Message returns the user-facing message: the innermost explicit Msg, or the
// error text when none was set.
func Message(err error) string {
	msg := ""
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok && e.Msg != "" {
			msg = e.Msg
		}
	}
	if msg != "" {
		return msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
