package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide retry vs abort policy.
type ErrorKind int

const (
	// ErrValidation marks locally rejected input; nothing was sent to the gateway.
	ErrValidation ErrorKind = iota + 1
	// ErrTransport marks a network or connection failure.
	ErrTransport
	// ErrGatewayRejected marks a structured error response from the gateway.
	ErrGatewayRejected
	// ErrInvalidCallback marks a notification with a bad signature.
	ErrInvalidCallback
	// ErrUnmappedStatus marks a status code outside the known set.
	ErrUnmappedStatus
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrTransport:
		return "transport"
	case ErrGatewayRejected:
		return "gateway rejected"
	case ErrInvalidCallback:
		return "invalid callback"
	case ErrUnmappedStatus:
		return "unmapped status"
	}
	return "unknown"
}

// GatewayError is the structured error payload returned by the gateway API.
type GatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error carries a kind so failures stay distinguishable across layers.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Gateway *GatewayError
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if e.Gateway != nil {
		msg = fmt.Sprintf("%s; gateway code %d: %s", msg, e.Gateway.Code, e.Gateway.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s; %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errf builds a classified error.
func Errf(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapErr classifies an underlying error.
func WrapErr(kind ErrorKind, op string, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
