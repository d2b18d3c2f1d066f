package server

import "fmt"

// OpError is the single error kind that reaches a client. Message is a
// localization key that leaks no internals; Tag names the failing operation
// for log correlation. The wrapped cause stays server-side.
type OpError struct {
	Message string // localization key shown to the user
	Tag     string // internal diagnostic tag, e.g. "CONNECT_CHANNEL"
	cause   error
}

func (e *OpError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Tag, e.cause)
	}
	return e.Tag
}

func (e *OpError) Unwrap() error {
	return e.cause
}

// newOpError builds a client-visible error wrapping an internal cause.
func newOpError(message, tag string, cause error) *OpError {
	return &OpError{Message: message, Tag: tag, cause: cause}
}
