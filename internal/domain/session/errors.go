package session

import (
	"fmt"
	"strings"
)

// ErrorKind is the user-facing classification of a generation failure.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindAuthentication   ErrorKind = "authentication"
	KindRateLimit        ErrorKind = "rate_limit"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindNetwork          ErrorKind = "network"
	KindGenerationEmpty  ErrorKind = "generation_empty"
	KindPersistence      ErrorKind = "persistence"
	KindUnknown          ErrorKind = "unknown"
)

// Error is a classified generation failure. Message is safe to show to the
// end user; Cause carries the underlying error for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a classified failure with the kind's standard user message.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: userMessage(kind), Cause: cause}
}

// Classify maps a failure description to an ErrorKind by substring matching.
// Matching is best effort and checked in precedence order; anything
// unrecognized is KindUnknown.
func Classify(message string) ErrorKind {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "rate limit"):
		return KindRateLimit
	case strings.Contains(m, "api key"):
		return KindAuthentication
	case strings.Contains(m, "model"):
		return KindModelUnavailable
	case strings.Contains(m, "network"), strings.Contains(m, "fetch"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// ClassifyError wraps err into a classified *Error using its message.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	if serr, ok := err.(*Error); ok {
		return serr
	}
	return NewError(Classify(err.Error()), err)
}

func userMessage(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "The request is invalid."
	case KindAuthentication:
		return "Authentication failed. Please check your API configuration."
	case KindRateLimit:
		return "Rate limit exceeded. Please wait a moment before trying again."
	case KindModelUnavailable:
		return "The AI model is currently unavailable. Please try again later."
	case KindNetwork:
		return "Network error. Please check your connection and try again."
	case KindGenerationEmpty:
		return "No response was generated. Please try again."
	case KindPersistence:
		return "Failed to save the response. Please try again."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
