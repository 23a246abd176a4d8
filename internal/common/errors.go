package common

import "fmt"

// ErrorKind classifies failures per the tool's error taxonomy
type ErrorKind string

const (
	// ErrorKindConfiguration for missing or invalid configuration
	ErrorKindConfiguration ErrorKind = "configuration"
	// ErrorKindNetwork for transport-level failures (DNS, refused, timeout)
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindRemote for non-2xx responses from Azure DevOps
	ErrorKindRemote ErrorKind = "remote"
	// ErrorKindParse for payload decoding failures
	ErrorKindParse ErrorKind = "parse"
	// ErrorKindStorage for local filesystem and cache failures
	ErrorKindStorage ErrorKind = "storage"
	// ErrorKindPlan for AI plan generation failures
	ErrorKindPlan ErrorKind = "plan"
)

// BakeryError carries the failure kind plus the HTTP context when the
// failure came from a remote call.
type BakeryError struct {
	Kind    ErrorKind
	Message string
	Status  int
	URL     string
	Cause   error
}

func (e *BakeryError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("[%s] HTTP %d: %s", e.Kind, e.Status, e.Message)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s (URL: %s)", msg, e.URL)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *BakeryError) Unwrap() error {
	return e.Cause
}

// WithStatus records the HTTP status that produced the error
func (e *BakeryError) WithStatus(status int) *BakeryError {
	e.Status = status
	return e
}

// WithURL records the request URL that produced the error
func (e *BakeryError) WithURL(url string) *BakeryError {
	e.URL = url
	return e
}

// WithCause sets the underlying cause
func (e *BakeryError) WithCause(cause error) *BakeryError {
	e.Cause = cause
	return e
}

// NewError creates a new BakeryError
func NewError(kind ErrorKind, message string) *BakeryError {
	return &BakeryError{Kind: kind, Message: message}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *BakeryError {
	return NewError(ErrorKindConfiguration, message)
}

// NewNetworkError creates a transport-level error
func NewNetworkError(message string) *BakeryError {
	return NewError(ErrorKindNetwork, message)
}

// NewRemoteError creates an error for a non-2xx response
func NewRemoteError(message string) *BakeryError {
	return NewError(ErrorKindRemote, message)
}

// NewParseError creates a payload decoding error
func NewParseError(message string) *BakeryError {
	return NewError(ErrorKindParse, message)
}

// NewStorageError creates a local filesystem or cache error
func NewStorageError(message string) *BakeryError {
	return NewError(ErrorKindStorage, message)
}

// NewPlanError creates a plan generation error
func NewPlanError(message string) *BakeryError {
	return NewError(ErrorKindPlan, message)
}

// WrapError wraps an existing error with kind and message context
func WrapError(err error, kind ErrorKind, message string) *BakeryError {
	return &BakeryError{Kind: kind, Message: message, Cause: err}
}
