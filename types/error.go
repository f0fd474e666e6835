package types

import "fmt"

// ErrorKind identifies a member of the gateway's error taxonomy.
type ErrorKind string

const (
	ErrMalformedRequest    ErrorKind = "MalformedRequest"
	ErrNoEligibleProvider  ErrorKind = "NoEligibleProvider"
	ErrProviderTimeout     ErrorKind = "ProviderTimeout"
	ErrProviderTransient   ErrorKind = "ProviderTransient"
	ErrProviderRateLimited ErrorKind = "ProviderRateLimited"
	ErrProviderAuth        ErrorKind = "ProviderAuth"
	ErrProviderPermanent   ErrorKind = "ProviderPermanent"
	ErrDeadlineExceeded    ErrorKind = "DeadlineExceeded"
	ErrSecurityViolation   ErrorKind = "SecurityViolation"
	ErrConfigurationInvalid ErrorKind = "ConfigurationInvalid"
	ErrInternalError       ErrorKind = "InternalError"
)

// httpStatusByKind mirrors the "Surfaced" column of the error taxonomy table.
// ProviderTimeout/Transient/RateLimited/Auth/Permanent are internal during the
// failover attempt loop; the status here is what a caller sees only once
// FailoverEngine has exhausted every attempt and must surface the last error.
var httpStatusByKind = map[ErrorKind]int{
	ErrMalformedRequest:     400,
	ErrNoEligibleProvider:   503,
	ErrProviderTimeout:      504,
	ErrProviderTransient:    502,
	ErrProviderRateLimited:  429,
	ErrProviderAuth:         502,
	ErrProviderPermanent:    502,
	ErrDeadlineExceeded:     504,
	ErrSecurityViolation:    400,
	ErrConfigurationInvalid: 400,
	ErrInternalError:        500,
}

// Error is the structured error type every component boundary returns.
type Error struct {
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
	HTTPStatus    int       `json:"http_status,omitempty"`
	Retryable     bool      `json:"retryable"`
	Provider      string    `json:"provider,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Cause         error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error, defaulting HTTPStatus from the taxonomy table when known.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatusByKind[kind]}
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// IsRetryable reports whether err is a *Error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorKind extracts the error kind, or "" if err is not a *Error.
func GetErrorKind(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
