package sso

import (
	"errors"
	"net/http"
)

// Reason tags why an assertion or provisioning attempt was rejected.
type Reason string

const (
	ReasonMalformedPayload        Reason = "MalformedPayload"
	ReasonStaleOrMissingTimestamp Reason = "StaleOrMissingTimestamp"
	ReasonInvalidSignature        Reason = "InvalidSignature"
	ReasonOversizedPayload        Reason = "OversizedPayload"
	ReasonUnsafeRedirectTarget    Reason = "UnsafeRedirectTarget"
	ReasonPersistenceFailure      Reason = "PersistenceFailure"
	ReasonAuthenticationFailed    Reason = "AuthenticationFailed"
)

// Sentinels for errors.Is; every *Error matches the sentinel of its Reason.
var (
	ErrMalformedPayload        = errors.New("sso: malformed payload")
	ErrStaleOrMissingTimestamp = errors.New("sso: stale or missing timestamp")
	ErrInvalidSignature        = errors.New("sso: invalid signature")
	ErrOversizedPayload        = errors.New("sso: oversized payload")
	ErrUnsafeRedirectTarget    = errors.New("sso: unsafe redirect target")
	ErrPersistenceFailure      = errors.New("sso: persistence failure")
	ErrAuthenticationFailed    = errors.New("sso: upstream authentication failed")
)

var sentinels = map[Reason]error{
	ReasonMalformedPayload:        ErrMalformedPayload,
	ReasonStaleOrMissingTimestamp: ErrStaleOrMissingTimestamp,
	ReasonInvalidSignature:        ErrInvalidSignature,
	ReasonOversizedPayload:        ErrOversizedPayload,
	ReasonUnsafeRedirectTarget:    ErrUnsafeRedirectTarget,
	ReasonPersistenceFailure:      ErrPersistenceFailure,
	ReasonAuthenticationFailed:    ErrAuthenticationFailed,
}

// Error is the tagged result surfaced to callers. Message is safe to show
// to clients; Err carries the internal cause and is only logged.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func newError(reason Reason, msg string, cause error) *Error {
	return &Error{Reason: reason, Message: msg, Err: cause}
}

// NewError builds a tagged error for callers outside this package, such as
// the HTTP layer rejecting a body it cannot decode.
func NewError(reason Reason, msg string, cause error) *Error {
	return newError(reason, msg, cause)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Reason) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Reason] == target
}

// HTTPStatus maps a reason to the status code the endpoint answers with.
func (e *Error) HTTPStatus() int {
	switch e.Reason {
	case ReasonOversizedPayload:
		return http.StatusRequestEntityTooLarge
	case ReasonStaleOrMissingTimestamp, ReasonInvalidSignature, ReasonAuthenticationFailed:
		return http.StatusUnauthorized
	case ReasonPersistenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsError extracts an *Error, wrapping anything else as a persistence failure.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(ReasonPersistenceFailure, "session creation failed", err)
}
