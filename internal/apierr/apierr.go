// Package apierr maps gateway-internal failures onto the Anthropic-shaped
// error envelope and HTTP status codes described in spec §6/§7.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind is one of the Anthropic error `type` discriminators.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request_error"
	KindAuthentication Kind = "authentication_error"
	KindPermission     Kind = "permission_error"
	KindNotFound       Kind = "not_found_error"
	KindRequestTooLarge Kind = "request_too_large"
	KindRateLimit      Kind = "rate_limit_error"
	KindAPIError       Kind = "api_error"
	KindOverloaded     Kind = "overloaded_error"
)

var statusForKind = map[Kind]int{
	KindInvalidRequest:  http.StatusBadRequest,
	KindAuthentication:  http.StatusUnauthorized,
	KindPermission:      http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindRequestTooLarge: http.StatusRequestEntityTooLarge,
	KindRateLimit:       http.StatusTooManyRequests,
	KindAPIError:        http.StatusInternalServerError,
	KindOverloaded:      529,
}

// Error is the gateway's carrier error type: a Kind plus a human message,
// wrapping an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for e's Kind.
func (e *Error) Status() int {
	if s, ok := statusForKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Sentinel errors for classification by errors.Is before wrapping into an
// *Error with a request-specific message.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrAuthExpired    = errors.New("authentication expired")
	ErrPermission     = errors.New("permission denied")
	ErrNotFound       = errors.New("not found")
	ErrRequestTooLarge = errors.New("request too large")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("upstream error")
	ErrOverloaded     = errors.New("overloaded")
)

// FromUpstreamStatus maps an OAuth refresh HTTP status to a Kind, per
// spec §4.6 rule 5 / §7. Non-2xx generateAssistantResponse statuses do not
// go through it: the upstream client reports those as KindAPIError.
func FromUpstreamStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindOverloaded
	default:
		return KindAPIError
	}
}

// envelope is the wire shape of an Anthropic-style error response body.
type envelope struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes err to w as an Anthropic-shaped error body with the
// matching HTTP status. Any error is coerced to KindAPIError if it is not
// already an *Error.
func WriteJSON(w http.ResponseWriter, requestID string, err error) {
	var gerr *Error
	if !errors.As(err, &gerr) {
		gerr = &Error{Kind: KindAPIError, Message: err.Error()}
	}

	env := envelope{Type: "error", RequestID: requestID}
	env.Error.Type = string(gerr.Kind)
	env.Error.Message = gerr.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gerr.Status())
	_ = json.NewEncoder(w).Encode(env)
}
