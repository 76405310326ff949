// Package provider holds the failure taxonomy shared by every upstream data client
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a provider failure
type Kind int

const (
	RateLimited Kind = iota + 1
	NotFound
	Malformed
	NetworkFailure
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case NotFound:
		return "not_found"
	case Malformed:
		return "malformed"
	case NetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Sentinels so callers can match a kind with errors.Is
var (
	ErrRateLimited    = &Error{Kind: RateLimited}
	ErrNotFound       = &Error{Kind: NotFound}
	ErrMalformed      = &Error{Kind: Malformed}
	ErrNetworkFailure = &Error{Kind: NetworkFailure}
)

// Error is the only error type returned by provider clients
type Error struct {
	Provider   string
	Kind       Kind
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Kind)
	if e.Endpoint != "" {
		msg += fmt.Sprintf(" (endpoint: %s", e.Endpoint)
		if e.StatusCode != 0 {
			msg += fmt.Sprintf(", status: %d", e.StatusCode)
		}
		msg += ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrRateLimited) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the classification of err, or zero if err is not a provider error
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// New builds a classified error
func New(providerName string, kind Kind, endpoint, message string) *Error {
	return &Error{Provider: providerName, Kind: kind, Endpoint: endpoint, Message: message}
}

// Transport classifies an error from the HTTP round trip. Timeouts, cancellations and
// connection failures all count as NetworkFailure.
func Transport(providerName, endpoint string, err error) *Error {
	pe := &Error{Provider: providerName, Kind: NetworkFailure, Endpoint: endpoint, Err: err}
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Message = "timeout"
	case errors.As(err, &ne) && ne.Timeout():
		pe.Message = "timeout"
	case errors.Is(err, context.Canceled):
		pe.Message = "cancelled"
	}
	return pe
}

// Decode wraps a JSON decoding failure as Malformed
func Decode(providerName, endpoint string, err error) *Error {
	return &Error{Provider: providerName, Kind: Malformed, Endpoint: endpoint, Message: "failed to decode response", Err: err}
}

// Status classifies a non-2xx HTTP status
func Status(providerName, endpoint string, status int, body string) *Error {
	kind := NetworkFailure
	switch {
	case status == 429:
		kind = RateLimited
	case status == 404:
		kind = NotFound
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return &Error{Provider: providerName, Kind: kind, Endpoint: endpoint, StatusCode: status, Message: body}
}
