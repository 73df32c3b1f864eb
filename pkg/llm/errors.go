package llm

import (
	"context"
	"errors"
	"net"
)

// ErrorKind categorizes gateway failures for handling.
type ErrorKind string

const (
	ErrKindUnreachable ErrorKind = "unreachable"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindBadStatus   ErrorKind = "bad_status"
	ErrKindMalformed   ErrorKind = "malformed"
)

// GatewayError is the single terminal error surfaced when the model backend is
// unreachable or answers with something we cannot use.
type GatewayError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// IsGatewayError reports whether err carries a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// TransportError classifies an error returned by http.Client.Do.
func TransportError(message string, err error) *GatewayError {
	kind := ErrKindUnreachable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrKindTimeout
	}
	return &GatewayError{Kind: kind, Message: message, Cause: err}
}
