package githubapi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorClass groups failures by how the fetcher recovers from them.
type ErrorClass string

const (
	ErrorClassTransport   ErrorClass = "transport"
	ErrorClassDecode      ErrorClass = "decode"
	ErrorClassRateLimit   ErrorClass = "rate_limit"
	ErrorClassApplication ErrorClass = "application"
	ErrorClassUnknown     ErrorClass = "unknown"
)

// TransportError: connection failure or non-success HTTP status.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error (status %d)", e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError: the response body could not be parsed into a search page.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// RateLimitError: the quota is exhausted. ResetAt is zero when the reset time is unknown;
// RetryAfter is set for secondary limits that send a Retry-After header.
type RateLimitError struct {
	ResetAt    time.Time
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	switch {
	case e.RetryAfter > 0:
		return fmt.Sprintf("rate limited (status %d), retry after %v", e.StatusCode, e.RetryAfter)
	case !e.ResetAt.IsZero():
		return fmt.Sprintf("rate limited (status %d), resets at %s", e.StatusCode, e.ResetAt.Format(time.RFC3339))
	default:
		return fmt.Sprintf("rate limited (status %d), reset unknown", e.StatusCode)
	}
}

// ApplicationError: the request succeeded but the service reported errors in the payload.
type ApplicationError struct {
	Errors []GraphQLError
}

func (e *ApplicationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, gqlErr := range e.Errors {
		if gqlErr.Type != "" {
			msgs = append(msgs, gqlErr.Type+": "+gqlErr.Message)
			continue
		}
		msgs = append(msgs, gqlErr.Message)
	}
	return "graphql errors: " + strings.Join(msgs, "; ")
}

// Classify maps an error returned by Caller.Search onto its ErrorClass.
func Classify(err error) ErrorClass {
	var (
		transportErr *TransportError
		decodeErr    *DecodeError
		rateErr      *RateLimitError
		appErr       *ApplicationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rateErr):
		return ErrorClassRateLimit
	case errors.As(err, &appErr):
		return ErrorClassApplication
	case errors.As(err, &decodeErr):
		return ErrorClassDecode
	case errors.As(err, &transportErr):
		return ErrorClassTransport
	default:
		return ErrorClassUnknown
	}
}
