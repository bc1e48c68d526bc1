package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindQuota          ErrorKind = "quota"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindUnavailable    ErrorKind = "unavailable"
	KindUnknown        ErrorKind = "unknown"
)

var (
	ErrUnknownModel = errors.New("unknown model")

	// ErrAdapterIgnoredStop is reported when a generation does not settle
	// after its context was cancelled.
	ErrAdapterIgnoredStop = errors.New("adapter ignored stop request")
)

// AdapterError is the typed failure every adapter surfaces.
type AdapterError struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Retryable reports whether opening the stream again may succeed.
func (e *AdapterError) Retryable() bool {
	return e.Kind == KindUnavailable
}

// KindFromStatus maps an HTTP status returned by a vendor to an ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		return KindInvalidRequest
	case status >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// NewAdapterError builds an AdapterError from a vendor status code.
func NewAdapterError(provider string, status int, message string, err error) *AdapterError {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &AdapterError{
		Kind:     KindFromStatus(status),
		Provider: provider,
		Status:   status,
		Message:  message,
		Err:      err,
	}
}

// WrapError converts any error into an AdapterError. Context errors are
// returned untouched so callers can tell a stop from a failure.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	return &AdapterError{Kind: KindUnknown, Provider: provider, Message: err.Error(), Err: err}
}

// AsAdapterError unwraps err into an AdapterError if one is present.
func AsAdapterError(err error) (*AdapterError, bool) {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
