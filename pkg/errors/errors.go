package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// Taxonomy roots
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrProvider       = errors.New("provider error")

	// Vector store errors
	ErrIndexNotFound        = errors.New("index not found")
	ErrUnsupportedQueryMode = errors.New("unsupported query mode")
	ErrInvalidDimension     = errors.New("invalid vector dimension")

	// Document errors
	ErrDocumentNotFound = errors.New("document not found")

	// Config errors
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// ValidationError reports input rejected before any remote call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthenticationError reports a missing credential or one rejected by the provider.
type AuthenticationError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication error: %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication error: %s: %s", e.Provider, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// ProviderError reports a failed remote call: non-success status, transport
// failure, timeout or a malformed response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider error: %s", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProvider, e.Err}
	}
	return []error{ErrProvider}
}

// Validation builds a *ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// FromStatus maps a non-success HTTP status onto the taxonomy.
func FromStatus(provider string, status int, body string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthenticationError{Provider: provider, StatusCode: status, Message: body}
	}
	return &ProviderError{Provider: provider, StatusCode: status, Message: body}
}

// FromTransport wraps a failed round trip. Context cancellation is passed
// through untouched so callers can tell it apart from provider failures.
func FromTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

// IsRetryable reports whether err is a provider failure worth another attempt:
// timeouts, throttling, server side errors and dropped connections. TLS and
// DNS failures are permanent.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrAuthentication) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch {
	case pe.StatusCode == http.StatusRequestTimeout, pe.StatusCode == http.StatusTooManyRequests:
		return true
	case pe.StatusCode >= 500:
		return true
	case pe.StatusCode != 0:
		return false
	}
	if errors.Is(pe.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(pe.Err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(pe.Err, syscall.ECONNRESET) ||
		errors.Is(pe.Err, syscall.ECONNREFUSED) ||
		errors.Is(pe.Err, io.ErrUnexpectedEOF)
}
