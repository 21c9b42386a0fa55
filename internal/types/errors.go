package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the kind of failure a search run reports
type ErrorType string

const (
	ErrorTypeLocationNotFound          ErrorType = "location_not_found"
	ErrorTypeDeviceLocationDenied      ErrorType = "device_location_denied"
	ErrorTypeDeviceLocationUnavailable ErrorType = "device_location_unavailable"
	ErrorTypeDeviceLocationTimeout     ErrorType = "device_location_timeout"
	ErrorTypeProviderUnavailable       ErrorType = "provider_unavailable"
	ErrorTypeNoResults                 ErrorType = "no_results"
	ErrorTypeValidation                ErrorType = "validation"
	ErrorTypeUnknown                   ErrorType = "unknown"
)

// User-facing messages
const (
	MessageLocationNotFound     = "Location not found"
	MessageNoResults            = "No restaurants found"
	MessageProviderExhausted    = "Failed to fetch restaurants. Please try again."
	MessageDeviceDenied         = "Location access was denied"
	MessageDeviceUnavailable    = "Your current location is unavailable"
	MessageDeviceTimeout        = "Timed out while determining your current location"
	MessageProviderUnavailable  = "The places service is currently unavailable"
	MessageSearchSuperseded     = "Search was replaced by a newer search"
	MessageInvalidSearchRequest = "Enter an address or a latitude/longitude pair"
)

// SearchError is a typed, displayable error
type SearchError struct {
	Type       ErrorType     `json:"type"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Err        error         `json:"-"`
}

func (e *SearchError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

func (e *SearchError) IsRetryable() bool {
	return e.Retryable
}

// NewSearchError creates a non-retryable error
func NewSearchError(errType ErrorType, message string, cause error) *SearchError {
	return &SearchError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       cause,
	}
}

// NewRetryableSearchError creates a retryable error
func NewRetryableSearchError(errType ErrorType, message string, retryAfter time.Duration, cause error) *SearchError {
	return &SearchError{
		Type:       errType,
		Message:    message,
		Retryable:  true,
		RetryAfter: retryAfter,
		Timestamp:  time.Now(),
		Err:        cause,
	}
}

// ErrorTypeOf returns the type of the first SearchError in err's chain
func ErrorTypeOf(err error) ErrorType {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Type
	}
	if err == nil {
		return ""
	}
	return ErrorTypeUnknown
}

// IsErrorType reports whether err carries the given type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && ErrorTypeOf(err) == errType
}

// DisplayMessage returns the text to show a user for err
func DisplayMessage(err error) string {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return MessageProviderExhausted
}
