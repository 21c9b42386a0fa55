package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
)

// Places Web Service status values
const (
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusRequestDenied  = "REQUEST_DENIED"
	statusInvalidRequest = "INVALID_REQUEST"
	statusNotFound       = "NOT_FOUND"
	statusUnknownError   = "UNKNOWN_ERROR"
)

// HTTPStatusError is returned for non-2xx HTTP responses
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// statusFromError extracts the API status from the maps library's
// "maps: STATUS - message" errors
func statusFromError(err error) (status, message string, ok bool) {
	text, found := strings.CutPrefix(err.Error(), "maps: ")
	if !found {
		return "", "", false
	}
	status, message, _ = strings.Cut(text, " - ")
	switch status {
	case statusZeroResults, statusOverQueryLimit, statusRequestDenied,
		statusInvalidRequest, statusNotFound, statusUnknownError:
		return status, strings.TrimSpace(message), true
	}
	return "", "", false
}

func isZeroResults(err error) bool {
	status, _, ok := statusFromError(err)
	return ok && status == statusZeroResults
}

// classifyError maps an error from the maps client to a SearchError
func classifyError(err error, pageToken bool) error {
	var searchErr *types.SearchError
	if errors.As(err, &searchErr) {
		return err
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return ClassifyHTTPError(httpErr.StatusCode, httpErr.Body)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassifyConnectionError(err)
	}

	if status, message, ok := statusFromError(err); ok {
		return ClassifyStatus(status, message, pageToken)
	}

	return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, err)
}

// ClassifyStatus maps a non-OK, non-ZERO_RESULTS API status to a SearchError.
// pageToken marks continuation requests, whose token may not be active yet.
func ClassifyStatus(status, message string, pageToken bool) *types.SearchError {
	detail := status
	if message != "" {
		detail = fmt.Sprintf("%s: %s", status, message)
	}
	cause := errors.New(detail)

	switch status {
	case statusOverQueryLimit:
		se := types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 2*time.Second, cause)
		se.Suggestion = "Lower PLACES_RATE_LIMIT or check the API quota."
		return se
	case statusUnknownError:
		return types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, time.Second, cause)
	case statusInvalidRequest:
		if pageToken {
			return types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 2*time.Second, cause)
		}
		return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, cause)
	case statusRequestDenied:
		se := types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, cause)
		se.Suggestion = "Check GOOGLE_MAPS_API_KEY and that the Places API is enabled."
		return se
	case statusNotFound:
		return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, cause)
	default:
		return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, fmt.Errorf("unexpected status %s", detail))
	}
}

// ClassifyHTTPError maps a non-200 HTTP response to a SearchError
func ClassifyHTTPError(statusCode int, body string) *types.SearchError {
	cause := fmt.Errorf("unexpected HTTP status %d: %s", statusCode, strings.TrimSpace(body))

	var se *types.SearchError
	switch {
	case statusCode == http.StatusTooManyRequests:
		se = types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 10*time.Second, cause)
		se.Suggestion = "Reduce the request rate."
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		se = types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 5*time.Second, cause)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		se = types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, cause)
		se.Suggestion = "Check GOOGLE_MAPS_API_KEY."
	default:
		se = types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, cause)
	}
	se.StatusCode = statusCode
	return se
}

// ClassifyConnectionError maps a transport failure to a SearchError
func ClassifyConnectionError(err error) *types.SearchError {
	if errors.Is(err, context.Canceled) {
		return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, err)
	}

	errMsg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(errMsg, "timeout"):
		se := types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 5*time.Second, err)
		se.Suggestion = "Check network connectivity to the places service."
		return se
	case strings.Contains(errMsg, "no such host"):
		se := types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, err)
		se.Suggestion = "Check PLACES_BASE_URL."
		return se
	default:
		return types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 5*time.Second, err)
	}
}
