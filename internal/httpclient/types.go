package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the upstream did not answer within the configured timeouts
	ErrTimeout = errors.New("upstream request timed out")
	// ErrConnectionFailed is returned when the upstream could not be reached at all
	ErrConnectionFailed = errors.New("upstream connection failed")
)

// HTTPError represents a non-success HTTP status returned by an upstream
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// StatusCode returns the upstream status code carried by err, or 0 when err is
// not (or does not wrap) an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsTransport reports whether err is one of the transport failures produced by this package.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed) || StatusCode(err) != 0
}
