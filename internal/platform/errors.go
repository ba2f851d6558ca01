// ABOUTME: Platform API error types and the user-facing error taxonomy
// ABOUTME: Maps HTTP statuses and transport failures to fixed messages returned to tool callers

package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConnectivity wraps transport-level failures (DNS, refused connections, timeouts).
var ErrConnectivity = errors.New("platform connectivity error")

// User-facing messages
const (
	MsgInvalidAPIKey    = "Invalid API key"
	MsgPermissionDenied = "Permission denied"
	MsgNotFound         = "Resource not found"
	MsgBadRequest       = "Bad request"
	MsgInternal         = "Internal platform error"
	MsgConnectivity     = "Platform connectivity error"
)

// Error is a non-2xx response from the platform API.
type Error struct {
	StatusCode int
	// Message is the platform-provided error text, if any.
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("platform returned status %d: %s", e.StatusCode, e.Message)
}

// UserMessage maps an error from the client to the fixed message shown to callers.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return MsgInvalidAPIKey
		case apiErr.StatusCode == http.StatusForbidden:
			return MsgPermissionDenied
		case apiErr.StatusCode == http.StatusNotFound:
			return MsgNotFound
		case apiErr.StatusCode >= 500:
			return MsgInternal
		default:
			// 400 and the remaining 4xx pass the platform's own message through.
			if apiErr.Message != "" {
				return apiErr.Message
			}
			return MsgBadRequest
		}
	}

	if errors.Is(err, ErrConnectivity) {
		return MsgConnectivity
	}
	return MsgInternal
}

// IsStatus reports whether err is a platform Error with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
