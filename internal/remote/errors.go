package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrStaleVersion is returned when the provider rejects a caller-supplied version token.
	ErrStaleVersion = errors.New("remote version is stale")

	// ErrCreateFailed is returned when every creation strategy was rejected.
	ErrCreateFailed = errors.New("failed to create remote file")
)

type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}

	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func isNotFound(err error) bool {
	if apiErr, ok := errors.AsType[*APIError](err); ok {
		return apiErr.StatusCode == http.StatusNotFound
	}

	return false
}

// isConflict reports whether the provider rejected a write because of the version token.
func isConflict(err error) bool {
	apiErr, ok := errors.AsType[*APIError](err)
	if !ok {
		return false
	}

	switch apiErr.StatusCode {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(apiErr.Message), "sha")
	}

	return false
}
