package erp

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

var (
	// ErrUnexpectedStatus is wrapped by every HTTPError.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrNotAuthenticated is returned by Login and LoggedUser on auth failures.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, truncate(e.Body, 200))
}

func (e *HTTPError) Unwrap() error { return ErrUnexpectedStatus }

var csrfPattern = regexp.MustCompile(`(?i)csrf`)

// looksLikeCSRF is the heuristic used to decide whether a rejected write is
// worth one retry with a fresh token.
func looksLikeCSRF(status int, body string) bool {
	return status == http.StatusForbidden || csrfPattern.MatchString(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
