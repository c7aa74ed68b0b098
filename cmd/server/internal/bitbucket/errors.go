package bitbucket

import (
	"errors"
	"fmt"
)

// Error classes returned by the repository client. Callers should use errors.Is.
var (
	// ErrNotFound the path, ref or object does not exist on the host.
	ErrNotFound = errors.New("bitbucket: not found")
	// ErrAuthFailure the host rejected the configured credentials.
	ErrAuthFailure = errors.New("bitbucket: authentication failed")
	// ErrConflict a branch or name with the same identity already exists.
	ErrConflict = errors.New("bitbucket: conflict")
	// ErrHost any other host failure, including transport errors and timeouts.
	// A commit that failed with ErrHost may or may not have been applied.
	ErrHost = errors.New("bitbucket: host error")
)

// APIError carries the operation and HTTP status of a failed host call.
type APIError struct {
	Op         string // read, commit, create_branch, create_pull_request, list_commits
	StatusCode int    // 0 for transport failures
	Message    string
	Err        error // one of the error classes above
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s: %s", e.Err, e.Op, e.Message)
	}
	return fmt.Sprintf("%v: %s: HTTP %d: %s", e.Err, e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func newAPIError(op string, status int, message string, class error) *APIError {
	return &APIError{Op: op, StatusCode: status, Message: message, Err: class}
}
