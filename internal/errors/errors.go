package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input parameters")

	// ErrRateLimit is returned when GitHub API rate limit is exceeded
	ErrRateLimit = errors.New("github api rate limit exceeded")

	// ErrGitHubAPI is returned when GitHub API returns an error
	ErrGitHubAPI = errors.New("github api error")

	// ErrListingFailed is returned when the repository listing could not be fetched
	ErrListingFailed = errors.New("repository listing failed")

	// ErrDatabase is returned when a database operation fails
	ErrDatabase = errors.New("database error")

	// ErrStoreDisabled is returned when snapshot history is requested without a database
	ErrStoreDisabled = errors.New("snapshot store not configured")
)

// GitHubError represents a GitHub API error
type GitHubError struct {
	Op         string
	Request    string
	StatusCode int
	Err        error
}

func (e *GitHubError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("github api operation %s failed for request %s (status %d): %v", e.Op, e.Request, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("github api operation %s failed for request %s: %v", e.Op, e.Request, e.Err)
}

func (e *GitHubError) Unwrap() error {
	return e.Err
}

// NewGitHubError creates a new GitHubError
func NewGitHubError(op, request string, err error) error {
	return &GitHubError{
		Op:      op,
		Request: request,
		Err:     err,
	}
}

// NewGitHubStatusError creates a GitHubError for a non-2xx response. 404
// responses wrap ErrNotFound, everything else wraps ErrGitHubAPI.
func NewGitHubStatusError(op, request string, status int, message string) error {
	base := ErrGitHubAPI
	if status == 404 {
		base = ErrNotFound
	}
	err := base
	if message != "" {
		err = fmt.Errorf("%w: %s", base, message)
	}
	return &GitHubError{
		Op:         op,
		Request:    request,
		StatusCode: status,
		Err:        err,
	}
}

// DatabaseError represents a database operation error
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database operation %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(op string, err error) error {
	return &DatabaseError{
		Op:  op,
		Err: fmt.Errorf("%w: %v", ErrDatabase, err),
	}
}

// StatusCode extracts the HTTP status carried by a GitHubError, or 0
func StatusCode(err error) int {
	var ghErr *GitHubError
	if errors.As(err, &ghErr) {
		return ghErr.StatusCode
	}
	return 0
}

// Is checks if the target error matches any of our custom errors
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
