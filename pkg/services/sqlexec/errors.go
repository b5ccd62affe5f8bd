/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ValidationError reports a malformed statement. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid statement: " + e.Reason
}

// TimeoutError reports an attempt that exceeded its time budget.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query timeout after %s", e.Timeout)
}

// HTTPError reports a non-2xx response of the SQL endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// DatabaseError reports an error raised by the database or the exhaustion of retries.
type DatabaseError struct {
	Message  string
	Code     string
	Attempts uint
	Err      error
}

func (e *DatabaseError) Error() string {
	if e.Attempts > 0 && e.Err != nil {
		return fmt.Sprintf("query failed after %d attempts, last error: %v", e.Attempts, e.Err)
	}

	if e.Code != "" {
		return fmt.Sprintf("database error: %s (SQLSTATE %s)", e.Message, e.Code)
	}

	return "database error: " + e.Message
}

// Unwrap returns the last underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

var nonRetryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)syntax error`),
	regexp.MustCompile(`(?i)permission denied`),
	regexp.MustCompile(`(?i)relation .* does not exist`),
	regexp.MustCompile(`(?i)column .* does not exist`),
	regexp.MustCompile(`(?i)duplicate key`),
	regexp.MustCompile(`(?i)violates.*constraint`),
}

// IsRetryable decides whether a failed attempt may be repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var dbErr *DatabaseError
	if errors.As(err, &dbErr) && isPermanentSQLState(dbErr.Code) {
		return false
	}

	msg := err.Error()

	for _, pattern := range nonRetryablePatterns {
		if pattern.MatchString(msg) {
			return false
		}
	}

	return true
}

// isPermanentSQLState reports integrity constraint violations (class 23)
// and syntax or access rule violations (class 42).
func isPermanentSQLState(code string) bool {
	return strings.HasPrefix(code, "23") || strings.HasPrefix(code, "42")
}
