package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch error %s (status %d)", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch error %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrRobotsDisallowed is returned when robots.txt forbids the target path.
var ErrRobotsDisallowed = errors.New("blocked by robots.txt")

// IsRetryable reports whether err is a transient transport or server failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrRobotsDisallowed) {
		return false
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Status > 0 {
		return ShouldBackoff(fe.Status)
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}

// ShouldBackoff reports whether a response status warrants a retry.
func ShouldBackoff(status int) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500 && status <= 599:
		return true
	}
	return false
}

// IsAuthStatus reports statuses that no amount of retrying will fix.
func IsAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
