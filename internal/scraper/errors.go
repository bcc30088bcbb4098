package scraper

import (
	"errors"
	"fmt"

	"github.com/baxromumarov/job-ingest/internal/httpx"
)

var (
	ErrMissingClient = errors.New("adapter requires an http client")
	ErrInvalidConfig = errors.New("invalid source configuration")
)

// TransientError wraps failures that may succeed on retry: network errors,
// timeouts, 5xx and 429 responses.
type TransientError struct {
	Source Source
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError wraps failures that retrying cannot fix, such as bad
// configuration or rejected credentials.
type PermanentError struct {
	Source Source
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent: %v", e.Source, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Classify wraps err as a TransientError or PermanentError. Errors that are
// already classified are returned unchanged.
func Classify(src Source, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingClient) {
		return &PermanentError{Source: src, Err: err}
	}
	var fe *httpx.FetchError
	if errors.As(err, &fe) && httpx.IsAuthStatus(fe.Status) {
		return &PermanentError{Source: src, Err: err}
	}
	if httpx.IsRetryable(err) {
		return &TransientError{Source: src, Err: err}
	}
	return &PermanentError{Source: src, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
