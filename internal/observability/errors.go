package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/baxromumarov/job-ingest/internal/httpx"
	"github.com/baxromumarov/job-ingest/internal/scraper"
	"github.com/baxromumarov/job-ingest/internal/store"
)

const (
	ErrorNetwork   = "network"
	ErrorTimeout   = "timeout"
	ErrorParsing   = "parsing"
	ErrorRateLimit = "rate_limit"
	ErrorPermanent = "permanent"
	ErrorStore     = "store"
	ErrorPanic     = "panic"
	ErrorUnknown   = "unknown"
)

// ErrRunPanicked marks a run that was recovered from a panic.
var ErrRunPanicked = errors.New("scrape run panicked")

func ClassifyFetchError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	var fe *httpx.FetchError
	if errors.As(err, &fe) {
		switch {
		case fe.Status == http.StatusTooManyRequests:
			return ErrorRateLimit
		case httpx.IsAuthStatus(fe.Status):
			return ErrorPermanent
		case errors.Is(fe.Err, context.DeadlineExceeded):
			return ErrorTimeout
		default:
			return ErrorNetwork
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorUnknown
}

// Classify maps an error to one of the metric kinds above.
func Classify(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	if errors.Is(err, ErrRunPanicked) {
		return ErrorPanic
	}
	if store.IsPersistenceError(err) {
		return ErrorStore
	}
	if kind := ClassifyFetchError(err); kind != ErrorUnknown {
		return kind
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "parse failed") ||
		strings.Contains(msg, "decode failed") ||
		strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "invalid character") {
		return ErrorParsing
	}
	if scraper.IsPermanent(err) {
		return ErrorPermanent
	}
	if scraper.IsTransient(err) {
		return ErrorNetwork
	}
	return ErrorUnknown
}
