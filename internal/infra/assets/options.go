package assets

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds a single weight download.
const DefaultRequestTimeout = 5 * time.Minute

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Store.
type Option func(*Store)

// WithBaseURL points downloads at a different host (mirrors, tests).
func WithBaseURL(url string) Option {
	return func(s *Store) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client for downloads.
// If not set, a client with DefaultRequestTimeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ProgressFunc receives download progress. pct is in [0, 100].
type ProgressFunc func(status string, pct float64)
