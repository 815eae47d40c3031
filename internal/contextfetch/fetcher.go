// Package contextfetch retrieves the auxiliary text injected into prompts.
package contextfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vecihi-bot/internal/models"
)

// DefaultMaxBytes caps the context body when no limit is configured (5 MB)
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// Fetcher downloads context text. Every call performs a fresh request:
// there is no cache and no retry.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   zerolog.Logger
}

// New creates a Fetcher. A zero timeout leaves requests bounded only by the
// caller's context.
func New(timeout time.Duration, maxBytes int64, logger zerolog.Logger) *Fetcher {
	return NewWithClient(&http.Client{Timeout: timeout}, maxBytes, logger)
}

// NewWithClient creates a Fetcher using the given HTTP client
func NewWithClient(client *http.Client, maxBytes int64, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "contextfetch").Logger(),
	}
}

// Fetch returns the body at url as text. An empty url yields an empty string
// without touching the network. The response status is not interpreted: an
// error page is returned as context just like a normal body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: invalid context url: %v", models.ErrDependency, err)
	}

	startTime := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: context fetch failed: %v", models.ErrDependency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read context: %v", models.ErrDependency, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("Context URL returned non-success status")
	}

	f.logger.Debug().
		Str("url", url).
		Int("length", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Context fetched")

	return string(body), nil
}
