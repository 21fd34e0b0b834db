package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/listgrab"
)

// DefaultRetryDelays returns the backoff delays for fetch retries: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

var _ listgrab.Fetcher = (*RetryFetcher)(nil)

// RetryFetcher retries failed fetches after each of its delays in turn.
// Missing pages and invalid requests fail immediately.
type RetryFetcher struct {
	next   listgrab.Fetcher
	delays []time.Duration
	logger *slog.Logger
}

// NewRetryFetcher wraps next. A nil logger discards retry messages.
func NewRetryFetcher(next listgrab.Fetcher, delays []time.Duration, logger *slog.Logger) *RetryFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RetryFetcher{next: next, delays: delays, logger: logger}
}

// Fetch makes up to len(delays)+1 attempts and returns the last error.
func (f *RetryFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(f.delays); attempt++ {
		html, err := f.next.Fetch(ctx, url)
		if err == nil {
			return html, nil
		}
		lastErr = err

		switch listgrab.ErrorCode(err) {
		case listgrab.ENOTFOUND, listgrab.EINVALID:
			return "", err
		}
		if attempt == len(f.delays) {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		f.logger.Warn("retrying fetch", "url", url, "attempt", attempt+2, "err", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delays[attempt]):
		}
	}
	return "", lastErr
}

// Close closes the wrapped fetcher.
func (f *RetryFetcher) Close() error {
	return f.next.Close()
}
