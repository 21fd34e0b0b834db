package rod

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fwojciec/listgrab"
)

// DefaultFetchTimeout bounds one rendered fetch.
const DefaultFetchTimeout = 30 * time.Second

var _ listgrab.Fetcher = (*Fetcher)(nil)

// Fetcher returns the HTML of a page after its scripts have run. It is the
// static path for sites that render their lists client side.
//
// Fetcher is safe for concurrent use.
type Fetcher struct {
	manager *BrowserManager
	owned   bool
	timeout time.Duration
	closed  atomic.Bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchTimeout sets the timeout for one fetch.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithManager makes the Fetcher use pages from bm. The caller keeps
// ownership of bm.
func WithManager(bm *BrowserManager) FetcherOption {
	return func(f *Fetcher) {
		f.manager = bm
	}
}

// NewFetcher returns a Fetcher. Without WithManager it launches its own
// browser, which Close shuts down.
func NewFetcher(opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(f)
	}
	if f.manager == nil {
		bm, err := NewBrowserManager()
		if err != nil {
			return nil, err
		}
		f.manager = bm
		f.owned = true
	}
	return f, nil
}

// Fetch navigates a fresh page to url and returns its rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.closed.Load() {
		return "", listgrab.Errorf(listgrab.EINVALID, "fetcher closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	page, err := f.manager.NewPage()
	if err != nil {
		return "", err
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("waiting for %s: %w", url, err)
	}
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	f.manager.IncrementPageCount()
	return html, nil
}

// LauncherPID returns the process ID of the browser launcher.
func (f *Fetcher) LauncherPID() int {
	return f.manager.LauncherPID()
}

// Close shuts down the browser if the Fetcher launched it. Close is safe to
// call multiple times.
func (f *Fetcher) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f.owned {
		return f.manager.Close()
	}
	return nil
}
