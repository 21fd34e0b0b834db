// Package harvest collects deduplicated items from the members of a pattern
// while a scroller loads more of the page.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/pattern"
	"github.com/fwojciec/listgrab/scroll"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Defaults.
const (
	DefaultInterval = 500 * time.Millisecond

	// finalPassTimeout bounds the pass that runs after the scroller stops,
	// which may happen because ctx was canceled.
	finalPassTimeout = 30 * time.Second
)

// Resolver returns the live members of a pattern.
type Resolver interface {
	ResolveCurrentMembers(ctx context.Context, match *listgrab.PatternMatch) ([]listgrab.Element, error)
}

var _ Resolver = (*pattern.Detector)(nil)

// Collector extracts items from pattern members on a page.
type Collector struct {
	Doc       listgrab.Document
	Resolver  Resolver
	Scroller  *scroll.Scroller
	Extractor listgrab.Extractor

	// Converter, when set, adds a markdown field to every item.
	Converter listgrab.Converter

	// Items, when set, receives each batch of new items.
	Items listgrab.ItemSink

	// BaseURL resolves relative links in items.
	BaseURL string

	// Interval is the minimum spacing between harvest passes.
	Interval time.Duration

	// MaxItems stops the run once this many unique items are collected.
	// Zero means unbounded.
	MaxItems int

	Logger *slog.Logger
}

// Result is the outcome of a harvest.
type Result struct {
	Items    []*listgrab.Item
	Status   listgrab.ScrollerStatus
	Errors   []string
	Passes   int
	Canceled bool
}

// harvest is the state of one run.
type harvest struct {
	c      *Collector
	dedup  *Deduper
	items  []*listgrab.Item
	passes int
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Collector) validate() error {
	if c.Doc == nil {
		return listgrab.Errorf(listgrab.EINVALID, "document required")
	}
	if c.Extractor == nil {
		return listgrab.Errorf(listgrab.EINVALID, "extractor required")
	}
	if c.MaxItems < 0 {
		return listgrab.Errorf(listgrab.EINVALID, "max items must not be negative, got %d", c.MaxItems)
	}
	return nil
}

// Run starts the scroller with cfg and harvests the members of match after
// every scroller state change and at least every Interval, until the
// scroller stops, MaxItems unique items are collected or ctx is done. One
// final pass runs after the scroller stops.
//
// Returns EINVALID if the Collector is incomplete and ECONFLICT if the
// scroller is already running.
func (c *Collector) Run(ctx context.Context, match *listgrab.PatternMatch, cfg listgrab.ScrollerConfig) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Resolver == nil || c.Scroller == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "resolver and scroller required")
	}
	if match == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "pattern match required")
	}
	logger := c.logger()

	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	h := &harvest{c: c, dedup: NewDeduper(0)}
	trigger := make(chan struct{}, 1)
	done := make(chan struct{})
	var once sync.Once

	// Runs on the scroller's tick goroutine: only signal.
	remove := c.Scroller.AddListener(listgrab.ProgressListenerFunc(func(s listgrab.ScrollerState) {
		switch s.Status {
		case listgrab.StatusIdle, listgrab.StatusError:
			once.Do(func() { close(done) })
		default:
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}))
	defer remove()

	if err := c.Scroller.Start(ctx, cfg); err != nil {
		return nil, fmt.Errorf("starting scroller: %w", err)
	}
	logger.Info("harvest started", "url", c.BaseURL, "members", len(match.Siblings))

	resolve := func(ctx context.Context) ([]listgrab.Element, error) {
		return c.Resolver.ResolveCurrentMembers(ctx, match)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Waiter: stop the scroller when the run is canceled.
	g.Go(func() error {
		select {
		case <-done:
		case <-gctx.Done():
			c.stopScroller()
		}
		return nil
	})

	g.Go(func() error {
		limiter := rate.NewLimiter(rate.Every(interval), 1)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-trigger:
			case <-ticker.C:
			}
			if err := limiter.Wait(gctx); err != nil {
				return nil
			}
			if err := h.pass(gctx, resolve); err != nil {
				return err
			}
			if h.full() {
				logger.Info("item limit reached", "items", len(h.items))
				c.stopScroller()
				return nil
			}
		}
	})

	err := g.Wait()
	c.stopScroller()
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalPassTimeout)
	defer cancel()
	if !h.full() {
		if err := h.pass(fctx, resolve); err != nil {
			return nil, err
		}
	}

	state := c.Scroller.State()
	res := &Result{
		Items:    h.items,
		Status:   state.Status,
		Errors:   state.Errors,
		Passes:   h.passes,
		Canceled: ctx.Err() != nil,
	}
	logger.Info("harvest finished",
		"items", len(res.Items),
		"passes", res.Passes,
		"status", res.Status,
		"lastError", state.LastError(),
	)
	return res, nil
}

// HarvestStatic detects the pattern around seed and extracts its members
// once, without scrolling. Returns ENOTFOUND if no pattern is detected.
func (c *Collector) HarvestStatic(ctx context.Context, seed listgrab.Element, cfg listgrab.DetectorConfig) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "seed element required")
	}

	match, err := pattern.Detect(ctx, c.Doc, seed, cfg)
	if err != nil {
		return nil, fmt.Errorf("detecting pattern: %w", err)
	}
	if match == nil {
		return nil, listgrab.Errorf(listgrab.ENOTFOUND, "no repeating pattern around seed")
	}
	return c.Harvest(ctx, match)
}

// Harvest extracts the current members of match once.
func (c *Collector) Harvest(ctx context.Context, match *listgrab.PatternMatch) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if match == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "pattern match required")
	}

	h := &harvest{c: c, dedup: NewDeduper(0)}
	members := func(ctx context.Context) ([]listgrab.Element, error) {
		if c.Resolver != nil {
			return c.Resolver.ResolveCurrentMembers(ctx, match)
		}
		return match.Siblings, nil
	}
	if err := h.pass(ctx, members); err != nil {
		return nil, err
	}
	return &Result{
		Items:  h.items,
		Status: listgrab.StatusIdle,
		Passes: h.passes,
	}, nil
}

func (c *Collector) stopScroller() {
	switch c.Scroller.State().Status {
	case listgrab.StatusRunning, listgrab.StatusPaused:
		c.Scroller.Stop()
	}
}

func (h *harvest) full() bool {
	return h.c.MaxItems > 0 && len(h.items) >= h.c.MaxItems
}

// pass extracts every member not seen before and hands the new items to the
// sink. Members that fail to extract are skipped.
func (h *harvest) pass(ctx context.Context, members func(context.Context) ([]listgrab.Element, error)) error {
	c := h.c
	logger := c.logger()
	h.passes++

	els, err := members(ctx)
	if err != nil {
		logger.Warn("resolving members failed", "err", err)
		return nil
	}

	var fresh []*listgrab.Item
	for _, el := range els {
		if h.full() {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		html, err := c.Doc.OuterHTML(ctx, el)
		if err != nil {
			logger.Debug("reading member failed", "key", el.Key(), "err", err)
			continue
		}
		item, err := c.Extractor.Extract(html, c.BaseURL)
		if err != nil {
			logger.Debug("extracting member failed", "key", el.Key(), "err", err)
			continue
		}
		if !h.dedup.Add(item) {
			continue
		}
		if c.Converter != nil {
			md, err := c.Converter.Convert(html)
			if err != nil {
				logger.Debug("converting member failed", "key", item.Key, "err", err)
			} else {
				item.Fields[FieldMarkdown] = md
			}
		}
		item.Index = len(h.items)
		h.items = append(h.items, item)
		fresh = append(fresh, item)
	}

	logger.Debug("harvest pass", "pass", h.passes, "members", len(els), "new", len(fresh), "total", len(h.items))
	if len(fresh) == 0 || c.Items == nil {
		return nil
	}
	if err := c.Items.WriteItems(fresh); err != nil {
		return fmt.Errorf("writing items: %w", err)
	}
	return nil
}
