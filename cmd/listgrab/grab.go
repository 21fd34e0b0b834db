package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/pattern"
	"github.com/fwojciec/listgrab/scroll"
	lgslog "github.com/fwojciec/listgrab/slog"
)

// Run executes the grab command.
func (c *GrabCmd) Run(deps *Dependencies) error {
	if err := c.run(deps); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", message(err))
		return err
	}
	return nil
}

func (c *GrabCmd) run(deps *Dependencies) error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.MaxItems < 0 {
		return listgrab.Errorf(listgrab.EINVALID, "max items must not be negative, got %d", c.MaxItems)
	}
	if deps.Pages == nil {
		return listgrab.Errorf(listgrab.EINVALID, "browser unavailable")
	}
	job, err := LoadJobConfig(c.Config)
	if err != nil {
		return err
	}
	if c.MaxItems > 0 {
		job.Scroller.MaxItems = c.MaxItems
	}
	logger := deps.logger()

	ctx := deps.Ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	page, err := deps.Pages.Open(ctx, c.URL)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.URL, err)
	}
	defer func() { _ = page.Close() }()

	doc := lgslog.NewLoggingDocument(page, logger)
	opts := []pattern.DetectorOption{pattern.WithLogger(logger)}
	if h, ok := page.(listgrab.Highlighter); ok {
		opts = append(opts, pattern.WithHighlighter(h))
	}
	detector, err := pattern.NewDetector(doc, job.Detector, opts...)
	if err != nil {
		return err
	}

	loc, err := c.locate(ctx, deps, doc, detector, c.URL)
	if err != nil {
		return err
	}

	collector, err := c.collector(deps, job, doc, c.URL)
	if err != nil {
		return err
	}
	scroller := scroll.NewScroller(doc,
		scroll.WithLogger(logger),
		scroll.WithItemSelectors(loc.selectors.FullItemSelector, loc.selectors.ItemSelector),
	)
	defer func() { _ = scroller.Close() }()
	collector.Resolver = detector
	collector.Scroller = scroller
	collector.MaxItems = c.MaxItems

	exp, err := c.begin(ctx, deps, c.URL, loc.templateID)
	if err != nil {
		return err
	}
	collector.Items = exp.sink

	res, err := collector.Run(ctx, loc.match, job.Scroller)
	if err != nil {
		exp.fail(ctx, err)
		return err
	}
	return exp.finish(ctx, res)
}
