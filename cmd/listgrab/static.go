package main

import (
	"fmt"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/goquery"
	"github.com/fwojciec/listgrab/pattern"
)

// Run executes the static command.
func (c *StaticCmd) Run(deps *Dependencies) error {
	if err := c.run(deps); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", message(err))
		return err
	}
	return nil
}

func (c *StaticCmd) run(deps *Dependencies) error {
	if err := c.validate(); err != nil {
		return err
	}
	if deps.Fetcher == nil {
		return listgrab.Errorf(listgrab.EINVALID, "fetcher unavailable")
	}
	job, err := LoadJobConfig(c.Config)
	if err != nil {
		return err
	}
	ctx := deps.Ctx

	html, err := deps.Fetcher.Fetch(ctx, c.URL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", c.URL, err)
	}
	doc, err := goquery.NewDocument(html)
	if err != nil {
		return err
	}

	detector, err := pattern.NewDetector(doc, job.Detector, pattern.WithLogger(deps.logger()))
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
	collector.Resolver = detector

	exp, err := c.begin(ctx, deps, c.URL, loc.templateID)
	if err != nil {
		return err
	}
	collector.Items = exp.sink

	res, err := collector.Harvest(ctx, loc.match)
	if err != nil {
		exp.fail(ctx, err)
		return err
	}
	return exp.finish(ctx, res)
}
