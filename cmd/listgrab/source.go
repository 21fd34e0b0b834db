package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/fs"
	"github.com/fwojciec/listgrab/goquery"
	"github.com/fwojciec/listgrab/harvest"
	"github.com/fwojciec/listgrab/pattern"
	lgslog "github.com/fwojciec/listgrab/slog"
)

func (f *SourceFlags) validate() error {
	if f.Seed == "" && f.Template == "" {
		return listgrab.Errorf(listgrab.EINVALID, "a seed selector or --template is required")
	}
	if f.Seed != "" && f.Template != "" {
		return listgrab.Errorf(listgrab.EINVALID, "use either a seed selector or --template, not both")
	}
	return nil
}

// located is a locked pattern ready to harvest.
type located struct {
	match      *listgrab.PatternMatch
	selectors  *listgrab.Selectors
	templateID string
}

// locate finds the list on doc, from the seed or from a saved template, and
// locks it on detector. With --save-template the locked pattern is stored.
func (f *SourceFlags) locate(ctx context.Context, deps *Dependencies, doc listgrab.Document, detector *pattern.Detector, pageURL string) (*located, error) {
	host, err := hostOf(pageURL)
	if err != nil {
		return nil, err
	}

	loc := &located{}
	if f.Template != "" {
		tmpl, err := findTemplate(ctx, deps, host, f.Template)
		if err != nil {
			return nil, err
		}
		match, err := pattern.MatchTemplate(ctx, doc, tmpl, detector.Config())
		if err != nil {
			return nil, fmt.Errorf("applying template %q: %w", tmpl.Name, err)
		}
		if loc.selectors, err = detector.LockMatch(ctx, match); err != nil {
			return nil, err
		}
		loc.match = match
		loc.templateID = tmpl.ID
	} else {
		seeds, err := doc.QueryAll(ctx, f.Seed)
		if err != nil {
			return nil, err
		}
		if len(seeds) == 0 {
			return nil, listgrab.Errorf(listgrab.ENOTFOUND, "no element matches seed selector %q", f.Seed)
		}
		match, err := detector.Hover(ctx, seeds[0])
		if err != nil {
			return nil, fmt.Errorf("detecting pattern: %w", err)
		}
		if match == nil {
			return nil, listgrab.Errorf(listgrab.ENOTFOUND, "no repeating pattern around %q", f.Seed)
		}
		if loc.selectors, err = detector.Lock(ctx); err != nil {
			return nil, err
		}
		loc.match = match
	}

	fmt.Fprintf(deps.Stdout, "Found %d items in %s (confidence %.1f)\n",
		len(loc.match.Siblings), loc.selectors.ContainerSelector, loc.match.Confidence)

	if f.SaveTemplate != "" {
		id, err := saveTemplate(ctx, deps, host, f.SaveTemplate, loc)
		if err != nil {
			return nil, err
		}
		if loc.templateID == "" {
			loc.templateID = id
		}
	}
	return loc, nil
}

func saveTemplate(ctx context.Context, deps *Dependencies, host, name string, loc *located) (string, error) {
	if deps.Templates == nil {
		return "", listgrab.Errorf(listgrab.EINVALID, "template storage unavailable")
	}
	tmpl, err := pattern.NewTemplate(host, name, loc.selectors, loc.match)
	if err != nil {
		return "", err
	}
	if err := deps.Templates.CreateTemplate(ctx, tmpl); err != nil {
		return "", fmt.Errorf("saving template %q: %w", name, err)
	}
	fmt.Fprintf(deps.Stdout, "Saved template %q for %s\n", name, host)
	return tmpl.ID, nil
}

func findTemplate(ctx context.Context, deps *Dependencies, host, name string) (*listgrab.Template, error) {
	if deps.Templates == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "template storage unavailable")
	}
	found, err := deps.Templates.FindTemplates(ctx, listgrab.TemplateFilter{Host: &host, Name: &name})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, listgrab.Errorf(listgrab.ENOTFOUND, "template %q not found for %s", name, host)
	}
	return found[0], nil
}

func hostOf(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", listgrab.Errorf(listgrab.EINVALID, "invalid URL %q", pageURL)
	}
	return u.Hostname(), nil
}

// collector returns a Collector with the extractor and converter the flags
// ask for. Scroller and Resolver are left to the caller.
func (f *SourceFlags) collector(deps *Dependencies, job *JobConfig, doc listgrab.Document, pageURL string) (*harvest.Collector, error) {
	e, err := goquery.NewExtractor(job.Fields)
	if err != nil {
		return nil, err
	}
	c := &harvest.Collector{
		Doc:       doc,
		Extractor: lgslog.NewLoggingExtractor(e, deps.logger()),
		BaseURL:   pageURL,
		Interval:  job.Interval,
		Logger:    deps.logger(),
	}
	if f.Markdown {
		if deps.Converter == nil {
			return nil, listgrab.Errorf(listgrab.EINVALID, "markdown conversion unavailable")
		}
		c.Converter = deps.Converter
	}
	return c, nil
}

// export is the output of one harvest: the item file and the run record.
type export struct {
	deps   *Dependencies
	writer *fs.ItemWriter
	run    *listgrab.Run
	sink   listgrab.ItemSink
}

// begin opens the output file and records a new run.
func (f *SourceFlags) begin(ctx context.Context, deps *Dependencies, pageURL, templateID string) (*export, error) {
	format := fs.FormatFromPath(f.Output)
	if f.Format != "" {
		var err error
		if format, err = fs.ParseFormat(f.Format); err != nil {
			return nil, err
		}
	}
	w, err := fs.NewItemWriter(f.Output, format)
	if err != nil {
		return nil, err
	}

	e := &export{deps: deps, writer: w}
	var stored listgrab.ItemSink
	if deps.Runs != nil {
		run := &listgrab.Run{URL: pageURL, TemplateID: templateID}
		if err := deps.Runs.CreateRun(ctx, run); err != nil {
			_ = w.Abort()
			return nil, fmt.Errorf("recording run: %w", err)
		}
		e.run = run
		if deps.Items != nil {
			stored = listgrab.RunItemSink(ctx, deps.Items, run.ID)
		}
	}
	e.sink = listgrab.MultiSink(w, stored)
	return e, nil
}

// finish commits the output file and closes the run record.
func (e *export) finish(ctx context.Context, res *harvest.Result) error {
	if err := e.writer.Commit(); err != nil {
		e.close(ctx, listgrab.ScrollerState{Status: listgrab.StatusError, Errors: []string{err.Error()}}, len(res.Items))
		return err
	}
	e.close(ctx, listgrab.ScrollerState{Status: res.Status, ItemsCollected: len(res.Items), Errors: res.Errors}, len(res.Items))

	fmt.Fprintf(e.deps.Stdout, "Wrote %d items to %s\n", len(res.Items), e.writer.Path())
	if res.Canceled {
		fmt.Fprintln(e.deps.Stdout, "Stopped before the list was exhausted; partial results kept")
	}
	if res.Status == listgrab.StatusError && len(res.Errors) > 0 {
		fmt.Fprintf(e.deps.Stderr, "warning: scrolling stopped: %s\n", res.Errors[len(res.Errors)-1])
	}
	return nil
}

// fail discards the output file and records the failure.
func (e *export) fail(ctx context.Context, cause error) {
	_ = e.writer.Abort()
	e.close(ctx, listgrab.ScrollerState{Status: listgrab.StatusError, Errors: []string{cause.Error()}}, 0)
}

func (e *export) close(ctx context.Context, state listgrab.ScrollerState, count int) {
	if e.run == nil {
		return
	}
	if _, err := e.deps.Runs.FinishRun(context.WithoutCancel(ctx), e.run.ID, state, count); err != nil {
		e.deps.logger().Warn("finishing run failed", "run", e.run.ID, "err", err)
	}
}
