package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/listgrab"
)

// Ensure LoggingDocument implements listgrab.Document.
var _ listgrab.Document = (*LoggingDocument)(nil)

// LoggingDocument wraps a Document and logs the calls that change the page
// or are likely to be slow. Tree reads pass through unlogged.
type LoggingDocument struct {
	next   listgrab.Document
	logger *slog.Logger
}

// NewLoggingDocument creates a new LoggingDocument.
func NewLoggingDocument(next listgrab.Document, logger *slog.Logger) *LoggingDocument {
	return &LoggingDocument{next: next, logger: logger}
}

func (d *LoggingDocument) Parent(ctx context.Context, el listgrab.Element) (listgrab.Element, error) {
	return d.next.Parent(ctx, el)
}

func (d *LoggingDocument) Children(ctx context.Context, el listgrab.Element) ([]listgrab.Element, error) {
	return d.next.Children(ctx, el)
}

func (d *LoggingDocument) QueryAll(ctx context.Context, selector string) (els []listgrab.Element, err error) {
	defer func(begin time.Time) {
		d.logger.Debug("query",
			"selector", selector,
			"matches", len(els),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return d.next.QueryAll(ctx, selector)
}

func (d *LoggingDocument) Text(ctx context.Context, el listgrab.Element) (string, error) {
	return d.next.Text(ctx, el)
}

func (d *LoggingDocument) OuterHTML(ctx context.Context, el listgrab.Element) (string, error) {
	return d.next.OuterHTML(ctx, el)
}

func (d *LoggingDocument) Visible(ctx context.Context, el listgrab.Element) (bool, error) {
	return d.next.Visible(ctx, el)
}

func (d *LoggingDocument) Click(ctx context.Context, el listgrab.Element) (err error) {
	defer func(begin time.Time) {
		d.logger.Info("click",
			"key", el.Key(),
			"tag", el.Tag(),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return d.next.Click(ctx, el)
}

func (d *LoggingDocument) Metrics(ctx context.Context) (listgrab.ScrollMetrics, error) {
	return d.next.Metrics(ctx)
}

func (d *LoggingDocument) ScrollBy(ctx context.Context, dy float64) (err error) {
	defer func(begin time.Time) {
		d.logger.Debug("scroll",
			"dy", dy,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return d.next.ScrollBy(ctx, dy)
}

func (d *LoggingDocument) Observe(ctx context.Context, fn listgrab.MutationFunc) (stop func(), err error) {
	defer func() {
		d.logger.Debug("observe", "err", err)
	}()
	return d.next.Observe(ctx, fn)
}
