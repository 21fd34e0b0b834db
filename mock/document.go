package mock

import (
	"context"

	"github.com/fwojciec/listgrab"
)

var _ listgrab.Document = (*Document)(nil)

// Document is a mock implementation of listgrab.Document.
type Document struct {
	ParentFn    func(ctx context.Context, el listgrab.Element) (listgrab.Element, error)
	ChildrenFn  func(ctx context.Context, el listgrab.Element) ([]listgrab.Element, error)
	QueryAllFn  func(ctx context.Context, selector string) ([]listgrab.Element, error)
	TextFn      func(ctx context.Context, el listgrab.Element) (string, error)
	OuterHTMLFn func(ctx context.Context, el listgrab.Element) (string, error)
	VisibleFn   func(ctx context.Context, el listgrab.Element) (bool, error)
	ClickFn     func(ctx context.Context, el listgrab.Element) error
	MetricsFn   func(ctx context.Context) (listgrab.ScrollMetrics, error)
	ScrollByFn  func(ctx context.Context, dy float64) error
	ObserveFn   func(ctx context.Context, fn listgrab.MutationFunc) (func(), error)
}

func (d *Document) Parent(ctx context.Context, el listgrab.Element) (listgrab.Element, error) {
	return d.ParentFn(ctx, el)
}

func (d *Document) Children(ctx context.Context, el listgrab.Element) ([]listgrab.Element, error) {
	return d.ChildrenFn(ctx, el)
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]listgrab.Element, error) {
	return d.QueryAllFn(ctx, selector)
}

func (d *Document) Text(ctx context.Context, el listgrab.Element) (string, error) {
	return d.TextFn(ctx, el)
}

func (d *Document) OuterHTML(ctx context.Context, el listgrab.Element) (string, error) {
	return d.OuterHTMLFn(ctx, el)
}

func (d *Document) Visible(ctx context.Context, el listgrab.Element) (bool, error) {
	return d.VisibleFn(ctx, el)
}

func (d *Document) Click(ctx context.Context, el listgrab.Element) error {
	return d.ClickFn(ctx, el)
}

func (d *Document) Metrics(ctx context.Context) (listgrab.ScrollMetrics, error) {
	return d.MetricsFn(ctx)
}

func (d *Document) ScrollBy(ctx context.Context, dy float64) error {
	return d.ScrollByFn(ctx, dy)
}

func (d *Document) Observe(ctx context.Context, fn listgrab.MutationFunc) (func(), error) {
	return d.ObserveFn(ctx, fn)
}

var _ listgrab.Highlighter = (*Highlighter)(nil)

// Highlighter is a mock implementation of listgrab.Highlighter.
type Highlighter struct {
	HighlightFn      func(ctx context.Context, match *listgrab.PatternMatch) error
	ClearHighlightFn func(ctx context.Context) error
}

func (h *Highlighter) Highlight(ctx context.Context, match *listgrab.PatternMatch) error {
	return h.HighlightFn(ctx, match)
}

func (h *Highlighter) ClearHighlight(ctx context.Context) error {
	return h.ClearHighlightFn(ctx)
}
