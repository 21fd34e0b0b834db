// Package goquery provides listgrab implementations backed by goquery:
// an in-memory, mutable Document for static pages and tests, and the
// field Extractor.
package goquery

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/listgrab"
	"golang.org/x/net/html"
)

// Default simulated geometry.
const (
	DefaultViewportHeight = 800
	DefaultRowHeight      = 40
)

// Ensure Document implements listgrab.Document at compile time.
var _ listgrab.Document = (*Document)(nil)

// Document is an in-memory listgrab.Document over a parsed HTML tree.
//
// There is no layout engine. Scroll height is simulated as the number of
// leaf elements under body times a fixed row height. Click and scroll
// behavior is scripted through OnClick and OnScroll handlers, which may
// mutate the tree with Append and Remove. Mutation observers are notified
// asynchronously, as in a browser.
//
// Document is safe for concurrent use.
type Document struct {
	mu        sync.Mutex
	doc       *goquery.Document
	keys      map[*html.Node]string
	nextKey   int
	scrollTop float64
	viewport  float64
	rowHeight float64

	clicks    []handler
	scrolls   []func(d *Document, m listgrab.ScrollMetrics)
	observers map[int]*observer
	nextObs   int
}

type handler struct {
	sel cascadia.Selector
	fn  func(d *Document)
}

// Option configures a Document.
type Option func(*Document)

// WithViewportHeight sets the simulated viewport height in pixels.
func WithViewportHeight(h float64) Option {
	return func(d *Document) {
		d.viewport = h
	}
}

// WithRowHeight sets the simulated height of one leaf element in pixels.
func WithRowHeight(h float64) Option {
	return func(d *Document) {
		d.rowHeight = h
	}
}

// NewDocument parses markup into a Document.
func NewDocument(markup string, opts ...Option) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "failed to parse HTML: %v", err)
	}
	d := &Document{
		doc:       doc,
		keys:      make(map[*html.Node]string),
		viewport:  DefaultViewportHeight,
		rowHeight: DefaultRowHeight,
		observers: make(map[int]*observer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Element is a listgrab.Element referring to a node of a Document.
// Tag, attributes and child count are captured when the Element is obtained.
type Element struct {
	node       *html.Node
	key        string
	tag        string
	attrs      []listgrab.Attr
	childCount int
}

func (e *Element) Key() string { return e.key }

func (e *Element) Tag() string { return e.tag }

func (e *Element) Attrs() []listgrab.Attr { return e.attrs }

func (e *Element) ChildCount() int { return e.childCount }

// wrap returns the Element for n. Must be called with mu held.
func (d *Document) wrap(n *html.Node) *Element {
	key, ok := d.keys[n]
	if !ok {
		d.nextKey++
		key = fmt.Sprintf("n%d", d.nextKey)
		d.keys[n] = key
	}
	e := &Element{
		node:  n,
		key:   key,
		tag:   strings.ToLower(n.Data),
		attrs: make([]listgrab.Attr, 0, len(n.Attr)),
	}
	for _, a := range n.Attr {
		e.attrs = append(e.attrs, listgrab.Attr{Name: a.Key, Value: a.Val})
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			e.childCount++
		}
	}
	return e
}

// node unwraps el. Returns EINVALID for elements of another Document.
func (d *Document) node(el listgrab.Element) (*html.Node, error) {
	e, ok := el.(*Element)
	if !ok || e == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "element does not belong to this document")
	}
	return e.node, nil
}

// Parent returns the parent element of el, or nil at the top of the document.
func (d *Document) Parent(_ context.Context, el listgrab.Element) (listgrab.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(el)
	if err != nil {
		return nil, err
	}
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil, nil
	}
	return d.wrap(n.Parent), nil
}

// Children returns the direct element children of el.
func (d *Document) Children(_ context.Context, el listgrab.Element) ([]listgrab.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(el)
	if err != nil {
		return nil, err
	}
	var children []listgrab.Element
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, d.wrap(c))
		}
	}
	return children, nil
}

// QueryAll returns all elements matching selector in document order.
func (d *Document) QueryAll(_ context.Context, selector string) ([]listgrab.Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "invalid selector %q: %v", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var els []listgrab.Element
	for _, n := range d.doc.FindMatcher(sel).Nodes {
		els = append(els, d.wrap(n))
	}
	return els, nil
}

// Query returns the first element matching selector, or nil.
func (d *Document) Query(ctx context.Context, selector string) (listgrab.Element, error) {
	els, err := d.QueryAll(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// Text returns the whitespace-collapsed text content of el.
func (d *Document) Text(_ context.Context, el listgrab.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(el)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(goquery.NewDocumentFromNode(n).Text()), " "), nil
}

// OuterHTML returns the markup of el.
func (d *Document) OuterHTML(_ context.Context, el listgrab.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(el)
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(goquery.NewDocumentFromNode(n).Selection)
}

// HTML returns the markup of the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.OuterHtml(d.doc.Selection)
}

// Visible reports whether el and its ancestors are displayed. Elements
// hidden by the hidden attribute, display:none, visibility:hidden, opacity:0
// or a zero width or height are not visible.
func (d *Document) Visible(_ context.Context, el listgrab.Element) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(el)
	if err != nil {
		return false, err
	}
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if hidden(p) {
			return false, nil
		}
	}
	return true, nil
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			for _, decl := range strings.Split(style, ";") {
				switch decl {
				case "display:none", "visibility:hidden", "opacity:0",
					"width:0", "width:0px", "height:0", "height:0px":
					return true
				}
			}
		}
	}
	return false
}

// OnClick registers fn to run when an element matching selector is clicked.
func (d *Document) OnClick(selector string, fn func(d *Document)) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return listgrab.Errorf(listgrab.EINVALID, "invalid selector %q: %v", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, handler{sel: sel, fn: fn})
	return nil
}

// OnScroll registers fn to run after every scroll with the new metrics.
func (d *Document) OnScroll(fn func(d *Document, m listgrab.ScrollMetrics)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls = append(d.scrolls, fn)
}

// Click runs the click handlers registered for el.
func (d *Document) Click(_ context.Context, el listgrab.Element) error {
	d.mu.Lock()
	n, err := d.node(el)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	var fns []func(d *Document)
	for _, h := range d.clicks {
		if h.sel.Match(n) {
			fns = append(fns, h.fn)
		}
	}
	d.mu.Unlock()

	// Handlers mutate the tree and must run without the lock.
	for _, fn := range fns {
		fn(d)
	}
	return nil
}

// Metrics returns the simulated scroll geometry.
func (d *Document) Metrics(_ context.Context) (listgrab.ScrollMetrics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metrics(), nil
}

// metrics must be called with mu held.
func (d *Document) metrics() listgrab.ScrollMetrics {
	height := math.Max(d.viewport, float64(d.leafCount())*d.rowHeight)
	top := math.Min(d.scrollTop, math.Max(0, height-d.viewport))
	return listgrab.ScrollMetrics{
		ScrollTop:      top,
		ScrollHeight:   height,
		ViewportHeight: d.viewport,
	}
}

func (d *Document) leafCount() int {
	count := 0
	d.doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() == 0 {
			count++
		}
	})
	return count
}

// ScrollBy moves the viewport down by dy pixels, clamped to the page.
func (d *Document) ScrollBy(_ context.Context, dy float64) error {
	d.mu.Lock()
	m := d.metrics()
	d.scrollTop = math.Max(0, math.Min(m.ScrollTop+dy, m.ScrollHeight-m.ViewportHeight))
	m = d.metrics()
	fns := slices.Clone(d.scrolls)
	d.mu.Unlock()

	for _, fn := range fns {
		fn(d, m)
	}
	return nil
}

// Append parses markup and appends the resulting nodes to the first element
// matching parentSelector. Observers are notified of the added elements.
func (d *Document) Append(parentSelector, markup string) error {
	sel, err := cascadia.Compile(parentSelector)
	if err != nil {
		return listgrab.Errorf(listgrab.EINVALID, "invalid selector %q: %v", parentSelector, err)
	}

	d.mu.Lock()
	parents := d.doc.FindMatcher(sel)
	if parents.Length() == 0 {
		d.mu.Unlock()
		return listgrab.Errorf(listgrab.ENOTFOUND, "no element matches %q", parentSelector)
	}
	parent := parents.Nodes[0]
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		d.mu.Unlock()
		return listgrab.Errorf(listgrab.EINVALID, "failed to parse fragment: %v", err)
	}
	added := 0
	for _, n := range nodes {
		parent.AppendChild(n)
		if n.Type == html.ElementNode {
			added++
		}
	}
	obs := d.snapshotObservers()
	d.mu.Unlock()

	if added > 0 {
		for _, o := range obs {
			o.notify(added)
		}
	}
	return nil
}

// Remove detaches every element matching selector from the tree.
func (d *Document) Remove(selector string) (int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0, listgrab.Errorf(listgrab.EINVALID, "invalid selector %q: %v", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := d.doc.FindMatcher(sel).Nodes
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		delete(d.keys, n)
	}
	return len(nodes), nil
}

// Observe subscribes fn to node additions. Notifications are delivered in
// order on a dedicated goroutine until stop is called.
func (d *Document) Observe(_ context.Context, fn listgrab.MutationFunc) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextObs++
	id := d.nextObs
	o := newObserver(fn)
	d.observers[id] = o

	var once sync.Once
	stop := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.observers, id)
			d.mu.Unlock()
			o.close()
		})
	}
	return stop, nil
}

// snapshotObservers must be called with mu held.
func (d *Document) snapshotObservers() []*observer {
	obs := make([]*observer, 0, len(d.observers))
	for _, o := range d.observers {
		obs = append(obs, o)
	}
	return obs
}

// observer delivers mutation batches to one MutationFunc in order.
type observer struct {
	fn     listgrab.MutationFunc
	mu     sync.Mutex
	queue  []int
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newObserver(fn listgrab.MutationFunc) *observer {
	o := &observer{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *observer) notify(added int) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, added)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *observer) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	close(o.done)
}

func (o *observer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
		}
		for {
			o.mu.Lock()
			if o.closed || len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			added := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()
			o.fn(added)
		}
	}
}
