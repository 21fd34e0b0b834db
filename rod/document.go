// Package rod implements listgrab.Document on a live Chrome page driven
// through the DevTools protocol.
package rod

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

//go:embed observer.js
var observerJS string

// bindingName is the Runtime binding the injected mutation observers report
// through.
const bindingName = "__listgrab_mutations"

// stopTimeout bounds disconnecting a page-side observer.
const stopTimeout = 5 * time.Second

const (
	parentJS = `() => this.parentElement`

	clickJS = `() => this.click()`

	visibleJS = `() => {
	const r = this.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	for (let n = this; n && n.nodeType === 1; n = n.parentElement) {
		const s = getComputedStyle(n);
		if (s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0') return false;
	}
	return true;
}`

	metricsJS = `() => ({
	top: window.scrollY,
	height: Math.max(document.documentElement.scrollHeight, document.body ? document.body.scrollHeight : 0),
	viewport: window.innerHeight,
})`

	scrollJS = `(dy) => window.scrollBy({ top: dy, behavior: 'smooth' })`

	disconnectJS = `(id) => {
	const r = window.__listgrabObservers;
	if (r && r[id]) { r[id].disconnect(); delete r[id]; }
}`

	clearHighlightJS = `(attr) => document.querySelectorAll('[' + attr + ']').forEach((n) => n.remove())`

	highlightJS = `(attr, container, ...members) => {
	document.querySelectorAll('[' + attr + ']').forEach((n) => n.remove());
	const box = (el, color, width) => {
		const r = el.getBoundingClientRect();
		const d = document.createElement('div');
		d.setAttribute(attr, '');
		Object.assign(d.style, {
			position: 'absolute',
			left: (r.left + window.scrollX) + 'px',
			top: (r.top + window.scrollY) + 'px',
			width: r.width + 'px',
			height: r.height + 'px',
			outline: width + 'px solid ' + color,
			pointerEvents: 'none',
			zIndex: '2147483647',
		});
		document.body.appendChild(d);
	};
	box(container, '#e8590c', 3);
	members.forEach((m) => box(m, '#1c7ed6', 2));
}`
)

var (
	_ listgrab.Document    = (*Document)(nil)
	_ listgrab.Highlighter = (*Document)(nil)
)

// Element is a node of a live page. Its key is the DevTools backend node
// id, which stays the same for the lifetime of the node.
type Element struct {
	el       *rod.Element
	key      string
	tag      string
	attrs    []listgrab.Attr
	children int
}

func (e *Element) Key() string            { return e.key }
func (e *Element) Tag() string            { return e.tag }
func (e *Element) Attrs() []listgrab.Attr { return e.attrs }
func (e *Element) ChildCount() int        { return e.children }

// Document is a listgrab.Document backed by a rod page.
//
// Document is safe for concurrent use.
type Document struct {
	page   *rod.Page
	logger *slog.Logger

	// release runs on Close. Set when the Document owns its page.
	release func() error

	mu        sync.Mutex
	observers map[int]*observer
	nextObs   int
	cancel    context.CancelFunc
	closed    bool
}

// DocumentOption configures a Document.
type DocumentOption func(*Document)

// WithLogger sets the logger for page-side failures that have no caller to
// return to.
func WithLogger(logger *slog.Logger) DocumentOption {
	return func(d *Document) {
		d.logger = logger
	}
}

// NewDocument wraps page. The caller keeps ownership of the page.
func NewDocument(page *rod.Page, opts ...DocumentOption) *Document {
	d := &Document{
		page:      page,
		logger:    slog.New(slog.DiscardHandler),
		observers: make(map[int]*observer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Page returns the underlying page.
func (d *Document) Page() *rod.Page {
	return d.page
}

// Close disconnects all observers. Documents returned by
// BrowserManager.Open also close their page.
func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.cancel != nil {
		d.cancel()
	}
	obs := d.observers
	d.observers = make(map[int]*observer)
	d.mu.Unlock()

	for _, o := range obs {
		o.close()
	}
	if d.release != nil {
		return d.release()
	}
	return nil
}

func (d *Document) Parent(ctx context.Context, el listgrab.Element) (listgrab.Element, error) {
	re, err := d.unwrap(el)
	if err != nil {
		return nil, err
	}
	obj, err := re.Context(ctx).Evaluate(rod.Eval(parentJS).ByObject())
	if err != nil {
		return nil, fmt.Errorf("reading parent: %w", err)
	}
	if obj.ObjectID == "" || obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, nil
	}
	parent, err := d.page.Context(ctx).ElementFromObject(obj)
	if err != nil {
		return nil, fmt.Errorf("resolving parent: %w", err)
	}
	return d.wrap(ctx, parent)
}

func (d *Document) Children(ctx context.Context, el listgrab.Element) ([]listgrab.Element, error) {
	re, err := d.unwrap(el)
	if err != nil {
		return nil, err
	}
	children, err := re.Context(ctx).Elements(":scope > *")
	if err != nil {
		return nil, fmt.Errorf("reading children: %w", err)
	}
	return d.wrapAll(ctx, children)
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]listgrab.Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		if isSelectorError(err) {
			return nil, listgrab.Errorf(listgrab.EINVALID, "invalid selector %q", selector)
		}
		return nil, fmt.Errorf("querying %q: %w", selector, err)
	}
	return d.wrapAll(ctx, els)
}

func (d *Document) Text(ctx context.Context, el listgrab.Element) (string, error) {
	re, err := d.unwrap(el)
	if err != nil {
		return "", err
	}
	text, err := re.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (d *Document) OuterHTML(ctx context.Context, el listgrab.Element) (string, error) {
	re, err := d.unwrap(el)
	if err != nil {
		return "", err
	}
	html, err := re.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("reading markup: %w", err)
	}
	return html, nil
}

func (d *Document) Visible(ctx context.Context, el listgrab.Element) (bool, error) {
	re, err := d.unwrap(el)
	if err != nil {
		return false, err
	}
	res, err := re.Context(ctx).Evaluate(rod.Eval(visibleJS))
	if err != nil {
		return false, fmt.Errorf("checking visibility: %w", err)
	}
	return res.Value.Bool(), nil
}

// Click dispatches a click from script as a user gesture. Unlike a mouse
// click it does not require the element to be uncovered.
func (d *Document) Click(ctx context.Context, el listgrab.Element) error {
	re, err := d.unwrap(el)
	if err != nil {
		return err
	}
	if _, err := re.Context(ctx).Evaluate(rod.Eval(clickJS).ByUser()); err != nil {
		return fmt.Errorf("clicking: %w", err)
	}
	return nil
}

func (d *Document) Metrics(ctx context.Context) (listgrab.ScrollMetrics, error) {
	res, err := d.page.Context(ctx).Eval(metricsJS)
	if err != nil {
		return listgrab.ScrollMetrics{}, fmt.Errorf("reading scroll metrics: %w", err)
	}
	return listgrab.ScrollMetrics{
		ScrollTop:      res.Value.Get("top").Num(),
		ScrollHeight:   res.Value.Get("height").Num(),
		ViewportHeight: res.Value.Get("viewport").Num(),
	}, nil
}

func (d *Document) ScrollBy(ctx context.Context, dy float64) error {
	if _, err := d.page.Context(ctx).Eval(scrollJS, dy); err != nil {
		return fmt.Errorf("scrolling: %w", err)
	}
	return nil
}

// Observe installs a MutationObserver on the page body that reports added
// element counts through a Runtime binding. Overlay elements are not
// counted. Notifications for one subscriber are delivered in order on their
// own goroutine, and batches that arrive while fn runs are merged.
func (d *Document) Observe(ctx context.Context, fn listgrab.MutationFunc) (func(), error) {
	if fn == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "mutation func required")
	}
	if err := d.listen(ctx); err != nil {
		return nil, err
	}

	o := newObserver(fn)
	d.mu.Lock()
	d.nextObs++
	id := d.nextObs
	d.observers[id] = o
	d.mu.Unlock()

	drop := func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
		o.close()
	}

	if _, err := d.page.Context(ctx).Eval(observerJS, bindingName, id, listgrab.OverlayAttr); err != nil {
		drop()
		return nil, fmt.Errorf("installing mutation observer: %w", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			drop()
			sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if _, err := d.page.Context(sctx).Eval(disconnectJS, id); err != nil {
				d.logger.Debug("disconnecting mutation observer failed", "id", id, "err", err)
			}
		})
	}
	return stop, nil
}

// Highlight draws outlines over the container and members of match. The
// outlines carry listgrab.OverlayAttr.
func (d *Document) Highlight(ctx context.Context, match *listgrab.PatternMatch) error {
	if match == nil || match.Container == nil {
		return listgrab.Errorf(listgrab.EINVALID, "pattern match required")
	}
	container, err := d.unwrap(match.Container)
	if err != nil {
		return err
	}
	args := make([]interface{}, 0, len(match.Siblings)+2)
	args = append(args, listgrab.OverlayAttr, container.Object)
	for _, s := range match.Siblings {
		el, err := d.unwrap(s)
		if err != nil {
			return err
		}
		args = append(args, el.Object)
	}
	if _, err := d.page.Context(ctx).Eval(highlightJS, args...); err != nil {
		return fmt.Errorf("highlighting: %w", err)
	}
	return nil
}

func (d *Document) ClearHighlight(ctx context.Context) error {
	if _, err := d.page.Context(ctx).Eval(clearHighlightJS, listgrab.OverlayAttr); err != nil {
		return fmt.Errorf("clearing highlight: %w", err)
	}
	return nil
}

// listen adds the binding and starts the event loop on first use.
func (d *Document) listen(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return listgrab.Errorf(listgrab.ECONFLICT, "document closed")
	}
	if d.cancel != nil {
		return nil
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(d.page.Context(ctx)); err != nil {
		return fmt.Errorf("adding binding: %w", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	wait := d.page.Context(lctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == bindingName {
			d.dispatch(e.Payload)
		}
	})
	go wait()
	d.cancel = cancel
	return nil
}

func (d *Document) dispatch(payload string) {
	var batch struct {
		ID    int `json:"id"`
		Added int `json:"added"`
	}
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		d.logger.Warn("parsing mutation payload failed", "err", err)
		return
	}

	d.mu.Lock()
	o := d.observers[batch.ID]
	d.mu.Unlock()
	if o != nil {
		o.notify(batch.Added)
	}
}

func (d *Document) unwrap(el listgrab.Element) (*rod.Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.el == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "element does not belong to a rod document")
	}
	return e.el, nil
}

func (d *Document) wrap(ctx context.Context, el *rod.Element) (listgrab.Element, error) {
	node, err := el.Context(ctx).Describe(1, false)
	if err != nil {
		return nil, fmt.Errorf("describing element: %w", err)
	}
	e := &Element{
		el:  el,
		key: strconv.Itoa(int(node.BackendNodeID)),
		tag: strings.ToLower(node.LocalName),
	}
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		e.attrs = append(e.attrs, listgrab.Attr{Name: node.Attributes[i], Value: node.Attributes[i+1]})
	}
	for _, c := range node.Children {
		if c.NodeType == 1 {
			e.children++
		}
	}
	return e, nil
}

func (d *Document) wrapAll(ctx context.Context, els rod.Elements) ([]listgrab.Element, error) {
	out := make([]listgrab.Element, 0, len(els))
	for _, el := range els {
		e, err := d.wrap(ctx, el)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func isSelectorError(err error) bool {
	var evalErr *rod.EvalError
	if !errors.As(err, &evalErr) {
		return false
	}
	msg := evalErr.Error()
	return strings.Contains(msg, "SyntaxError") || strings.Contains(msg, "not a valid selector")
}

// observer delivers mutation counts to one MutationFunc.
type observer struct {
	fn      listgrab.MutationFunc
	mu      sync.Mutex
	pending int
	closed  bool
	wake    chan struct{}
	done    chan struct{}
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
	o.pending += added
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
}

func (o *observer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
		}

		o.mu.Lock()
		n, closed := o.pending, o.closed
		o.pending = 0
		o.mu.Unlock()

		if closed {
			return
		}
		if n > 0 {
			o.fn(n)
		}
	}
}
