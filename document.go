package listgrab

import (
	"context"
	"strings"
)

// OverlayAttr marks elements injected into the page by listgrab itself
// (highlight boxes, panels). Such elements are never pattern members.
const OverlayAttr = "data-listgrab-overlay"

// Attr is a single attribute name/value pair.
type Attr struct {
	Name  string
	Value string
}

// Element is a reference to one node of a Document.
//
// An Element describes the node as of the moment it was obtained from the
// Document. Structure below it may change at any time, so callers re-read
// elements through the Document instead of caching them.
type Element interface {
	// Key identifies the node within its Document. Two Elements with the
	// same Key refer to the same node.
	Key() string

	// Tag returns the lowercase tag name.
	Tag() string

	// Attrs returns the attributes in document order.
	Attrs() []Attr

	// ChildCount returns the number of direct element children.
	ChildCount() int
}

// AttrValue returns the value of the named attribute on el.
func AttrValue(el Element, name string) (string, bool) {
	for _, a := range el.Attrs() {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Classes returns the class tokens of el in document order, without duplicates.
func Classes(el Element) []string {
	v, ok := AttrValue(el, "class")
	if !ok {
		return nil
	}
	var classes []string
	seen := make(map[string]bool)
	for _, c := range strings.Fields(v) {
		if seen[c] {
			continue
		}
		seen[c] = true
		classes = append(classes, c)
	}
	return classes
}

// SameElement reports whether a and b refer to the same node.
func SameElement(a, b Element) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Key() == b.Key()
}

// IsOverlay reports whether el was injected by listgrab.
func IsOverlay(el Element) bool {
	_, ok := AttrValue(el, OverlayAttr)
	return ok
}

// IsScriptOrStyle reports whether el is a script or style element.
func IsScriptOrStyle(el Element) bool {
	switch el.Tag() {
	case "script", "style":
		return true
	}
	return false
}

// ScrollMetrics describes the scroll geometry of the page.
type ScrollMetrics struct {
	ScrollTop      float64
	ScrollHeight   float64
	ViewportHeight float64
}

// AtBottom reports whether the viewport is within tolerance pixels of the
// end of the scrollable area.
func (m ScrollMetrics) AtBottom(tolerance float64) bool {
	return m.ScrollTop+m.ViewportHeight >= m.ScrollHeight-tolerance
}

// MutationFunc is called when nodes have been added anywhere below the page
// body. added is the number of added element nodes in the batch.
type MutationFunc func(added int)

// Document is the live, mutable, queryable page. The page may be mutated by
// its own scripts at any moment; every read is possibly stale the instant it
// returns.
type Document interface {
	// Parent returns the parent element of el.
	// Returns a nil Element at the top of the document.
	Parent(ctx context.Context, el Element) (Element, error)

	// Children returns the direct element children of el in document order.
	Children(ctx context.Context, el Element) ([]Element, error)

	// QueryAll returns all elements matching the CSS selector.
	// Returns EINVALID if the selector cannot be parsed.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Text returns the visible text content of el.
	Text(ctx context.Context, el Element) (string, error)

	// OuterHTML returns the serialized markup of el.
	OuterHTML(ctx context.Context, el Element) (string, error)

	// Visible reports whether el has a non-zero size and is not hidden by
	// display, visibility or opacity.
	Visible(ctx context.Context, el Element) (bool, error)

	// Click dispatches a click on el.
	Click(ctx context.Context, el Element) error

	// Metrics returns the current scroll geometry.
	Metrics(ctx context.Context) (ScrollMetrics, error)

	// ScrollBy smoothly scrolls the page down by dy pixels.
	ScrollBy(ctx context.Context, dy float64) error

	// Observe subscribes fn to node additions under the page body.
	// The returned stop function disconnects the observer and is safe to
	// call more than once.
	Observe(ctx context.Context, fn MutationFunc) (stop func(), err error)
}

// Highlighter renders a visual preview of a detected pattern.
type Highlighter interface {
	// Highlight outlines the container and members of match.
	Highlight(ctx context.Context, match *PatternMatch) error

	// ClearHighlight removes any applied highlight.
	ClearHighlight(ctx context.Context) error
}
