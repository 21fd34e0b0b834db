package goquery_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/goquery"
	"github.com/fwojciec/listgrab/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Document implements listgrab.Document at compile time.
var _ listgrab.Document = (*goquery.Document)(nil)

func TestDocument_Tree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc, err := goquery.NewDocument(`<html><body>
		<ul id="l" class="a a b"><li>One</li><li>Two <b>bold</b></li></ul>
	</body></html>`)
	require.NoError(t, err)

	t.Run("describes elements", func(t *testing.T) {
		t.Parallel()

		ul, err := doc.Query(ctx, "#l")
		require.NoError(t, err)
		require.NotNil(t, ul)

		assert.Equal(t, "ul", ul.Tag())
		assert.Equal(t, 2, ul.ChildCount())
		assert.Equal(t, []string{"a", "b"}, listgrab.Classes(ul))
		id, ok := listgrab.AttrValue(ul, "id")
		assert.True(t, ok)
		assert.Equal(t, "l", id)
	})

	t.Run("keeps keys stable across queries", func(t *testing.T) {
		t.Parallel()

		a, err := doc.Query(ctx, "#l")
		require.NoError(t, err)
		b, err := doc.Query(ctx, "ul")
		require.NoError(t, err)

		assert.True(t, listgrab.SameElement(a, b))
	})

	t.Run("walks parents and children", func(t *testing.T) {
		t.Parallel()

		ul, err := doc.Query(ctx, "#l")
		require.NoError(t, err)
		children, err := doc.Children(ctx, ul)
		require.NoError(t, err)
		require.Len(t, children, 2)

		parent, err := doc.Parent(ctx, children[1])
		require.NoError(t, err)
		assert.True(t, listgrab.SameElement(ul, parent))

		html, err := doc.Query(ctx, "html")
		require.NoError(t, err)
		top, err := doc.Parent(ctx, html)
		require.NoError(t, err)
		assert.Nil(t, top)
	})

	t.Run("reads text and markup", func(t *testing.T) {
		t.Parallel()

		li, err := doc.QueryAll(ctx, "li")
		require.NoError(t, err)
		require.Len(t, li, 2)

		text, err := doc.Text(ctx, li[1])
		require.NoError(t, err)
		assert.Equal(t, "Two bold", text)

		markup, err := doc.OuterHTML(ctx, li[0])
		require.NoError(t, err)
		assert.Equal(t, "<li>One</li>", markup)
	})

	t.Run("rejects invalid selectors", func(t *testing.T) {
		t.Parallel()

		_, err := doc.QueryAll(ctx, "li[")
		assert.Equal(t, listgrab.EINVALID, listgrab.ErrorCode(err))
	})

	t.Run("rejects foreign elements", func(t *testing.T) {
		t.Parallel()

		_, err := doc.Children(ctx, &mock.Element{ID: "x", Name: "div"})
		assert.Equal(t, listgrab.EINVALID, listgrab.ErrorCode(err))
	})
}

func TestDocument_Visible(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc, err := goquery.NewDocument(`<html><body>
		<p id="shown">a</p>
		<p id="attr" hidden>b</p>
		<p id="display" style="display: none">c</p>
		<p id="opacity" style="color:red; opacity:0">d</p>
		<div style="visibility:hidden"><p id="nested">e</p></div>
	</body></html>`)
	require.NoError(t, err)

	tests := map[string]bool{
		"#shown":   true,
		"#attr":    false,
		"#display": false,
		"#opacity": false,
		"#nested":  false,
	}
	for sel, want := range tests {
		el, err := doc.Query(ctx, sel)
		require.NoError(t, err)
		got, err := doc.Visible(ctx, el)
		require.NoError(t, err)
		assert.Equal(t, want, got, sel)
	}
}

func TestDocument_Geometry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("grows with leaf elements", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><ul id="l"><li>1</li><li>2</li><li>3</li></ul></body></html>`,
			goquery.WithViewportHeight(20), goquery.WithRowHeight(10))
		require.NoError(t, err)

		m, err := doc.Metrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, listgrab.ScrollMetrics{ScrollTop: 0, ScrollHeight: 30, ViewportHeight: 20}, m)

		require.NoError(t, doc.Append("#l", "<li>4</li><li>5</li>"))
		m, err = doc.Metrics(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 50, m.ScrollHeight, 0.001)
	})

	t.Run("clamps scrolling to the page", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><p>1</p><p>2</p><p>3</p><p>4</p></body></html>`,
			goquery.WithViewportHeight(20), goquery.WithRowHeight(10))
		require.NoError(t, err)

		var seen []float64
		doc.OnScroll(func(_ *goquery.Document, m listgrab.ScrollMetrics) {
			seen = append(seen, m.ScrollTop)
		})

		require.NoError(t, doc.ScrollBy(ctx, 15))
		require.NoError(t, doc.ScrollBy(ctx, 15))
		m, err := doc.Metrics(ctx)
		require.NoError(t, err)

		assert.Equal(t, []float64{15, 20}, seen)
		assert.True(t, m.AtBottom(2))
	})

	t.Run("never reports less than the viewport", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><p>1</p></body></html>`)
		require.NoError(t, err)

		m, err := doc.Metrics(ctx)
		require.NoError(t, err)
		assert.InDelta(t, goquery.DefaultViewportHeight, m.ScrollHeight, 0.001)
		assert.True(t, m.AtBottom(0))
	})
}

func TestDocument_Mutations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("runs click handlers", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><ul id="l"><li>1</li></ul><button class="more">More</button></body></html>`)
		require.NoError(t, err)
		require.NoError(t, doc.OnClick("button.more", func(d *goquery.Document) {
			_ = d.Append("#l", "<li>2</li>")
		}))

		btn, err := doc.Query(ctx, "button")
		require.NoError(t, err)
		require.NoError(t, doc.Click(ctx, btn))

		items, err := doc.QueryAll(ctx, "#l > li")
		require.NoError(t, err)
		assert.Len(t, items, 2)

		li, err := doc.Query(ctx, "li")
		require.NoError(t, err)
		require.NoError(t, doc.Click(ctx, li))
		items, err = doc.QueryAll(ctx, "#l > li")
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("removes elements", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><p class="x">1</p><p class="x">2</p><p>3</p></body></html>`)
		require.NoError(t, err)

		n, err := doc.Remove("p.x")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ps, err := doc.QueryAll(ctx, "p")
		require.NoError(t, err)
		assert.Len(t, ps, 1)
	})

	t.Run("reports a missing append target", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body></body></html>`)
		require.NoError(t, err)

		err = doc.Append("#nope", "<p>x</p>")
		assert.Equal(t, listgrab.ENOTFOUND, listgrab.ErrorCode(err))
	})

	t.Run("notifies observers until stopped", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><ul id="l"></ul></body></html>`)
		require.NoError(t, err)

		var added atomic.Int64
		stop, err := doc.Observe(ctx, func(n int) { added.Add(int64(n)) })
		require.NoError(t, err)

		require.NoError(t, doc.Append("#l", "<li>1</li><li>2</li>"))
		require.NoError(t, doc.Append("#l", "<li>3</li>"))
		assert.Eventually(t, func() bool { return added.Load() == 3 }, time.Second, time.Millisecond)

		stop()
		stop()
		require.NoError(t, doc.Append("#l", "<li>4</li>"))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int64(3), added.Load())
	})

	t.Run("ignores text-only appends", func(t *testing.T) {
		t.Parallel()

		doc, err := goquery.NewDocument(`<html><body><p id="p"></p></body></html>`)
		require.NoError(t, err)

		var calls atomic.Int64
		stop, err := doc.Observe(ctx, func(int) { calls.Add(1) })
		require.NoError(t, err)
		defer stop()

		require.NoError(t, doc.Append("#p", "just text"))
		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, calls.Load())
	})
}
