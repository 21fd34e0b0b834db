package scroll_test

import (
	"context"
	"testing"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/goquery"
	"github.com/fwojciec/listgrab/scroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocument("<html><body>" + body + "</body></html>")
	require.NoError(t, err)
	return doc
}

func TestCountItems(t *testing.T) {
	t.Parallel()

	t.Run("uses the first selector that matches", func(t *testing.T) {
		t.Parallel()

		doc := parse(t, `<article></article><article></article><ul><li></li><li></li><li></li></ul>`)

		n, err := scroll.CountItems(context.Background(), doc, scroll.DefaultItemSelectors)

		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("falls through to list elements", func(t *testing.T) {
		t.Parallel()

		doc := parse(t, `<ul><li></li><li></li><li></li></ul>`)

		n, err := scroll.CountItems(context.Background(), doc, scroll.DefaultItemSelectors)

		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("skips invalid selectors", func(t *testing.T) {
		t.Parallel()

		doc := parse(t, `<p></p><p></p>`)

		n, err := scroll.CountItems(context.Background(), doc, []string{"[[", "p"})

		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("returns zero on an empty page", func(t *testing.T) {
		t.Parallel()

		n, err := scroll.CountItems(context.Background(), parse(t, ""), scroll.DefaultItemSelectors)

		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestFindLoadMore(t *testing.T) {
	t.Parallel()

	find := func(t *testing.T, body string) listgrab.Element {
		t.Helper()
		el, err := scroll.FindLoadMore(context.Background(), parse(t, body))
		require.NoError(t, err)
		return el
	}
	id := func(el listgrab.Element) string {
		v, _ := listgrab.AttrValue(el, "id")
		return v
	}

	t.Run("matches known selectors", func(t *testing.T) {
		t.Parallel()

		el := find(t, `<div id="x" class="feed-loadMore">More</div>`)

		require.NotNil(t, el)
		assert.Equal(t, "x", id(el))
	})

	t.Run("matches clickable text", func(t *testing.T) {
		t.Parallel()

		el := find(t, `<a id="x" href="#">Show
			More Results</a>`)

		require.NotNil(t, el)
		assert.Equal(t, "x", id(el))
	})

	t.Run("skips hidden controls", func(t *testing.T) {
		t.Parallel()

		el := find(t, `<button class="load-more" style="display: none">Load more</button>
			<div hidden><button>See more</button></div>
			<button id="x" role="button">View more</button>`)

		require.NotNil(t, el)
		assert.Equal(t, "x", id(el))
	})

	t.Run("ignores text on non-clickable elements", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, find(t, `<div><span>load more</span></div>`))
	})

	t.Run("returns nil without a control", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, find(t, `<button>Subscribe</button>`))
	})
}
