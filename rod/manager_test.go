//go:build integration

package rod_test

import (
	"context"
	"testing"

	"github.com/fwojciec/listgrab/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserManager_NewPage(t *testing.T) {
	t.Parallel()

	viewport := func(t *testing.T, opts ...rod.ManagerOption) (width, height int) {
		t.Helper()
		bm, err := rod.NewBrowserManager(opts...)
		require.NoError(t, err)
		defer bm.Close()

		page, err := bm.NewPage()
		require.NoError(t, err)
		defer page.Close()

		res, err := page.Eval(`() => [window.innerWidth, window.innerHeight]`)
		require.NoError(t, err)
		dims := res.Value.Arr()
		require.Len(t, dims, 2)
		return dims[0].Int(), dims[1].Int()
	}

	t.Run("sizes stealth pages to the default viewport", func(t *testing.T) {
		t.Parallel()

		w, h := viewport(t)

		assert.Equal(t, 1280, w)
		assert.Equal(t, 900, h)
	})

	t.Run("sizes plain pages to a custom viewport", func(t *testing.T) {
		t.Parallel()

		w, h := viewport(t, rod.WithStealth(false), rod.WithViewport(800, 600))

		assert.Equal(t, 800, w)
		assert.Equal(t, 600, h)
	})

	t.Run("fails after close", func(t *testing.T) {
		t.Parallel()

		bm, err := rod.NewBrowserManager()
		require.NoError(t, err)
		require.NoError(t, bm.Close())
		require.NoError(t, bm.Close())

		_, err = bm.NewPage()
		assert.Error(t, err)
	})
}

func TestBrowserManager_Open(t *testing.T) {
	t.Parallel()

	srv := serve(t, `<!DOCTYPE html><html><body><p id="p">hello</p></body></html>`)

	t.Run("closing the document closes its page", func(t *testing.T) {
		t.Parallel()

		bm, err := rod.NewBrowserManager()
		require.NoError(t, err)
		defer bm.Close()

		doc, err := bm.Open(context.Background(), srv.URL)
		require.NoError(t, err)
		target := doc.Page().TargetID

		els, err := doc.QueryAll(context.Background(), "#p")
		require.NoError(t, err)
		require.Len(t, els, 1)

		require.NoError(t, doc.Close())
		require.NoError(t, doc.Close())

		pages, err := bm.Browser().Pages()
		require.NoError(t, err)
		for _, p := range pages {
			assert.NotEqual(t, target, p.TargetID)
		}
	})

	t.Run("recycles the browser after max pages", func(t *testing.T) {
		t.Parallel()

		bm, err := rod.NewBrowserManager(rod.WithMaxPages(2))
		require.NoError(t, err)
		defer bm.Close()

		first := bm.Browser()
		doc, err := bm.Open(context.Background(), srv.URL)
		require.NoError(t, err)
		require.NoError(t, doc.Close())
		assert.Same(t, first, bm.Browser())

		doc, err = bm.Open(context.Background(), srv.URL)
		require.NoError(t, err)
		require.NoError(t, doc.Close())

		assert.NotSame(t, first, bm.Browser())
	})

	t.Run("reports navigation failures", func(t *testing.T) {
		t.Parallel()

		bm, err := rod.NewBrowserManager()
		require.NoError(t, err)
		defer bm.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = bm.Open(ctx, srv.URL)
		assert.Error(t, err)
	})
}
