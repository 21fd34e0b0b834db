package htmltomarkdown_test

import (
	"testing"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/htmltomarkdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Converter implements listgrab.Converter at compile time.
var _ listgrab.Converter = (*htmltomarkdown.Converter)(nil)

func TestConverter_Convert(t *testing.T) {
	t.Parallel()

	t.Run("converts an item card", func(t *testing.T) {
		t.Parallel()

		html := `<article class="card">
<h2><a href="https://example.com/p/1">First post</a></h2>
<p>Posted by <strong>alice</strong> in <em>news</em>.</p>
<img src="https://example.com/1.png" alt="cover">
</article>`

		md, err := htmltomarkdown.NewConverter().Convert(html)

		require.NoError(t, err)
		assert.Contains(t, md, "## [First post](https://example.com/p/1)")
		assert.Contains(t, md, "**alice**")
		assert.Contains(t, md, "*news*")
		assert.Contains(t, md, "![cover](https://example.com/1.png)")
	})

	t.Run("converts list rows", func(t *testing.T) {
		t.Parallel()

		md, err := htmltomarkdown.NewConverter().Convert(`<ul><li>First</li><li>Second</li></ul>`)

		require.NoError(t, err)
		assert.Contains(t, md, "- First")
		assert.Contains(t, md, "- Second")
	})

	t.Run("converts table rows", func(t *testing.T) {
		t.Parallel()

		html := `<table>
<thead><tr><th>Name</th><th>Price</th></tr></thead>
<tbody><tr><td>Widget</td><td>$3</td></tr></tbody>
</table>`

		md, err := htmltomarkdown.NewConverter().Convert(html)

		require.NoError(t, err)
		assert.Contains(t, md, "Name")
		assert.Contains(t, md, "Widget")
		assert.Contains(t, md, "|")
		assert.Contains(t, md, "---")
	})

	t.Run("keeps code language hints", func(t *testing.T) {
		t.Parallel()

		html := `<div><p>Run <code>go build</code>.</p><pre><code class="language-go">package main</code></pre></div>`

		md, err := htmltomarkdown.NewConverter().Convert(html)

		require.NoError(t, err)
		assert.Contains(t, md, "`go build`")
		assert.Contains(t, md, "```go")
		assert.Contains(t, md, "package main")
	})

	t.Run("drops scripts and styles", func(t *testing.T) {
		t.Parallel()

		html := `<div><script>alert("x")</script><style>.a{color:red}</style><p onclick="steal()">Visible</p></div>`

		md, err := htmltomarkdown.NewConverter().Convert(html)

		require.NoError(t, err)
		assert.Equal(t, "Visible", md)
	})

	t.Run("drops javascript links", func(t *testing.T) {
		t.Parallel()

		md, err := htmltomarkdown.NewConverter().Convert(`<p><a href="javascript:alert(1)">Click</a></p>`)

		require.NoError(t, err)
		assert.NotContains(t, md, "javascript")
		assert.Contains(t, md, "Click")
	})

	t.Run("returns error for empty input", func(t *testing.T) {
		t.Parallel()

		_, err := htmltomarkdown.NewConverter().Convert("  \n ")

		require.Error(t, err)
		assert.Equal(t, listgrab.EINVALID, listgrab.ErrorCode(err))
	})
}
