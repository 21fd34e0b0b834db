package slog_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/mock"
	lgslog "github.com/fwojciec/listgrab/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLoggingExtractor_Extract(t *testing.T) {
	t.Parallel()

	t.Run("logs field count", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.Extractor{
			ExtractFn: func(html, baseURL string) (*listgrab.Item, error) {
				return &listgrab.Item{Fields: map[string]string{"title": "A", "link": "https://x.test/"}}, nil
			},
		}

		item, err := lgslog.NewLoggingExtractor(inner, debugLogger(&buf)).Extract("<li>A</li>", "https://x.test/")

		require.NoError(t, err)
		assert.Equal(t, "A", item.Fields["title"])
		assert.Contains(t, buf.String(), "msg=extract")
		assert.Contains(t, buf.String(), "bytes=10")
		assert.Contains(t, buf.String(), "fields=2")
	})

	t.Run("logs failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.Extractor{
			ExtractFn: func(html, baseURL string) (*listgrab.Item, error) {
				return nil, errors.New("bad markup")
			},
		}

		_, err := lgslog.NewLoggingExtractor(inner, debugLogger(&buf)).Extract("<li>", "")

		require.Error(t, err)
		assert.Contains(t, buf.String(), "extract failed")
		assert.Contains(t, buf.String(), `err="bad markup"`)
	})

	t.Run("stays quiet above debug level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.Extractor{
			ExtractFn: func(html, baseURL string) (*listgrab.Item, error) {
				return &listgrab.Item{}, nil
			},
		}

		_, err := lgslog.NewLoggingExtractor(inner, slog.New(slog.NewTextHandler(&buf, nil))).Extract("<li></li>", "")

		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})
}
