package slog

import (
	"log/slog"

	"github.com/fwojciec/listgrab"
)

// Ensure LoggingExtractor implements listgrab.Extractor.
var _ listgrab.Extractor = (*LoggingExtractor)(nil)

// LoggingExtractor wraps an Extractor with debug logging.
type LoggingExtractor struct {
	next   listgrab.Extractor
	logger *slog.Logger
}

// NewLoggingExtractor creates a new LoggingExtractor.
func NewLoggingExtractor(next listgrab.Extractor, logger *slog.Logger) *LoggingExtractor {
	return &LoggingExtractor{next: next, logger: logger}
}

// Extract logs the number of fields read from each member, or the reason
// nothing was read.
func (e *LoggingExtractor) Extract(html string, baseURL string) (item *listgrab.Item, err error) {
	defer func() {
		if err != nil {
			e.logger.Debug("extract failed", "bytes", len(html), "err", err)
			return
		}
		e.logger.Debug("extract", "bytes", len(html), "fields", len(item.Fields))
	}()
	return e.next.Extract(html, baseURL)
}
