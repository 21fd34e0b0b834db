package mock

import "github.com/fwojciec/listgrab"

var _ listgrab.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of listgrab.Extractor.
type Extractor struct {
	ExtractFn func(html string, baseURL string) (*listgrab.Item, error)
}

func (e *Extractor) Extract(html string, baseURL string) (*listgrab.Item, error) {
	return e.ExtractFn(html, baseURL)
}

var _ listgrab.ItemSink = (*ItemSink)(nil)

// ItemSink is a mock implementation of listgrab.ItemSink.
type ItemSink struct {
	WriteItemsFn func(items []*listgrab.Item) error
}

func (s *ItemSink) WriteItems(items []*listgrab.Item) error {
	return s.WriteItemsFn(items)
}
