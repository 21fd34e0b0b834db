package listgrab

// Item is the field record extracted from one pattern member.
type Item struct {
	// Key is the deduplication key derived from the normalized fields.
	Key string `json:"key"`

	// Index is the position of the item in discovery order.
	Index int `json:"index"`

	// Fields holds the extracted values, e.g. "title", "link", "image",
	// "text" and any data-* attributes of the item root.
	Fields map[string]string `json:"fields"`

	// HTML is the outer markup the fields were read from.
	HTML string `json:"-"`
}

// Extractor turns the markup of one pattern member into a field record.
type Extractor interface {
	// Extract reads fields from html. The baseURL is used to resolve
	// relative links and image sources.
	Extract(html string, baseURL string) (*Item, error)
}

// ItemSink receives newly discovered, deduplicated items.
type ItemSink interface {
	// WriteItems persists items in discovery order.
	WriteItems(items []*Item) error
}

// ItemSinkFunc adapts a function to the ItemSink interface.
type ItemSinkFunc func(items []*Item) error

// WriteItems calls f(items).
func (f ItemSinkFunc) WriteItems(items []*Item) error {
	return f(items)
}

// MultiSink returns an ItemSink that writes every batch to each sink in
// order, stopping at the first error. Nil sinks are skipped.
func MultiSink(sinks ...ItemSink) ItemSink {
	return ItemSinkFunc(func(items []*Item) error {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.WriteItems(items); err != nil {
				return err
			}
		}
		return nil
	})
}
