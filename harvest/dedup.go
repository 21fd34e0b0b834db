package harvest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/bloom"
)

// FieldMarkdown is added to items when a Converter is configured. It is
// derived from the markup and takes no part in the item key.
const FieldMarkdown = "markdown"

// DefaultExpectedItems sizes the Bloom filter of a Deduper.
const DefaultExpectedItems = 10000

// ItemKey returns the content key of fields: an xxhash of the field names
// and their case-folded, whitespace-collapsed values.
func ItemKey(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == FieldMarkdown {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, name := range names {
		_, _ = h.WriteString(name)
		_, _ = h.WriteString("\x1f")
		_, _ = h.WriteString(normalize(fields[name]))
		_, _ = h.WriteString("\x1e")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func normalize(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

// Deduper keeps the keys of items seen so far. A Bloom filter answers most
// lookups for new items; a possible hit is confirmed against the exact key
// set.
//
// Deduper is safe for concurrent use.
type Deduper struct {
	mu     sync.Mutex
	filter *bloom.Filter
	keys   map[string]struct{}
}

// NewDeduper returns a Deduper sized for expected items.
func NewDeduper(expected uint) *Deduper {
	if expected == 0 {
		expected = DefaultExpectedItems
	}
	return &Deduper{
		filter: bloom.NewFilter(expected, bloom.DefaultFalsePositiveRate),
		keys:   make(map[string]struct{}),
	}
}

// Add sets item.Key when empty and reports whether the item is new.
func (d *Deduper) Add(item *listgrab.Item) bool {
	if item.Key == "" {
		item.Key = ItemKey(item.Fields)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestAndAdd(item.Key) {
		if _, ok := d.keys[item.Key]; ok {
			return false
		}
	}
	d.keys[item.Key] = struct{}{}
	return true
}

// Len returns the number of distinct items seen.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
