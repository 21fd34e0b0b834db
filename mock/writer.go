package mock

import (
	"sync"

	"github.com/fwojciec/listgrab"
)

// ItemRecorder is an ItemSink that keeps every written item in memory.
type ItemRecorder struct {
	mu    sync.Mutex
	Items []*listgrab.Item
	Calls int
}

var _ listgrab.ItemSink = (*ItemRecorder)(nil)

func (r *ItemRecorder) WriteItems(items []*listgrab.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	r.Items = append(r.Items, items...)
	return nil
}

