package mock

import "github.com/fwojciec/listgrab"

var _ listgrab.ProgressListener = (*ProgressListener)(nil)

// ProgressListener is a mock implementation of listgrab.ProgressListener.
type ProgressListener struct {
	OnProgressFn func(state listgrab.ScrollerState)
}

func (l *ProgressListener) OnProgress(state listgrab.ScrollerState) {
	l.OnProgressFn(state)
}
