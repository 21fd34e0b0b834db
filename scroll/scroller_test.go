package scroll_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/goquery"
	"github.com/fwojciec/listgrab/mock"
	"github.com/fwojciec/listgrab/scroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

// page is a fixed-height page that never grows unless told to.
type page struct {
	clock      *manualClock
	height     float64
	items      int
	metricsErr error
	metricsAt  []time.Duration
	scrolls    int
	observer   listgrab.MutationFunc
	stops      int
}

func newPage(clock *manualClock) *page {
	return &page{clock: clock, height: 1000}
}

func (p *page) doc() *mock.Document {
	return &mock.Document{
		MetricsFn: func(ctx context.Context) (listgrab.ScrollMetrics, error) {
			p.metricsAt = append(p.metricsAt, p.clock.Now())
			if p.metricsErr != nil {
				return listgrab.ScrollMetrics{}, p.metricsErr
			}
			return listgrab.ScrollMetrics{ScrollHeight: p.height, ViewportHeight: p.height}, nil
		},
		QueryAllFn: func(ctx context.Context, selector string) ([]listgrab.Element, error) {
			if selector != "article" {
				return nil, nil
			}
			var els []listgrab.Element
			for i := 0; i < p.items; i++ {
				els = append(els, &mock.Element{ID: fmt.Sprintf("a%d", i), Name: "article"})
			}
			return els, nil
		},
		ScrollByFn: func(ctx context.Context, dy float64) error {
			p.scrolls++
			return nil
		},
		ObserveFn: func(ctx context.Context, fn listgrab.MutationFunc) (func(), error) {
			p.observer = fn
			return func() { p.stops++ }, nil
		},
	}
}

func testConfig() listgrab.ScrollerConfig {
	return listgrab.ScrollerConfig{
		Throttle:   100 * ms,
		RetryCount: 2,
		RetryDelay: 1000 * ms,
	}
}

func setup(t *testing.T) (*scroll.Scroller, *page, *manualClock) {
	t.Helper()
	clock := &manualClock{}
	p := newPage(clock)
	return scroll.NewScroller(p.doc(), scroll.WithClock(clock)), p, clock
}

func recorder() (*mock.ProgressListener, *[]listgrab.ScrollerState) {
	var states []listgrab.ScrollerState
	return &mock.ProgressListener{
		OnProgressFn: func(s listgrab.ScrollerState) {
			states = append(states, s)
		},
	}, &states
}

func TestScroller_Transitions(t *testing.T) {
	t.Parallel()

	t.Run("idle accepts only start", func(t *testing.T) {
		t.Parallel()

		s, _, _ := setup(t)

		s.Pause()
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
		s.Resume()
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
		s.Stop()
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)

		require.NoError(t, s.Start(context.Background(), testConfig()))
		assert.Equal(t, listgrab.StatusRunning, s.State().Status)
	})

	t.Run("running accepts pause and stop and rejects start", func(t *testing.T) {
		t.Parallel()

		s, _, _ := setup(t)
		require.NoError(t, s.Start(context.Background(), testConfig()))

		err := s.Start(context.Background(), testConfig())
		assert.Equal(t, listgrab.ECONFLICT, listgrab.ErrorCode(err))

		s.Resume()
		assert.Equal(t, listgrab.StatusRunning, s.State().Status)

		s.Pause()
		assert.Equal(t, listgrab.StatusPaused, s.State().Status)

		s.Resume()
		s.Stop()
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
	})

	t.Run("paused accepts resume and stop", func(t *testing.T) {
		t.Parallel()

		s, _, _ := setup(t)
		require.NoError(t, s.Start(context.Background(), testConfig()))
		s.Pause()

		s.Pause()
		assert.Equal(t, listgrab.StatusPaused, s.State().Status)

		err := s.Start(context.Background(), testConfig())
		assert.Equal(t, listgrab.ECONFLICT, listgrab.ErrorCode(err))

		s.Resume()
		assert.Equal(t, listgrab.StatusRunning, s.State().Status)

		s.Pause()
		s.Stop()
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
	})

	t.Run("rejects negative config", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		cfg := testConfig()
		cfg.RetryDelay = -ms

		err := s.Start(context.Background(), cfg)

		assert.Equal(t, listgrab.EINVALID, listgrab.ErrorCode(err))
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
		assert.Nil(t, p.observer)
		assert.Zero(t, clock.Pending())
	})

	t.Run("returns observe errors", func(t *testing.T) {
		t.Parallel()

		doc := &mock.Document{
			ObserveFn: func(ctx context.Context, fn listgrab.MutationFunc) (func(), error) {
				return nil, errors.New("detached")
			},
		}
		s := scroll.NewScroller(doc, scroll.WithClock(&manualClock{}))

		err := s.Start(context.Background(), testConfig())

		require.Error(t, err)
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
	})
}

func TestScroller_MaxItems(t *testing.T) {
	t.Parallel()

	s, p, clock := setup(t)
	p.items = 5
	l, states := recorder()
	s.AddListener(l)
	cfg := testConfig()
	cfg.MaxItems = 5

	require.NoError(t, s.Start(context.Background(), cfg))
	clock.Advance(0)

	state := s.State()
	assert.Equal(t, listgrab.StatusIdle, state.Status)
	assert.Equal(t, 5, state.ItemsCollected)
	assert.Empty(t, state.Errors)
	assert.Equal(t, 1, p.stops)
	assert.Zero(t, clock.Pending())

	require.Len(t, *states, 3)
	assert.Equal(t, listgrab.StatusRunning, (*states)[0].Status)
	assert.Equal(t, 5, (*states)[1].ItemsCollected)
	assert.Equal(t, listgrab.StatusIdle, (*states)[2].Status)
}

func TestScroller_Stagnation(t *testing.T) {
	t.Parallel()

	t.Run("backs off and ends idle when retries run out", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)

		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(time.Minute)

		state := s.State()
		assert.Equal(t, listgrab.StatusIdle, state.Status)
		assert.Equal(t, []string{listgrab.MaxRetriesMessage}, state.Errors)
		assert.Equal(t, []time.Duration{
			0, 100 * ms, 200 * ms,
			1200 * ms, 1300 * ms, 1400 * ms,
			3400 * ms, 3500 * ms, 3600 * ms,
		}, p.metricsAt)
		assert.Equal(t, 1, p.stops)
		assert.Zero(t, clock.Pending())
	})

	t.Run("scrolls while not at the bottom", func(t *testing.T) {
		t.Parallel()

		clock := &manualClock{}
		top := 0.0
		scrolled := []float64{}
		doc := &mock.Document{
			MetricsFn: func(ctx context.Context) (listgrab.ScrollMetrics, error) {
				return listgrab.ScrollMetrics{ScrollTop: top, ScrollHeight: 3000, ViewportHeight: 1000}, nil
			},
			QueryAllFn: func(ctx context.Context, selector string) ([]listgrab.Element, error) {
				return nil, nil
			},
			ScrollByFn: func(ctx context.Context, dy float64) error {
				scrolled = append(scrolled, dy)
				top += dy
				return nil
			},
			ObserveFn: func(ctx context.Context, fn listgrab.MutationFunc) (func(), error) {
				return func() {}, nil
			},
		}
		s := scroll.NewScroller(doc, scroll.WithClock(clock))

		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(100 * ms)

		assert.Equal(t, []float64{800, 800}, scrolled)
		assert.Equal(t, listgrab.StatusRunning, s.State().Status)
		s.Stop()
	})

	t.Run("mutations reset patience", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(100 * ms)

		p.items = 4
		p.observer(2)
		assert.Equal(t, 4, s.State().ItemsCollected)

		clock.Advance(2 * time.Second)

		require.GreaterOrEqual(t, len(p.metricsAt), 6)
		assert.Equal(t, []time.Duration{
			0, 100 * ms, 200 * ms, 300 * ms, 400 * ms, 1400 * ms,
		}, p.metricsAt[:6])
		s.Stop()
	})

	t.Run("stop during backoff releases the timer and observer", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(200 * ms)
		require.Equal(t, 1, clock.Pending())

		s.Stop()

		assert.Zero(t, clock.Pending())
		assert.Equal(t, 1, p.stops)
		clock.Advance(time.Minute)
		assert.Len(t, p.metricsAt, 3)
		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
		assert.Empty(t, s.State().Errors)
	})

	t.Run("mutations after stop are ignored", func(t *testing.T) {
		t.Parallel()

		s, p, _ := setup(t)
		require.NoError(t, s.Start(context.Background(), testConfig()))
		s.Stop()

		p.items = 7
		p.observer(1)

		assert.Zero(t, s.State().ItemsCollected)
	})
}

func TestScroller_Errors(t *testing.T) {
	t.Parallel()

	t.Run("ends in error when retries run out", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		p.metricsErr = errors.New("target closed")

		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(time.Minute)

		state := s.State()
		assert.Equal(t, listgrab.StatusError, state.Status)
		assert.Len(t, state.Errors, 3)
		assert.Contains(t, state.LastError(), "target closed")
		assert.Equal(t, []time.Duration{0, 1000 * ms, 3000 * ms}, p.metricsAt)
		assert.Equal(t, 1, p.stops)
		assert.Zero(t, clock.Pending())
	})

	t.Run("stop keeps the error status", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		p.metricsErr = errors.New("target closed")
		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(time.Minute)

		s.Stop()

		assert.Equal(t, listgrab.StatusError, s.State().Status)
	})

	t.Run("start after error begins a fresh run", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		p.metricsErr = errors.New("target closed")
		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(time.Minute)

		p.metricsErr = nil
		require.NoError(t, s.Start(context.Background(), testConfig()))

		state := s.State()
		assert.Equal(t, listgrab.StatusRunning, state.Status)
		assert.Empty(t, state.Errors)
		s.Stop()
	})
}

func TestScroller_Listeners(t *testing.T) {
	t.Parallel()

	t.Run("a panicking listener does not break others", func(t *testing.T) {
		t.Parallel()

		s, _, clock := setup(t)
		s.AddListener(&mock.ProgressListener{
			OnProgressFn: func(listgrab.ScrollerState) { panic("boom") },
		})
		l, states := recorder()
		s.AddListener(l)

		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(time.Minute)

		require.NotEmpty(t, *states)
		assert.Equal(t, listgrab.StatusRunning, (*states)[0].Status)
		assert.Equal(t, listgrab.StatusIdle, (*states)[len(*states)-1].Status)
	})

	t.Run("snapshots are independent", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		p.metricsErr = errors.New("boom")
		var first *listgrab.ScrollerState
		s.AddListener(&mock.ProgressListener{
			OnProgressFn: func(st listgrab.ScrollerState) {
				if len(st.Errors) > 0 {
					st.Errors[0] = "changed"
				}
			},
		})
		s.AddListener(&mock.ProgressListener{
			OnProgressFn: func(st listgrab.ScrollerState) {
				if first == nil && len(st.Errors) > 0 {
					first = &st
				}
			},
		})

		require.NoError(t, s.Start(context.Background(), testConfig()))
		clock.Advance(0)

		require.NotNil(t, first)
		assert.Equal(t, "reading scroll metrics: boom", first.Errors[0])
		assert.Equal(t, "reading scroll metrics: boom", s.State().Errors[0])
		s.Stop()
	})

	t.Run("removed listeners are not called", func(t *testing.T) {
		t.Parallel()

		s, _, _ := setup(t)
		l, states := recorder()
		s.AddListener(l)
		s.RemoveListener(l)

		calls := 0
		remove := s.AddListener(listgrab.ProgressListenerFunc(func(listgrab.ScrollerState) { calls++ }))
		remove()

		require.NoError(t, s.Start(context.Background(), testConfig()))
		s.Stop()

		assert.Empty(t, *states)
		assert.Zero(t, calls)
	})

	t.Run("a listener can stop the run", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		p.items = 3
		var seen []listgrab.ScrollerStatus
		s.AddListener(listgrab.ProgressListenerFunc(func(st listgrab.ScrollerState) {
			seen = append(seen, st.Status)
			if st.Status == listgrab.StatusRunning && st.ItemsCollected >= 2 {
				s.Stop()
				seen = append(seen, s.State().Status)
			}
		}))
		require.NoError(t, s.Start(context.Background(), testConfig()))

		done := make(chan struct{})
		go func() {
			defer close(done)
			clock.Advance(0)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tick blocked by a listener calling Stop")
		}

		assert.Equal(t, listgrab.StatusIdle, s.State().Status)
		assert.Equal(t, []listgrab.ScrollerStatus{
			listgrab.StatusRunning,
			listgrab.StatusRunning,
			listgrab.StatusIdle,
			listgrab.StatusIdle,
		}, seen)
		assert.Equal(t, 1, p.stops)
		assert.Zero(t, clock.Pending())
		assert.Len(t, p.metricsAt, 1)
	})

	t.Run("a listener can pause and resume", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		p.items = 3
		paused := false
		s.AddListener(listgrab.ProgressListenerFunc(func(st listgrab.ScrollerState) {
			if !paused && st.ItemsCollected == 3 {
				paused = true
				s.Pause()
			}
		}))
		require.NoError(t, s.Start(context.Background(), testConfig()))

		clock.Advance(time.Minute)
		assert.Equal(t, listgrab.StatusPaused, s.State().Status)
		assert.Zero(t, clock.Pending())
		assert.Len(t, p.metricsAt, 1)

		s.Resume()
		assert.Equal(t, 1, clock.Pending())
		s.Stop()
	})

	t.Run("close stops the run and drops listeners", func(t *testing.T) {
		t.Parallel()

		s, p, clock := setup(t)
		l, states := recorder()
		s.AddListener(l)
		require.NoError(t, s.Start(context.Background(), testConfig()))

		require.NoError(t, s.Close())
		n := len(*states)
		require.NoError(t, s.Start(context.Background(), testConfig()))

		assert.Len(t, *states, n)
		assert.Equal(t, 1, p.stops)
		s.Stop()
		assert.Zero(t, clock.Pending())
	})
}

func TestScroller_PauseResume(t *testing.T) {
	t.Parallel()

	s, p, clock := setup(t)
	require.NoError(t, s.Start(context.Background(), testConfig()))
	clock.Advance(0)
	s.Pause()

	clock.Advance(time.Minute)
	assert.Len(t, p.metricsAt, 1)
	assert.Zero(t, clock.Pending())
	assert.Zero(t, p.stops)

	s.Resume()
	clock.Advance(100 * ms)

	assert.Len(t, p.metricsAt, 2)
	s.Stop()
}

func TestScroller_PauseDuringBackoff(t *testing.T) {
	t.Parallel()

	s, p, clock := setup(t)
	require.NoError(t, s.Start(context.Background(), testConfig()))
	clock.Advance(200 * ms)
	require.Equal(t, 1, clock.Pending())
	require.Len(t, p.metricsAt, 3)

	s.Pause()

	assert.Zero(t, clock.Pending())
	clock.Advance(time.Minute)
	assert.Len(t, p.metricsAt, 3)
	assert.Zero(t, p.stops)

	s.Resume()
	clock.Advance(99 * ms)
	assert.Len(t, p.metricsAt, 3)
	clock.Advance(ms)

	require.Len(t, p.metricsAt, 4)
	assert.Equal(t, 200*ms+time.Minute+100*ms, p.metricsAt[3])
	s.Stop()
}

func TestScroller_LoadMore(t *testing.T) {
	t.Parallel()

	article := `<article>post</article>`
	doc, err := goquery.NewDocument(`<html><body><div id="feed">` +
		strings.Repeat(article, 3) +
		`</div><button class="load-more">Load more</button></body></html>`)
	require.NoError(t, err)
	require.NoError(t, doc.OnClick("button.load-more", func(d *goquery.Document) {
		assert.NoError(t, d.Append("#feed", strings.Repeat(article, 3)))
	}))
	clock := &manualClock{}
	s := scroll.NewScroller(doc, scroll.WithClock(clock))
	cfg := testConfig()
	cfg.MaxItems = 9

	require.NoError(t, s.Start(context.Background(), cfg))
	clock.Advance(time.Second)

	state := s.State()
	assert.Equal(t, listgrab.StatusIdle, state.Status)
	assert.Equal(t, 9, state.ItemsCollected)
	assert.Empty(t, state.Errors)
	assert.Zero(t, clock.Pending())
}
