// Package scroll drives progressive loading of a page: it scrolls, clicks
// "load more" controls and backs off when the page stops growing.
package scroll

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/fwojciec/listgrab"
)

// Tick tuning.
const (
	// stagnationThreshold is the number of consecutive ticks without
	// progress that spends one retry.
	stagnationThreshold = 3

	// scrollFraction of the viewport height is scrolled per tick.
	scrollFraction = 0.8

	// bottomTolerance in pixels when deciding the viewport is at the bottom.
	bottomTolerance = 2

	// DefaultCallTimeout bounds the Document calls of one tick.
	DefaultCallTimeout = 10 * time.Second
)

// Scroller drives a Document towards its end on a timer.
//
// Status transitions: Start moves idle or error to running, Pause moves
// running to paused, Resume moves paused to running, Stop moves running or
// paused to idle. A run ends in idle when the item limit is reached or the
// page stops growing after every retry, and in error when Document calls
// keep failing after every retry.
//
// Every state change is delivered to the listeners registered at the time
// of the change, in order, before the next tick is scheduled. The call
// that caused a change delivers it before returning, unless another
// goroutine is already delivering. Listeners run outside the Scroller's
// lock and may call back into it.
//
// Scroller is safe for concurrent use.
type Scroller struct {
	doc           listgrab.Document
	clock         Clock
	logger        *slog.Logger
	callTimeout   time.Duration
	itemSelectors []string

	mu        sync.Mutex
	state     listgrab.ScrollerState
	cfg       *listgrab.ScrollerConfig
	listeners []listener
	nextID    int

	// Snapshots waiting for delivery, and whether a goroutine is
	// delivering them.
	outbox      []event
	dispatching bool

	// Per-run resources.
	run         uint64
	runCtx      context.Context
	cancelRun   context.CancelFunc
	timer       Timer
	pending     *struct{}
	stopObserve func()

	// Tick counters.
	lastHeight   float64
	noChange     int
	retryAttempt int
}

type listener struct {
	id int
	l  listgrab.ProgressListener
}

type event struct {
	listeners []listgrab.ProgressListener
	state     listgrab.ScrollerState
}

// Option configures a Scroller.
type Option func(*Scroller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scroller) {
		s.logger = logger
	}
}

// WithClock sets the clock used to schedule ticks.
func WithClock(c Clock) Option {
	return func(s *Scroller) {
		s.clock = c
	}
}

// WithCallTimeout bounds the Document calls made by one tick.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Scroller) {
		s.callTimeout = d
	}
}

// WithItemSelectors replaces DefaultItemSelectors for the coarse item count.
func WithItemSelectors(selectors ...string) Option {
	return func(s *Scroller) {
		s.itemSelectors = selectors
	}
}

// NewScroller returns an idle Scroller over doc.
func NewScroller(doc listgrab.Document, opts ...Option) *Scroller {
	s := &Scroller{
		doc:           doc,
		clock:         RealClock{},
		logger:        slog.New(slog.DiscardHandler),
		callTimeout:   DefaultCallTimeout,
		itemSelectors: DefaultItemSelectors,
		state:         listgrab.ScrollerState{Status: listgrab.StatusIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current state.
func (s *Scroller) State() listgrab.ScrollerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddListener registers l and returns a function that removes it.
func (s *Scroller) AddListener(l listgrab.ProgressListener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, l: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, ln := range s.listeners {
			if ln.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// RemoveListener removes every registration of l. Listeners of a
// non-comparable type can only be removed with the function returned by
// AddListener.
func (s *Scroller) RemoveListener(l listgrab.ProgressListener) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.listeners[:0]
	for _, ln := range s.listeners {
		if reflect.TypeOf(ln.l).Comparable() && ln.l == l {
			continue
		}
		kept = append(kept, ln)
	}
	s.listeners = kept
}

// Start begins a run with cfg. The first tick is scheduled immediately.
//
// Returns ECONFLICT if a run is active or paused, and EINVALID if cfg has a
// negative value. ctx is only used to subscribe to mutations; Stop ends the
// run.
func (s *Scroller) Start(ctx context.Context, cfg listgrab.ScrollerConfig) error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Status {
	case listgrab.StatusRunning, listgrab.StatusPaused:
		return listgrab.Errorf(listgrab.ECONFLICT, "scroller is already %s", s.state.Status)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.run++
	run := s.run
	stop, err := s.doc.Observe(ctx, s.onMutation(run))
	if err != nil {
		return fmt.Errorf("observing mutations: %w", err)
	}

	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	s.stopObserve = stop
	s.cfg = &cfg
	s.lastHeight = 0
	s.noChange = 0
	s.retryAttempt = 0
	s.state = listgrab.ScrollerState{Status: listgrab.StatusRunning}

	s.logger.Info("scroller started",
		"throttle", cfg.Throttle,
		"maxItems", cfg.MaxItems,
		"retryCount", cfg.RetryCount,
	)
	s.notify()
	s.schedule(0)
	return nil
}

// Pause suspends a running scroller. The mutation observer stays connected.
func (s *Scroller) Pause() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != listgrab.StatusRunning {
		s.logger.Warn("pause ignored", "status", s.state.Status)
		return
	}
	s.cancelTimer()
	s.state.Status = listgrab.StatusPaused
	s.logger.Info("scroller paused")
	s.notify()
}

// Resume continues a paused scroller after one throttle interval.
func (s *Scroller) Resume() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != listgrab.StatusPaused || s.cfg == nil {
		s.logger.Warn("resume ignored", "status", s.state.Status)
		return
	}
	s.state.Status = listgrab.StatusRunning
	s.logger.Info("scroller resumed")
	s.notify()
	s.schedule(s.cfg.Throttle)
}

// Stop ends the current run and releases its timer and observer. Stopping
// an errored scroller keeps the error status.
func (s *Scroller) Stop() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Status {
	case listgrab.StatusIdle:
		s.logger.Warn("stop ignored", "status", s.state.Status)
	case listgrab.StatusError:
		s.release()
	default:
		s.halt(listgrab.StatusIdle)
		s.logger.Info("scroller stopped", "items", s.state.ItemsCollected)
	}
}

// Close stops any run and removes all listeners.
func (s *Scroller) Close() error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Status {
	case listgrab.StatusRunning, listgrab.StatusPaused:
		s.halt(listgrab.StatusIdle)
	default:
		s.release()
	}
	s.listeners = nil
	return nil
}

// schedule arms the tick timer. Must be called with mu held.
func (s *Scroller) schedule(d time.Duration) {
	s.cancelTimer()
	token := new(struct{})
	s.pending = token
	s.timer = s.clock.AfterFunc(d, func() { s.onTimer(token) })
}

// cancelTimer must be called with mu held.
func (s *Scroller) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.pending = nil
}

// release frees the run's timer, observer and context. Must be called with
// mu held.
func (s *Scroller) release() {
	s.cancelTimer()
	if s.stopObserve != nil {
		s.stopObserve()
		s.stopObserve = nil
	}
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.run++
}

// halt releases the run and moves to status. Must be called with mu held.
func (s *Scroller) halt(status listgrab.ScrollerStatus) {
	s.release()
	s.state.Status = status
	s.notify()
}

// onTimer runs a tick, delivers its snapshots and then schedules the next
// tick unless a listener ended, paused or rescheduled the run meanwhile.
func (s *Scroller) onTimer(token *struct{}) {
	s.mu.Lock()
	if s.pending != token || s.state.Status != listgrab.StatusRunning {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.pending = nil
	run := s.run
	delay, ok := s.tick()
	s.mu.Unlock()

	s.flush()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == run && s.state.Status == listgrab.StatusRunning && s.pending == nil {
		s.schedule(delay)
	}
}

func (s *Scroller) onMutation(run uint64) listgrab.MutationFunc {
	return func(added int) {
		defer s.flush()
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.run != run {
			return
		}
		switch s.state.Status {
		case listgrab.StatusRunning, listgrab.StatusPaused:
		default:
			return
		}
		s.noChange = 0
		s.retryAttempt = 0

		ctx, cancel := context.WithTimeout(s.runCtx, s.callTimeout)
		defer cancel()
		count, err := CountItems(ctx, s.doc, s.itemSelectors)
		if err != nil {
			s.logger.Debug("count after mutation failed", "err", err)
			return
		}
		s.setItems(count)
	}
}

// tick runs one step and returns the delay before the next one. It reports
// false when the run ended. Must be called with mu held.
func (s *Scroller) tick() (time.Duration, bool) {
	ctx, cancel := context.WithTimeout(s.runCtx, s.callTimeout)
	defer cancel()

	delay, err := s.step(ctx)
	if s.state.Status != listgrab.StatusRunning {
		return 0, false
	}
	if err != nil {
		s.logger.Warn("tick failed", "err", err, "attempt", s.retryAttempt+1)
		s.appendError(err.Error())
		d, ok := s.retry()
		if !ok {
			s.halt(listgrab.StatusError)
			s.logger.Error("scroller failed", "err", err)
			return 0, false
		}
		return d, true
	}
	return delay, true
}

// step performs the tick logic and returns the delay before the next tick.
func (s *Scroller) step(ctx context.Context) (delay time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = listgrab.Errorf(listgrab.EINTERNAL, "tick panicked: %v", r)
		}
	}()

	cfg := *s.cfg

	m, err := s.doc.Metrics(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading scroll metrics: %w", err)
	}
	count, err := CountItems(ctx, s.doc, s.itemSelectors)
	if err != nil {
		return 0, err
	}
	s.setItems(count)

	if cfg.MaxItems > 0 && count >= cfg.MaxItems {
		s.logger.Info("item limit reached", "items", count, "maxItems", cfg.MaxItems)
		s.halt(listgrab.StatusIdle)
		return 0, nil
	}

	triedLoadMore := false
	if m.ScrollHeight == s.lastHeight {
		s.noChange++
		triedLoadMore = true
		clicked, err := s.loadMore(ctx)
		if err != nil {
			return 0, err
		}
		if clicked {
			s.noChange = 0
			return cfg.Throttle, nil
		}
		if s.noChange >= stagnationThreshold {
			return s.stagnated()
		}
	} else {
		s.noChange = 0
		s.retryAttempt = 0
		s.lastHeight = m.ScrollHeight
	}

	if !m.AtBottom(bottomTolerance) {
		if err := s.doc.ScrollBy(ctx, m.ViewportHeight*scrollFraction); err != nil {
			return 0, fmt.Errorf("scrolling: %w", err)
		}
		return cfg.Throttle, nil
	}

	if !triedLoadMore {
		clicked, err := s.loadMore(ctx)
		if err != nil {
			return 0, err
		}
		if clicked {
			s.noChange = 0
			return cfg.Throttle, nil
		}
		s.noChange++
		if s.noChange >= stagnationThreshold {
			return s.stagnated()
		}
	}
	return cfg.Throttle, nil
}

// stagnated spends a retry after consecutive ticks without progress, or ends
// the run when none are left.
func (s *Scroller) stagnated() (time.Duration, error) {
	d, ok := s.retry()
	if !ok {
		s.appendError(listgrab.MaxRetriesMessage)
		s.halt(listgrab.StatusIdle)
		s.logger.Info("scroller finished", "items", s.state.ItemsCollected, "reason", listgrab.MaxRetriesMessage)
		return 0, nil
	}
	s.logger.Debug("no new content, backing off", "attempt", s.retryAttempt, "delay", d)
	return d, nil
}

// retry consumes one attempt of the retry budget and returns its backoff
// delay. It reports false when the budget is exhausted.
func (s *Scroller) retry() (time.Duration, bool) {
	if s.retryAttempt >= s.cfg.RetryCount {
		return 0, false
	}
	s.retryAttempt++
	s.noChange = 0
	return listgrab.Backoff(s.retryAttempt-1, s.cfg.RetryDelay, s.cfg.MaxBackoff), true
}

func (s *Scroller) loadMore(ctx context.Context) (bool, error) {
	el, err := FindLoadMore(ctx, s.doc)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, nil
	}
	if err := s.doc.Click(ctx, el); err != nil {
		return false, fmt.Errorf("clicking load more: %w", err)
	}
	s.logger.Debug("clicked load more", "tag", el.Tag())
	return true, nil
}

// setItems must be called with mu held.
func (s *Scroller) setItems(count int) {
	if s.state.ItemsCollected == count {
		return
	}
	s.state.ItemsCollected = count
	s.notify()
}

// appendError must be called with mu held.
func (s *Scroller) appendError(msg string) {
	s.state.Errors = append(s.state.Errors, msg)
	s.notify()
}

// notify queues a snapshot for the current listeners. Must be called with
// mu held; flush delivers it.
func (s *Scroller) notify() {
	if len(s.listeners) == 0 {
		return
	}
	ls := make([]listgrab.ProgressListener, len(s.listeners))
	for i, ln := range s.listeners {
		ls[i] = ln.l
	}
	s.outbox = append(s.outbox, event{listeners: ls, state: s.state.Clone()})
}

// flush delivers queued snapshots in order. Must be called without mu held.
// A flush started while another is in progress, including one from inside
// a listener, leaves the queue to the running flush.
func (s *Scroller) flush() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.outbox) > 0 {
		batch := s.outbox
		s.outbox = nil
		s.mu.Unlock()

		for _, ev := range batch {
			for _, l := range ev.listeners {
				s.deliver(l, ev.state.Clone())
			}
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

func (s *Scroller) deliver(l listgrab.ProgressListener, state listgrab.ScrollerState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("progress listener panicked", "panic", r)
		}
	}()
	l.OnProgress(state)
}
