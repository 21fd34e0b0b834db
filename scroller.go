package listgrab

import "time"

// ScrollerStatus is the state of an auto-scroller.
type ScrollerStatus string

// ScrollerStatus constants.
const (
	StatusIdle    ScrollerStatus = "idle"
	StatusRunning ScrollerStatus = "running"
	StatusPaused  ScrollerStatus = "paused"
	StatusError   ScrollerStatus = "error"
)

// MaxRetriesMessage is recorded when the page stops growing and every retry
// has been used up.
const MaxRetriesMessage = "no new content after maximum retries"

// ScrollerConfig defines the pacing and patience of an auto-scroller.
type ScrollerConfig struct {
	// Throttle is the interval between ticks.
	Throttle time.Duration `yaml:"throttle"`

	// MaxItems stops the run once the coarse item count reaches it.
	// Zero means unbounded.
	MaxItems int `yaml:"max_items"`

	// RetryCount is the number of backoff cycles allowed before giving up.
	RetryCount int `yaml:"retry_count"`

	// RetryDelay is the base delay of the exponential backoff.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxBackoff caps the backoff delay. Zero means uncapped.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// DefaultScrollerConfig returns the default scroller pacing.
func DefaultScrollerConfig() ScrollerConfig {
	return ScrollerConfig{
		Throttle:   1 * time.Second,
		RetryCount: 3,
		RetryDelay: 1 * time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Validate returns an error if any numeric value is negative.
func (c ScrollerConfig) Validate() error {
	if c.Throttle < 0 {
		return Errorf(EINVALID, "throttle must not be negative, got %s", c.Throttle)
	}
	if c.MaxItems < 0 {
		return Errorf(EINVALID, "max items must not be negative, got %d", c.MaxItems)
	}
	if c.RetryCount < 0 {
		return Errorf(EINVALID, "retry count must not be negative, got %d", c.RetryCount)
	}
	if c.RetryDelay < 0 {
		return Errorf(EINVALID, "retry delay must not be negative, got %s", c.RetryDelay)
	}
	if c.MaxBackoff < 0 {
		return Errorf(EINVALID, "max backoff must not be negative, got %s", c.MaxBackoff)
	}
	return nil
}

// ScrollerState is the observable state of an auto-scroller.
type ScrollerState struct {
	Status         ScrollerStatus `json:"status"`
	ItemsCollected int            `json:"itemsCollected"`
	Errors         []string       `json:"errors"`
}

// Clone returns a deep copy of s.
func (s ScrollerState) Clone() ScrollerState {
	c := s
	if s.Errors != nil {
		c.Errors = append([]string(nil), s.Errors...)
	}
	return c
}

// LastError returns the most recent error, or "" if none was recorded.
func (s ScrollerState) LastError() string {
	if len(s.Errors) == 0 {
		return ""
	}
	return s.Errors[len(s.Errors)-1]
}

// ProgressListener receives a snapshot of the full scroller state on every
// state change. Listeners are registered and removed by reference, so
// implementations should be pointers.
type ProgressListener interface {
	OnProgress(state ScrollerState)
}

// ProgressListenerFunc adapts a function to ProgressListener.
// Wrap it in a pointer if it needs to be removed later.
type ProgressListenerFunc func(state ScrollerState)

// OnProgress calls f(state).
func (f ProgressListenerFunc) OnProgress(state ScrollerState) {
	f(state)
}

// Backoff returns the exponential retry delay base * 2^attempt, capped at
// maxDelay when maxDelay is positive.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if maxDelay > 0 && d >= maxDelay {
			break
		}
		// Stop doubling before overflowing.
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
