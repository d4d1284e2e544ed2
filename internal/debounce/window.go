package debounce

import (
	"sync"
	"time"
)

// DefaultCooldown is how long a processed event id suppresses repeats
const DefaultCooldown = 10 * time.Second

// Window suppresses duplicate event ids seen within a cooldown.
// Expired ids are purged lazily on every call.
type Window struct {
	cooldown time.Duration
	now      func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

// Option configures a Window
type Option func(*Window)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		w.now = now
	}
}

// NewWindow creates a debounce window. A non-positive cooldown uses DefaultCooldown.
func NewWindow(cooldown time.Duration, opts ...Option) *Window {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	w := &Window{
		cooldown: cooldown,
		now:      time.Now,
		recent:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Cooldown returns the configured cooldown
func (w *Window) Cooldown() time.Duration {
	return w.cooldown
}

// ShouldProcess returns false if id was recorded within the cooldown.
// Otherwise it records id at the current time and returns true.
func (w *Window) ShouldProcess(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.purgeLocked(now)

	if _, ok := w.recent[id]; ok {
		return false
	}
	w.recent[id] = now
	return true
}

// Seen reports whether id is still inside the cooldown without recording it
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked(w.now())
	_, ok := w.recent[id]
	return ok
}

// Len returns the number of ids currently held
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked(w.now())
	return len(w.recent)
}

// Reset forgets every recorded id
func (w *Window) Reset() {
	w.mu.Lock()
	w.recent = make(map[string]time.Time)
	w.mu.Unlock()
}

func (w *Window) purgeLocked(now time.Time) {
	for id, at := range w.recent {
		if now.Sub(at) >= w.cooldown {
			delete(w.recent, id)
		}
	}
}
