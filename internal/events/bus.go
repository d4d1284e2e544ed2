package events

import (
	"sync"

	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
)

// Bus is the process-wide event channel handle. Listeners are reference
// counted: the fan-out is created by the first Acquire and torn down when
// the last subscription is released.
type Bus struct {
	depth int

	mu        sync.RWMutex
	listeners map[*Subscription]struct{}
	refs      int
	dropped   uint64
}

// Subscription is one listener's view of the bus
type Subscription struct {
	bus  *Bus
	ch   chan Event
	once sync.Once
}

// C returns the receive channel. It is closed on Release.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Release drops this subscription's reference. Safe to call more than once.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.bus.release(s)
	})
}

// NewBus creates a bus whose listeners buffer up to depth events
func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = 16
	}
	return &Bus{depth: depth}
}

// Acquire adds a listener and increments the reference count
func (b *Bus) Acquire() *Subscription {
	sub := &Subscription{bus: b, ch: make(chan Event, b.depth)}

	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[*Subscription]struct{})
		logger.WithComponent("events").Debug().Msg("Event channel opened")
	}
	b.listeners[sub] = struct{}{}
	b.refs++
	refs := b.refs
	b.mu.Unlock()

	logger.WithComponent("events").Debug().Int("listeners", refs).Msg("Listener added")
	return sub
}

func (b *Bus) release(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[sub]; !ok {
		return
	}
	delete(b.listeners, sub)
	close(sub.ch)
	b.refs--

	if b.refs == 0 {
		b.listeners = nil
		logger.WithComponent("events").Debug().Msg("Last listener released, event channel torn down")
	}
}

// Listeners returns the current reference count
func (b *Bus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refs
}

// Open reports whether the fan-out currently exists
func (b *Bus) Open() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listeners != nil
}

// Dropped returns how many deliveries were skipped for full or absent listeners
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Emit implements Notifier. It never blocks: slow listeners miss the event.
func (b *Bus) Emit(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs == 0 {
		b.dropped++
		logger.WithComponent("events").Debug().
			Str("type", string(evt.Type)).
			Msg("No listeners, event dropped")
		return
	}

	for sub := range b.listeners {
		select {
		case sub.ch <- evt:
		default:
			b.dropped++
			logger.WithComponent("events").Warn().
				Str("type", string(evt.Type)).
				Msg("Listener is slow, event dropped")
		}
	}
}
