package debounce

import (
	"strconv"
	"sync"
)

// IDSequence synthesizes event ids for facilities that provide none.
//
// The counter is reset only at session start. It keeps returning the same id
// while that id is still inside the window's cooldown, so a burst of
// notifications for one user action collapses onto one id. Once the id has
// expired the counter advances.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	n      uint64
	issued bool
}

// NewIDSequence creates a sequence whose ids start with prefix
func NewIDSequence(prefix string) *IDSequence {
	return &IDSequence{prefix: prefix}
}

// Reset restarts the counter under a new prefix
func (s *IDSequence) Reset(prefix string) {
	s.mu.Lock()
	s.prefix = prefix
	s.n = 0
	s.issued = false
	s.mu.Unlock()
}

// Next returns the id for the next raw signal, consulting w for expiry
func (s *IDSequence) Next(w *Window) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.issued && !w.Seen(s.idLocked()) {
		s.n++
	}
	s.issued = true
	return s.idLocked()
}

func (s *IDSequence) idLocked() string {
	return s.prefix + "-" + strconv.FormatUint(s.n, 10)
}
