package detection

import (
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/capability"
)

// Signal is one raw "capture detected" notification from a facility
type Signal struct {
	// ID is the facility's natural event id, empty if it has none
	ID string
	// Path is the capture file when the facility observed one on disk
	Path   string
	Source string
	At     time.Time
}

// Callback receives raw signals
type Callback func(Signal)

// Registration is the opaque handle of a registered callback
type Registration interface {
	Unregister() error
}

// Facility is a platform mechanism that notices screen captures.
//
// Register must route every onSignal and onLost invocation through dispatch
// so callbacks are serialized with other UI work. onLost reports that the
// registration stopped delivering for good.
type Facility interface {
	Name() string
	Probe() capability.Probe
	Register(dispatch func(func()), onSignal Callback, onLost func(error)) (Registration, error)
}
