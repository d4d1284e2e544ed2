// Package guard exposes the host operations of the capture guard: capture
// detection, screenshot prevention and the capture status query.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/debounce"
	"github.com/bryanchriswhite/ScreenGuard/internal/detection"
	"github.com/bryanchriswhite/ScreenGuard/internal/events"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/secure"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
	"github.com/bryanchriswhite/ScreenGuard/internal/uithread"
)

// Error codes surfaced to hosts
const (
	CodeNoActivity    = "NO_ACTIVITY"
	CodeUnsupported   = "UNSUPPORTED"
	CodeAlreadyActive = "ALREADY_ACTIVE"
	CodeInternal      = "INTERNAL"
)

// Code classifies an operation error into a host error code. nil maps to "".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, detection.ErrNoActiveSurface):
		return CodeNoActivity
	case errors.Is(err, detection.ErrUnsupported):
		return CodeUnsupported
	case errors.Is(err, detection.ErrAlreadyActive):
		return CodeAlreadyActive
	default:
		return CodeInternal
	}
}

// RecorderProbe answers whether a screen recorder is running
type RecorderProbe interface {
	Active() bool
}

// Options wires a Guard
type Options struct {
	Facility detection.Facility
	Surfaces surface.Provider
	Snapshot detection.Snapshotter
	Recorder RecorderProbe
	Bus      *events.Bus
	Cooldown time.Duration

	// LoopDepth bounds the UI loop queue
	LoopDepth int
}

// Status is a point-in-time view of the guard
type Status struct {
	BeingCaptured   bool   `json:"being_captured"`
	DetectionActive bool   `json:"detection_active"`
	Prevent         bool   `json:"prevent"`
	Capability      string `json:"capability"`
	Facility        string `json:"facility"`
	SessionID       string `json:"session_id,omitempty"`
}

// Guard owns the UI loop, the detection session and the secure controller
type Guard struct {
	loop     *uithread.Loop
	bus      *events.Bus
	session  *detection.Session
	secure   *secure.Controller
	recorder RecorderProbe
	facility string
}

// New creates a Guard. Events are published on opts.Bus, or a private bus
// when nil.
func New(opts Options) *Guard {
	depth := opts.LoopDepth
	if depth <= 0 {
		depth = 64
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(0)
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = debounce.DefaultCooldown
	}

	loop := uithread.NewLoop(depth)
	g := &Guard{
		loop:     loop,
		bus:      bus,
		recorder: opts.Recorder,
		facility: opts.Facility.Name(),
	}
	g.session = detection.NewSession(detection.Config{
		Facility: opts.Facility,
		Surfaces: opts.Surfaces,
		Snapshot: opts.Snapshot,
		Notifier: bus,
		Loop:     loop,
		Window:   debounce.NewWindow(cooldown),
	})
	g.secure = secure.NewController(loop, opts.Surfaces, bus)
	return g
}

// Bus returns the event bus hosts subscribe to
func (g *Guard) Bus() *events.Bus {
	return g.bus
}

// StartScreenCaptureDetection registers for capture notifications
func (g *Guard) StartScreenCaptureDetection(ctx context.Context) error {
	return g.session.Start(ctx)
}

// StopScreenCaptureDetection unregisters from capture notifications
func (g *Guard) StopScreenCaptureDetection(ctx context.Context) error {
	return g.session.Stop(ctx)
}

// TogglePreventScreenshot raises or lowers the capture shield. success is
// false when there is no surface to protect.
func (g *Guard) TogglePreventScreenshot(ctx context.Context, isPrevent bool) (bool, error) {
	return g.secure.SetBlocked(ctx, isPrevent)
}

// ProtectFromScreenRecording is TogglePreventScreenshot(true)
func (g *Guard) ProtectFromScreenRecording(ctx context.Context) (bool, error) {
	return g.TogglePreventScreenshot(ctx, true)
}

// UnprotectFromScreenRecording is TogglePreventScreenshot(false)
func (g *Guard) UnprotectFromScreenRecording(ctx context.Context) (bool, error) {
	return g.TogglePreventScreenshot(ctx, false)
}

// IsBeingCaptured reports an active screen recording. Without a probe the
// answer is a conservative false.
func (g *Guard) IsBeingCaptured() bool {
	if g.recorder == nil {
		return false
	}
	return g.recorder.Active()
}

// Status returns the current guard state
func (g *Guard) Status() Status {
	capa := g.session.Capability()
	return Status{
		BeingCaptured:   g.IsBeingCaptured(),
		DetectionActive: g.session.State() == detection.Active,
		Prevent:         g.secure.Blocked(),
		Capability:      capa.String(),
		Facility:        g.facility,
		SessionID:       g.session.ID(),
	}
}

// Close stops detection, lowers the shield and stops the UI loop
func (g *Guard) Close(ctx context.Context) {
	log := logger.WithComponent("guard")

	if g.session.State() == detection.Active {
		if err := g.session.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop capture detection")
		}
	}
	if g.secure.Blocked() {
		if _, err := g.secure.SetBlocked(ctx, false); err != nil {
			log.Warn().Err(err).Msg("Failed to lower shield")
		}
	}
	g.loop.Close()
}
