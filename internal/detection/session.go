package detection

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/ScreenGuard/internal/capability"
	"github.com/bryanchriswhite/ScreenGuard/internal/debounce"
	"github.com/bryanchriswhite/ScreenGuard/internal/events"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/snapshot"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
	"github.com/google/uuid"
)

// State is the detection state machine state
type State int

const (
	Idle State = iota
	Active
)

// String implements fmt.Stringer
func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Loop is the UI-affinity execution context
type Loop interface {
	Run(ctx context.Context, fn func() error) error
	Post(fn func()) bool
	PostContext(ctx context.Context, fn func()) bool
}

// Snapshotter produces capture artifacts
type Snapshotter interface {
	Capture(s surface.Surface) snapshot.Artifact
}

// Config wires a Session
type Config struct {
	Facility Facility
	Surfaces surface.Provider
	Snapshot Snapshotter
	Notifier events.Notifier
	Loop     Loop
	Window   *debounce.Window
}

// Session owns one facility registration at a time.
// Register, unregister and every callback run on the loop.
type Session struct {
	facility Facility
	surfaces surface.Provider
	snap     Snapshotter
	notifier events.Notifier
	loop     Loop
	window   *debounce.Window
	ids      *debounce.IDSequence

	mu         sync.RWMutex
	state      State
	capability capability.Capability
	resolved   bool
	handle     Registration
	cancel     context.CancelFunc
	id         string
	generation uint64
}

// NewSession creates an idle session
func NewSession(cfg Config) *Session {
	window := cfg.Window
	if window == nil {
		window = debounce.NewWindow(debounce.DefaultCooldown)
	}
	return &Session{
		facility: cfg.Facility,
		surfaces: cfg.Surfaces,
		snap:     cfg.Snapshot,
		notifier: cfg.Notifier,
		loop:     cfg.Loop,
		window:   window,
		ids:      debounce.NewIDSequence(""),
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Capability returns the capability resolved by the last Start or Stop
func (s *Session) Capability() capability.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capability
}

// ID returns the id of the active session, empty when idle
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Start registers with the capture facility
func (s *Session) Start(ctx context.Context) error {
	return s.loop.Run(ctx, s.start)
}

func (s *Session) start() error {
	log := logger.WithComponent("detection").With().Str("facility", s.facility.Name()).Logger()

	if s.State() == Active {
		return ErrAlreadyActive
	}

	if sf, ok := s.surfaces.Current(); !ok || sf == nil {
		return ErrNoActiveSurface
	}

	probe := s.facility.Probe()
	capa := capability.Resolve(probe)
	s.mu.Lock()
	s.capability = capa
	s.resolved = true
	gen := s.generation + 1
	s.generation = gen
	s.mu.Unlock()

	if !capa.CanDetect() {
		log.Info().
			Int("version", probe.Version).
			Int("min_version", probe.MinVersion).
			Bool("permission", probe.PermissionGranted).
			Str("capability", capa.String()).
			Msg("Capture detection unavailable")
		return ErrUnsupported
	}

	sessionID := uuid.NewString()
	s.ids.Reset(sessionID)
	s.window.Reset()

	regCtx, cancel := context.WithCancel(context.Background())
	handle, err := s.register(regCtx, gen)
	if err != nil {
		cancel()
		log.Error().Err(err).Msg("Failed to register capture callback")
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	s.emit(events.TypeDetectionStateChanged, events.DetectionStateChanged{Enabled: true})

	s.mu.Lock()
	s.state = Active
	s.handle = handle
	s.cancel = cancel
	s.id = sessionID
	s.mu.Unlock()

	log.Info().Str("session", sessionID).Msg("Capture detection started")
	return nil
}

// register normalizes panics from the platform layer into errors. Callbacks
// still waiting for queue space when ctx ends are dropped, so a facility
// blocked in dispatch can always finish Unregister.
func (s *Session) register(ctx context.Context, gen uint64) (handle Registration, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = fmt.Errorf("facility panicked during registration: %v", r)
		}
	}()

	dispatch := func(fn func()) {
		if !s.loop.PostContext(ctx, fn) {
			logger.WithComponent("detection").Debug().Msg("Dropped facility callback for an ended registration")
		}
	}
	handle, err = s.facility.Register(dispatch,
		func(sig Signal) { s.onSignal(gen, sig) },
		func(cause error) { s.onLost(gen, cause) },
	)
	if err == nil && handle == nil {
		err = fmt.Errorf("facility returned no registration")
	}
	return handle, err
}

// Stop unregisters from the capture facility
func (s *Session) Stop(ctx context.Context) error {
	return s.loop.Run(ctx, s.stop)
}

func (s *Session) stop() error {
	s.mu.Lock()
	if !s.resolved {
		s.capability = capability.Resolve(s.facility.Probe())
		s.resolved = true
	}
	capa := s.capability
	s.mu.Unlock()

	if !capa.CanDetect() {
		return ErrUnsupported
	}

	if s.State() != Active {
		return nil
	}

	s.teardown("stopped")
	return nil
}

// teardown unregisters, clears session state and announces the change
func (s *Session) teardown(reason string) {
	log := logger.WithComponent("detection").With().Str("facility", s.facility.Name()).Logger()

	s.mu.Lock()
	handle := s.handle
	cancel := s.cancel
	id := s.id
	s.state = Idle
	s.handle = nil
	s.cancel = nil
	s.id = ""
	s.generation++
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		if err := safeUnregister(handle); err != nil {
			log.Info().Err(err).Str("session", id).Msg("Failed to unregister capture callback")
		}
	}

	s.emit(events.TypeDetectionStateChanged, events.DetectionStateChanged{Enabled: false})
	log.Info().Str("session", id).Str("reason", reason).Msg("Capture detection stopped")
}

func safeUnregister(r Registration) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unregister panicked: %v", p)
		}
	}()
	return r.Unregister()
}

// current reports whether gen still names the active registration
func (s *Session) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Active && s.generation == gen
}

func (s *Session) onLost(gen uint64, cause error) {
	if !s.current(gen) {
		return
	}
	logger.WithComponent("detection").Warn().
		Err(cause).
		Str("facility", s.facility.Name()).
		Msg("Capture facility registration lost")
	s.teardown("registration lost")
}

func (s *Session) onSignal(gen uint64, sig Signal) {
	log := logger.WithComponent("detection")

	if !s.current(gen) {
		log.Debug().Str("id", sig.ID).Msg("Signal for a stale registration ignored")
		return
	}

	id := sig.ID
	if id == "" {
		id = s.ids.Next(s.window)
	}
	if !s.window.ShouldProcess(id) {
		log.Debug().Str("id", id).Msg("Duplicate capture signal suppressed")
		return
	}

	payload := events.ScreenshotDetected{
		Path:   sig.Path,
		Source: sig.Source,
	}
	if sf, ok := s.surfaces.Current(); ok && sf != nil && s.snap != nil {
		art := s.snap.Capture(sf)
		if art.Captured {
			payload.Captured = true
			payload.ImageBase64 = art.Base64()
			payload.ImageType = string(art.Format)
			payload.Width = art.Width
			payload.Height = art.Height
		}
	}

	log.Info().
		Str("id", id).
		Str("source", sig.Source).
		Bool("captured", payload.Captured).
		Msg("Screen capture detected")
	s.emit(events.TypeScreenshotDetected, payload)
}

func (s *Session) emit(t events.Type, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(events.New(t, payload))
}
