package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/capability"
	"github.com/bryanchriswhite/ScreenGuard/internal/debounce"
	"github.com/bryanchriswhite/ScreenGuard/internal/events"
	"github.com/bryanchriswhite/ScreenGuard/internal/snapshot"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
	"github.com/bryanchriswhite/ScreenGuard/internal/uithread"
)

type fakeRegistration struct {
	f *fakeFacility
}

func (r *fakeRegistration) Unregister() error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.unregistered++
	r.f.onSignal = nil
	return r.f.unregisterErr
}

type fakeFacility struct {
	probe         capability.Probe
	registerErr   error
	registerPanic bool
	unregisterErr error

	mu           sync.Mutex
	dispatch     func(func())
	onSignal     Callback
	onLost       func(error)
	registered   int
	unregistered int
}

func grantedFacility() *fakeFacility {
	return &fakeFacility{probe: capability.Probe{Version: 34, MinVersion: 34, PermissionGranted: true}}
}

func (f *fakeFacility) Name() string { return "fake" }

func (f *fakeFacility) Probe() capability.Probe { return f.probe }

func (f *fakeFacility) Register(dispatch func(func()), onSignal Callback, onLost func(error)) (Registration, error) {
	if f.registerPanic {
		panic("security exception")
	}
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatch = dispatch
	f.onSignal = onSignal
	f.onLost = onLost
	f.registered++
	return &fakeRegistration{f: f}, nil
}

// fire delivers a raw signal the way the platform would, through dispatch
func (f *fakeFacility) fire(sig Signal) {
	f.mu.Lock()
	dispatch, cb := f.dispatch, f.onSignal
	f.mu.Unlock()
	if cb == nil {
		return
	}
	dispatch(func() { cb(sig) })
}

func (f *fakeFacility) lose(err error) {
	f.mu.Lock()
	dispatch, cb := f.dispatch, f.onLost
	f.mu.Unlock()
	dispatch(func() { cb(err) })
}

type fakeSurface struct{}

func (fakeSurface) ID() string { return "win" }
func (fakeSurface) Size() (int, int) { return 4, 4 }
func (fakeSurface) Layout() error { return nil }
func (fakeSurface) SetSecure(bool) error { return nil }

func (fakeSurface) Render(dst *image.NRGBA) error {
	dst.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	session  *Session
	facility *fakeFacility
	rec      *recorder
	loop     *uithread.Loop
	clock    time.Time
	hasSurf  bool
}

func newHarness(t *testing.T, f *fakeFacility) *harness {
	t.Helper()
	h := &harness{
		facility: f,
		rec:      &recorder{},
		loop:     uithread.NewLoop(16),
		clock:    time.Unix(1700000000, 0),
		hasSurf:  true,
	}
	t.Cleanup(h.loop.Close)

	h.session = NewSession(Config{
		Facility: f,
		Surfaces: surface.ProviderFunc(func() (surface.Surface, bool) {
			if !h.hasSurf {
				return nil, false
			}
			return fakeSurface{}, true
		}),
		Snapshot: snapshot.NewProducer(0),
		Notifier: h.rec,
		Loop:     h.loop,
		Window:   debounce.NewWindow(10*time.Second, debounce.WithClock(func() time.Time { return h.clock })),
	})
	return h
}

// flush waits until every task queued so far has run
func (h *harness) flush(t *testing.T) {
	t.Helper()
	if err := h.loop.Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestStart_Succeeds(t *testing.T) {
	h := newHarness(t, grantedFacility())

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.session.State() != Active {
		t.Fatal("expected active session")
	}
	if h.session.ID() == "" {
		t.Fatal("active session must carry an id")
	}
	changed := h.rec.ofType(events.TypeDetectionStateChanged)
	if len(changed) != 1 || !changed[0].Payload.(events.DetectionStateChanged).Enabled {
		t.Fatalf("expected enabled:true event, got %+v", changed)
	}
}

func TestStart_TwiceFailsClosed(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)

	h.session.Start(context.Background())
	err := h.session.Start(context.Background())
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if f.registered != 1 {
		t.Fatalf("expected a single registration, got %d", f.registered)
	}
	if h.session.State() != Active {
		t.Fatal("failed double start must keep the session active")
	}
}

func TestStart_NoSurface(t *testing.T) {
	h := newHarness(t, grantedFacility())
	h.hasSurf = false

	if err := h.session.Start(context.Background()); !errors.Is(err, ErrNoActiveSurface) {
		t.Fatalf("expected ErrNoActiveSurface, got %v", err)
	}
	if h.session.State() != Idle {
		t.Fatal("session must stay idle")
	}
}

func TestStart_CapabilityGates(t *testing.T) {
	tests := []struct {
		name  string
		probe capability.Probe
	}{
		{"old version granted", capability.Probe{Version: 33, MinVersion: 34, PermissionGranted: true}},
		{"old version denied", capability.Probe{Version: 33, MinVersion: 34}},
		{"permission missing", capability.Probe{Version: 34, MinVersion: 34}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFacility{probe: tt.probe}
			h := newHarness(t, f)

			if err := h.session.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("expected ErrUnsupported, got %v", err)
			}
			if f.registered != 0 || h.session.State() != Idle {
				t.Fatal("unsupported capability must not register")
			}
			if len(h.rec.ofType(events.TypeDetectionStateChanged)) != 0 {
				t.Fatal("no state change may be emitted")
			}
		})
	}
}

func TestStart_RegistrationFaultsNormalized(t *testing.T) {
	for _, f := range []*fakeFacility{
		{probe: grantedFacility().probe, registerErr: errors.New("permission denied")},
		{probe: grantedFacility().probe, registerPanic: true},
	} {
		h := newHarness(t, f)
		if err := h.session.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		if h.session.State() != Idle {
			t.Fatal("failed registration must leave the session idle")
		}
	}
}

func TestStop_ClearsSession(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)

	h.session.Start(context.Background())
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.session.State() != Idle || h.session.ID() != "" {
		t.Fatal("expected idle session with no id")
	}
	if f.unregistered != 1 {
		t.Fatalf("expected one unregister, got %d", f.unregistered)
	}
	changed := h.rec.ofType(events.TypeDetectionStateChanged)
	if len(changed) != 2 || changed[1].Payload.(events.DetectionStateChanged).Enabled {
		t.Fatalf("expected enabled:false as the second event, got %+v", changed)
	}
}

func TestStop_UnregisterErrorIgnored(t *testing.T) {
	f := grantedFacility()
	f.unregisterErr = errors.New("already gone")
	h := newHarness(t, f)

	h.session.Start(context.Background())
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("unregister errors must not surface: %v", err)
	}
	if h.session.State() != Idle {
		t.Fatal("session must be idle")
	}
}

func TestStop_UnsupportedWhenNeverGranted(t *testing.T) {
	h := newHarness(t, &fakeFacility{probe: capability.Probe{Version: 1, MinVersion: 34, PermissionGranted: true}})

	if err := h.session.Stop(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStop_IdleIsNoop(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)

	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on idle: %v", err)
	}
	if f.unregistered != 0 || len(h.rec.events) != 0 {
		t.Fatal("idle stop must have no side effects")
	}
}

func TestStartStopSequences(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	ctx := context.Background()

	ops := []struct {
		start bool
		want  State
	}{
		{true, Active},
		{true, Active},
		{false, Idle},
		{false, Idle},
		{true, Active},
		{false, Idle},
	}
	for i, op := range ops {
		if op.start {
			h.session.Start(ctx)
		} else {
			h.session.Stop(ctx)
		}
		if got := h.session.State(); got != op.want {
			t.Fatalf("step %d: state %v, want %v", i, got, op.want)
		}
	}
	if f.registered != 2 || f.unregistered != 2 {
		t.Fatalf("expected 2 registrations and 2 unregistrations, got %d/%d", f.registered, f.unregistered)
	}
}

func TestSignal_EmitsOnceWithinCooldown(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	h.session.Start(context.Background())

	f.fire(Signal{Source: "fake"})
	h.flush(t)
	h.clock = h.clock.Add(3 * time.Second)
	f.fire(Signal{Source: "fake"})
	h.flush(t)

	shots := h.rec.ofType(events.TypeScreenshotDetected)
	if len(shots) != 1 {
		t.Fatalf("expected exactly one screenshot event, got %d", len(shots))
	}
	p := shots[0].Payload.(events.ScreenshotDetected)
	if !p.Captured || p.ImageType != "png" || p.ImageBase64 == "" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestSignal_PassesAfterCooldown(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	h.session.Start(context.Background())

	f.fire(Signal{})
	h.flush(t)
	h.clock = h.clock.Add(11 * time.Second)
	f.fire(Signal{})
	h.flush(t)

	if n := len(h.rec.ofType(events.TypeScreenshotDetected)); n != 2 {
		t.Fatalf("expected two screenshot events, got %d", n)
	}
}

func TestSignal_NaturalIDs(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	h.session.Start(context.Background())

	f.fire(Signal{ID: "/shots/a.png", Path: "/shots/a.png"})
	f.fire(Signal{ID: "/shots/a.png", Path: "/shots/a.png"})
	f.fire(Signal{ID: "/shots/b.png", Path: "/shots/b.png"})
	h.flush(t)

	shots := h.rec.ofType(events.TypeScreenshotDetected)
	if len(shots) != 2 {
		t.Fatalf("expected two distinct captures, got %d", len(shots))
	}
	if p := shots[1].Payload.(events.ScreenshotDetected); p.Path != "/shots/b.png" {
		t.Fatalf("expected path carried through, got %q", p.Path)
	}
}

func TestSignal_NoSurfaceStillEmits(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	h.session.Start(context.Background())

	h.hasSurf = false
	f.fire(Signal{})
	h.flush(t)

	shots := h.rec.ofType(events.TypeScreenshotDetected)
	if len(shots) != 1 {
		t.Fatalf("detection must not be dropped, got %d events", len(shots))
	}
	p := shots[0].Payload.(events.ScreenshotDetected)
	if p.Captured || p.ImageBase64 != "" || p.ImageType != "" {
		t.Fatalf("expected captured:false without payload, got %+v", p)
	}
}

func TestSignal_AfterStopIgnored(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	h.session.Start(context.Background())

	f.mu.Lock()
	dispatch, cb := f.dispatch, f.onSignal
	f.mu.Unlock()

	h.session.Stop(context.Background())
	dispatch(func() { cb(Signal{}) })
	h.flush(t)

	if n := len(h.rec.ofType(events.TypeScreenshotDetected)); n != 0 {
		t.Fatalf("callbacks after stop must be dropped, got %d events", n)
	}
}

func TestRegistrationLoss(t *testing.T) {
	f := grantedFacility()
	h := newHarness(t, f)
	h.session.Start(context.Background())

	f.lose(errors.New("watch directory removed"))
	h.flush(t)

	if h.session.State() != Idle {
		t.Fatal("lost registration must return the session to idle")
	}
	changed := h.rec.ofType(events.TypeDetectionStateChanged)
	if len(changed) != 2 || changed[1].Payload.(events.DetectionStateChanged).Enabled {
		t.Fatalf("expected enabled:false after loss, got %+v", changed)
	}
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("restart after loss: %v", err)
	}
}

// pumpFacility delivers signals from its own goroutine as fast as dispatch
// accepts them, and Unregister waits for that goroutine like the watchers do.
type pumpFacility struct {
	stop chan struct{}
	done chan struct{}
}

func (f *pumpFacility) Name() string { return "pump" }

func (f *pumpFacility) Probe() capability.Probe {
	return capability.Probe{Version: 1, MinVersion: 1, PermissionGranted: true}
}

func (f *pumpFacility) Register(dispatch func(func()), onSignal Callback, onLost func(error)) (Registration, error) {
	go func() {
		defer close(f.done)
		for i := 0; ; i++ {
			select {
			case <-f.stop:
				return
			default:
			}
			sig := Signal{ID: fmt.Sprintf("shot-%d", i)}
			dispatch(func() { onSignal(sig) })
		}
	}()
	return f, nil
}

func (f *pumpFacility) Unregister() error {
	close(f.stop)
	<-f.done
	return nil
}

func TestStop_FacilityBlockedOnFullLoop(t *testing.T) {
	f := &pumpFacility{stop: make(chan struct{}), done: make(chan struct{})}
	loop := uithread.NewLoop(1)
	t.Cleanup(loop.Close)
	rec := &recorder{}
	session := NewSession(Config{
		Facility: f,
		Surfaces: surface.ProviderFunc(func() (surface.Surface, bool) { return fakeSurface{}, true }),
		Notifier: rec,
		Loop:     loop,
	})

	release := make(chan struct{})
	started := make(chan error, 1)
	go func() { started <- session.Start(context.Background()) }()
	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	loop.Post(func() { <-release })

	// let the facility fill the queue and park in dispatch
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- session.Stop(context.Background()) }()
	close(release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung while the facility was blocked in dispatch")
	}

	if session.State() != Idle {
		t.Fatal("expected idle session after stop")
	}
	if err := loop.Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("loop unresponsive after stop: %v", err)
	}
	changed := rec.ofType(events.TypeDetectionStateChanged)
	if len(changed) != 2 || changed[1].Payload.(events.DetectionStateChanged).Enabled {
		t.Fatalf("expected enabled:false after stop, got %+v", changed)
	}
}
