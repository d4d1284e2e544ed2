// Package portal detects screenshots by monitoring screenshot requests on the
// D-Bus session bus (xdg-desktop-portal, GNOME Shell, KWin).
package portal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/capability"
	"github.com/bryanchriswhite/ScreenGuard/internal/detection"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Name identifies this facility in config and events
const Name = "portal"

// Portal D-Bus constants
const (
	portalService    = "org.freedesktop.portal.Desktop"
	portalPath       = "/org/freedesktop/portal/desktop"
	screenshotIface  = "org.freedesktop.portal.Screenshot"
	gnomeShotIface   = "org.gnome.Shell.Screenshot"
	kwinShotIface    = "org.kde.kwin.ScreenShot2"
	becomeMonitor    = "org.freedesktop.DBus.Monitoring.BecomeMonitor"
	versionProperty  = screenshotIface + ".version"
	monitorQueueSize = 32
)

// ErrBusClosed is reported through onLost when the monitor connection drops
var ErrBusClosed = errors.New("session bus connection closed")

// screenshotMembers lists the method calls that mean "a capture is being taken"
var screenshotMembers = map[string]map[string]struct{}{
	screenshotIface: {"Screenshot": {}},
	gnomeShotIface:  {"Screenshot": {}, "ScreenshotWindow": {}, "ScreenshotArea": {}},
	kwinShotIface:   {"CaptureActiveWindow": {}, "CaptureWindow": {}, "CaptureArea": {}, "CaptureScreen": {}, "CaptureActiveScreen": {}, "CaptureWorkspace": {}, "CaptureInteractive": {}},
}

// Facility monitors the session bus for screenshot requests
type Facility struct {
	minVersion int
	connect    func() (*dbus.Conn, error)
}

// New creates a portal facility requiring at least minVersion of the
// Screenshot portal interface
func New(minVersion int) *Facility {
	if minVersion <= 0 {
		minVersion = 1
	}
	return &Facility{
		minVersion: minVersion,
		connect:    func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
	}
}

// Name implements detection.Facility
func (f *Facility) Name() string {
	return Name
}

// Probe implements detection.Facility. Version comes from the portal's
// version property; permission means the session bus accepted us.
func (f *Facility) Probe() capability.Probe {
	probe := capability.Probe{MinVersion: f.minVersion}
	log := logger.WithComponent("portal")

	conn, err := f.connect()
	if err != nil {
		log.Debug().Err(err).Msg("Session bus unavailable")
		return probe
	}
	defer conn.Close()
	probe.PermissionGranted = true

	v, err := conn.Object(portalService, portalPath).GetProperty(versionProperty)
	if err != nil {
		log.Debug().Err(err).Msg("Screenshot portal not available")
		return probe
	}
	probe.Version = versionOf(v)
	return probe
}

func versionOf(v dbus.Variant) int {
	switch n := v.Value().(type) {
	case uint32:
		return int(n)
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

func matchRules() []string {
	rules := make([]string, 0, len(screenshotMembers))
	for iface := range screenshotMembers {
		rules = append(rules, fmt.Sprintf("type='method_call',interface='%s'", iface))
	}
	return rules
}

// Register implements detection.Facility. The dedicated connection becomes a
// bus monitor; a bus policy that forbids monitoring surfaces as an error.
func (f *Facility) Register(dispatch func(func()), onSignal detection.Callback, onLost func(error)) (detection.Registration, error) {
	conn, err := f.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	call := conn.BusObject().Call(becomeMonitor, 0, matchRules(), uint32(0))
	if call.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to become bus monitor: %w", call.Err)
	}

	msgs := make(chan *dbus.Message, monitorQueueSize)
	conn.Eavesdrop(msgs)

	r := &registration{
		conn:     conn,
		msgs:     msgs,
		dispatch: dispatch,
		onSignal: onSignal,
		onLost:   onLost,
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	go r.run()

	logger.WithComponent("portal").Info().Msg("Monitoring session bus for screenshot requests")
	return r, nil
}

// classify reports whether msg is a screenshot request and names its origin
func classify(msg *dbus.Message) (string, bool) {
	if msg == nil || msg.Type != dbus.TypeMethodCall {
		return "", false
	}
	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	members, ok := screenshotMembers[iface]
	if !ok {
		return "", false
	}
	if _, ok := members[member]; !ok {
		return "", false
	}
	return iface + "." + member, true
}

type registration struct {
	conn     *dbus.Conn
	msgs     chan *dbus.Message
	dispatch func(func())
	onSignal detection.Callback
	onLost   func(error)

	done      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (r *registration) run() {
	defer close(r.done)
	log := logger.WithComponent("portal")

	for msg := range r.msgs {
		origin, ok := classify(msg)
		if !ok {
			continue
		}
		// One user action fans out into several calls (portal to compositor),
		// so no natural id is provided and the session synthesizes one.
		sig := detection.Signal{
			Source: Name + ":" + origin,
			At:     time.Now(),
		}
		log.Debug().Str("origin", origin).Msg("Screenshot request observed")
		r.dispatch(func() { r.onSignal(sig) })
	}

	select {
	case <-r.closing:
	default:
		if r.onLost != nil {
			r.dispatch(func() { r.onLost(ErrBusClosed) })
		}
	}
}

// Unregister implements detection.Registration
func (r *registration) Unregister() error {
	r.closeOnce.Do(func() {
		close(r.closing)
		r.closeErr = r.conn.Close()
		<-r.done
	})
	return r.closeErr
}
