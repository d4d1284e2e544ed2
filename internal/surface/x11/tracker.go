// Package x11 provides protected surfaces backed by X11/XWayland windows.
package x11

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
)

// DefaultPollInterval is how often the focused window is re-read
const DefaultPollInterval = 500 * time.Millisecond

// Options configures a Tracker
type Options struct {
	// Patterns restricts protection to windows whose class or title matches
	// one of the regular expressions. Empty protects any focused window.
	Patterns []string

	// ShieldColor is the 0xRRGGBB fill of the capture shield
	ShieldColor uint32

	PollInterval time.Duration
}

// Tracker follows the focused X11 window and exposes it as the active surface
type Tracker struct {
	conn             *xgb.Conn
	screen           *xproto.ScreenInfo
	root             xproto.Window
	compositeEnabled bool
	patterns         []*regexp.Regexp
	interval         time.Duration
	geometry         geometryFunc

	shield *shield

	mu      sync.RWMutex
	current *Window

	// capture serializes GetImage round-trips
	capture sync.Mutex
}

var _ surface.Provider = (*Tracker)(nil)

// NewTracker connects to the X server named by $DISPLAY
func NewTracker(opts Options) (*Tracker, error) {
	patterns := make([]*regexp.Regexp, 0, len(opts.Patterns))
	for _, p := range opts.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid window pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	t := &Tracker{
		conn:     conn,
		screen:   screen,
		root:     screen.Root,
		patterns: patterns,
		interval: interval,
	}
	t.geometry = t.queryGeometry
	t.shield = newShield(conn, screen, opts.ShieldColor)

	log := logger.WithComponent("x11")
	if err := composite.Init(conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available - snapshots of obscured windows may be incomplete")
	} else {
		t.compositeEnabled = true
		log.Info().Msg("Composite extension initialized")
	}

	if err := t.refresh(); err != nil {
		log.Warn().Err(err).Msg("Failed to read initial focused window")
	}

	return t, nil
}

// Run polls the focused window until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log := logger.WithComponent("x11")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.refresh(); err != nil {
				log.Debug().Err(err).Msg("Failed to update focused window")
			}
			if err := t.shield.follow(); err != nil {
				log.Warn().Err(err).Msg("Failed to reposition shield")
			}
		}
	}
}

// Close hides the shield and closes the X connection
func (t *Tracker) Close() {
	if err := t.shield.uncover(); err != nil {
		logger.WithComponent("x11").Warn().Err(err).Msg("Failed to remove shield")
	}
	t.conn.Close()
}

// Current implements surface.Provider
func (t *Tracker) Current() (surface.Surface, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return nil, false
	}
	return t.current, true
}

// refresh reads the input focus and swaps the current window when it changes
func (t *Tracker) refresh() error {
	focus, err := xproto.GetInputFocus(t.conn).Reply()
	if err != nil {
		return err
	}

	win := focus.Focus
	if !isClientWindow(win, t.root) {
		t.setCurrent(nil)
		return nil
	}

	t.mu.RLock()
	same := t.current != nil && t.current.id == win
	t.mu.RUnlock()
	if same {
		return nil
	}

	info := t.windowInfo(win)
	if !t.protects(info) {
		t.setCurrent(nil)
		return nil
	}

	w := &Window{tracker: t, id: win, title: info.title, class: info.class, geometry: t.geometry}
	w.width, w.height = info.width, info.height
	t.setCurrent(w)
	return nil
}

func (t *Tracker) setCurrent(w *Window) {
	t.mu.Lock()
	prev := t.current
	t.current = w
	t.mu.Unlock()

	if prev == w || (prev != nil && w != nil && prev.id == w.id) {
		return
	}
	log := logger.WithComponent("x11")
	if w == nil {
		log.Debug().Msg("No protected window focused")
		return
	}
	log.Debug().
		Str("window", w.ID()).
		Str("class", w.class).
		Str("title", w.title).
		Msg("Protected window focused")
}

// isClientWindow filters the None and PointerRoot focus values
func isClientWindow(win, root xproto.Window) bool {
	return win != xproto.InputFocusNone && win != xproto.InputFocusPointerRoot && win != root
}

func (t *Tracker) protects(info windowInfo) bool {
	return matchesAny(t.patterns, info.class, info.title)
}

func matchesAny(patterns []*regexp.Regexp, class, title string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, re := range patterns {
		if re.MatchString(class) || re.MatchString(title) {
			return true
		}
	}
	return false
}

type windowInfo struct {
	title  string
	class  string
	width  int
	height int
}

// windowInfo reads geometry, title and class; missing properties stay empty
func (t *Tracker) windowInfo(win xproto.Window) windowInfo {
	var info windowInfo

	if width, height, err := t.geometry(win); err == nil {
		info.width, info.height = width, height
	}

	if title, err := t.property(win, "_NET_WM_NAME"); err == nil {
		info.title = title
	}
	if info.title == "" {
		if title, err := t.property(win, "WM_NAME"); err == nil {
			info.title = title
		}
	}

	if class, err := t.property(win, "WM_CLASS"); err == nil {
		info.class = wmClass(class)
	}

	return info
}

// geometryFunc reads the current size of a window
type geometryFunc func(win xproto.Window) (width, height int, err error)

func (t *Tracker) queryGeometry(win xproto.Window) (int, int, error) {
	geom, err := xproto.GetGeometry(t.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get window geometry: %w", err)
	}
	return int(geom.Width), int(geom.Height), nil
}

// wmClass returns the class half of a WM_CLASS "instance\0class\0" value
func wmClass(raw string) string {
	parts := strings.Split(strings.TrimRight(raw, "\x00"), "\x00")
	return parts[len(parts)-1]
}

func (t *Tracker) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(t.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func (t *Tracker) property(win xproto.Window, name string) (string, error) {
	atom, err := t.atom(name)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(
		t.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property %s", name)
	}
	return string(reply.Value), nil
}
