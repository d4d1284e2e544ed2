package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
)

type rect struct {
	x, y          int16
	width, height uint16
}

// shield is an override-redirect window filled with a solid color and kept
// stacked above the protected window.
type shield struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	color  uint32

	mu     sync.Mutex
	win    xproto.Window // 0 while hidden
	target xproto.Window
	placed rect
}

func newShield(conn *xgb.Conn, screen *xproto.ScreenInfo, color uint32) *shield {
	return &shield{conn: conn, screen: screen, color: color}
}

// cover shows the shield over target, creating the shield window on first use
func (s *shield) cover(target xproto.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.bounds(target)
	if err != nil {
		return err
	}

	if s.win == 0 {
		if err := s.create(r); err != nil {
			return err
		}
	}
	s.target = target

	if err := s.place(r); err != nil {
		return err
	}

	logger.WithComponent("shield").Info().
		Str("window", windowID(target)).
		Uint16("width", r.width).
		Uint16("height", r.height).
		Msg("Shield raised")
	return nil
}

// uncover destroys the shield window; hiding an absent shield is a no-op
func (s *shield) uncover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.win == 0 {
		return nil
	}
	err := xproto.DestroyWindowChecked(s.conn, s.win).Check()
	s.win, s.target, s.placed = 0, 0, rect{}
	if err != nil {
		return fmt.Errorf("failed to destroy shield window: %w", err)
	}

	logger.WithComponent("shield").Info().Msg("Shield lowered")
	return nil
}

// follow keeps a visible shield aligned with its target after moves and resizes
func (s *shield) follow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.win == 0 {
		return nil
	}
	r, err := s.bounds(s.target)
	if err != nil {
		return err
	}
	if r == s.placed {
		return nil
	}
	return s.place(r)
}

// bounds returns the target's geometry in root coordinates
func (s *shield) bounds(target xproto.Window) (rect, error) {
	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(target)).Reply()
	if err != nil {
		return rect{}, fmt.Errorf("failed to get window geometry: %w", err)
	}
	pos, err := xproto.TranslateCoordinates(s.conn, target, s.screen.Root, 0, 0).Reply()
	if err != nil {
		return rect{}, fmt.Errorf("failed to translate coordinates: %w", err)
	}
	return rect{x: pos.DstX, y: pos.DstY, width: geom.Width, height: geom.Height}, nil
}

func (s *shield) create(r rect) error {
	win, err := xproto.NewWindowId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}

	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect)
	values := []uint32{s.color, 1}

	err = xproto.CreateWindowChecked(
		s.conn,
		s.screen.RootDepth,
		win,
		s.screen.Root,
		r.x, r.y,
		r.width, r.height,
		0,
		xproto.WindowClassInputOutput,
		s.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create shield window: %w", err)
	}

	classStr := "screenguard\x00ScreenGuard\x00"
	if err := xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		win,
		xproto.AtomWmClass,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check(); err != nil {
		logger.WithComponent("shield").Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(s.conn, win).Check(); err != nil {
		xproto.DestroyWindow(s.conn, win)
		return fmt.Errorf("failed to map shield window: %w", err)
	}

	s.win = win
	return nil
}

func (s *shield) place(r rect) error {
	err := xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight|xproto.ConfigWindowStackMode,
		[]uint32{
			uint32(int32(r.x)),
			uint32(int32(r.y)),
			uint32(r.width),
			uint32(r.height),
			xproto.StackModeAbove,
		},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to place shield window: %w", err)
	}
	s.conn.Sync()
	s.placed = r
	return nil
}
