package x11

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
)

var errNoCapturableChild = errors.New("no capturable child window")

// Window is a focused X11 window acting as the protected surface
type Window struct {
	tracker *Tracker
	id      xproto.Window
	title   string
	class   string

	geometry geometryFunc

	mu     sync.Mutex
	width  int
	height int
}

var _ surface.Surface = (*Window)(nil)

// ID implements surface.Surface
func (w *Window) ID() string {
	return windowID(w.id)
}

func windowID(win xproto.Window) string {
	return fmt.Sprintf("x11:0x%x", uint32(win))
}

// Size implements surface.Surface. The window may have been resized since it
// was focused, so the server is asked first; the last known size is used
// only when that fails.
func (w *Window) Size() (int, int) {
	if width, height, err := w.geometry(w.id); err == nil {
		w.setSize(width, height)
		return width, height
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// Layout flushes pending requests and re-reads the window geometry
func (w *Window) Layout() error {
	if w.tracker != nil {
		w.tracker.conn.Sync()
	}

	width, height, err := w.geometry(w.id)
	if err != nil {
		return err
	}
	w.setSize(width, height)
	return nil
}

func (w *Window) setSize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()
}

// Render implements surface.Surface. Windows that are not directly viewable
// (reparenting frames, unmapped wrappers) are captured through their first
// viewable child.
func (w *Window) Render(dst *image.NRGBA) error {
	t := w.tracker
	t.capture.Lock()
	defer t.capture.Unlock()

	log := logger.WithComponent("x11")
	win := w.id

	attrs, err := xproto.GetWindowAttributes(t.conn, win).Reply()
	if err != nil {
		return fmt.Errorf("failed to get window attributes: %w", err)
	}
	if attrs.Class != xproto.WindowClassInputOutput || attrs.MapState != xproto.MapStateViewable {
		child, err := t.findCapturableChild(win)
		if err != nil {
			return err
		}
		log.Debug().
			Str("window", w.ID()).
			Str("child", windowID(child)).
			Msg("Capturing through child window")
		win = child
	}

	geom, err := xproto.GetGeometry(t.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get window geometry: %w", err)
	}

	b := dst.Bounds()
	width := min(b.Dx(), int(geom.Width))
	height := min(b.Dy(), int(geom.Height))
	if width <= 0 || height <= 0 {
		return fmt.Errorf("window %s has no visible area", windowID(win))
	}

	drawable, release := t.drawableFor(win)
	defer release()

	reply, err := xproto.GetImage(
		t.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to get image: %w", err)
	}

	return convertBGRA(dst, reply.Data, width, height, reply.Depth)
}

// SetSecure implements surface.Surface by covering the window with the shield
func (w *Window) SetSecure(secure bool) error {
	if secure {
		return w.tracker.shield.cover(w.id)
	}
	return w.tracker.shield.uncover()
}

// drawableFor returns the window's Composite backing pixmap when available so
// obscured regions are captured, falling back to the window itself.
func (t *Tracker) drawableFor(win xproto.Window) (xproto.Drawable, func()) {
	noop := func() {}
	if !t.compositeEnabled {
		return xproto.Drawable(win), noop
	}

	log := logger.WithComponent("x11")
	if err := composite.RedirectWindowChecked(t.conn, win, composite.RedirectAutomatic).Check(); err != nil {
		log.Debug().Err(err).Str("window", windowID(win)).Msg("Composite redirect failed, capturing directly")
		return xproto.Drawable(win), noop
	}
	unredirect := func() { composite.UnredirectWindow(t.conn, win, composite.RedirectAutomatic) }

	pixmap, err := xproto.NewPixmapId(t.conn)
	if err != nil {
		return xproto.Drawable(win), unredirect
	}
	if err := composite.NameWindowPixmapChecked(t.conn, win, pixmap).Check(); err != nil {
		return xproto.Drawable(win), unredirect
	}

	return xproto.Drawable(pixmap), func() {
		xproto.FreePixmap(t.conn, pixmap)
		unredirect()
	}
}

// findCapturableChild searches depth-first for a viewable InputOutput child
func (t *Tracker) findCapturableChild(parent xproto.Window) (xproto.Window, error) {
	tree, err := xproto.QueryTree(t.conn, parent).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query tree: %w", err)
	}

	for _, child := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(t.conn, child).Reply()
		if err != nil {
			continue
		}
		geom, err := xproto.GetGeometry(t.conn, xproto.Drawable(child)).Reply()
		if err != nil {
			continue
		}

		if attrs.Class == xproto.WindowClassInputOutput && attrs.MapState == xproto.MapStateViewable {
			if geom.Width > 10 && geom.Height > 10 {
				return child, nil
			}
		}

		if grandchild, err := t.findCapturableChild(child); err == nil {
			return grandchild, nil
		}
	}

	return 0, errNoCapturableChild
}
