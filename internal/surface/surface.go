package surface

import (
	"image"
)

// Surface is a renderable display surface, typically the protected
// application window.
type Surface interface {
	// ID returns a stable identifier for logging
	ID() string

	// Size returns the current width and height in pixels
	Size() (width, height int)

	// Layout forces a measure and layout pass so Size reports fresh values
	Layout() error

	// Render draws the surface into dst, which is sized to Size().
	// Alpha must be preserved.
	Render(dst *image.NRGBA) error

	// SetSecure shows or hides the opaque capture shield over the surface
	SetSecure(secure bool) error
}

// Provider resolves the currently active surface
type Provider interface {
	// Current returns the active surface, or false if none is available
	// (no window focused, session locked, app in background)
	Current() (Surface, bool)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func() (Surface, bool)

// Current implements Provider
func (f ProviderFunc) Current() (Surface, bool) {
	return f()
}
