package detection

import "errors"

var (
	// ErrNoActiveSurface means there is no window to protect or snapshot
	ErrNoActiveSurface = errors.New("no active surface")

	// ErrUnsupported covers a missing or too old facility, a missing
	// permission and any registration fault raised by the platform
	ErrUnsupported = errors.New("screen capture detection is not supported")

	// ErrAlreadyActive is returned by Start while a session is running
	ErrAlreadyActive = errors.New("screen capture detection already active")
)
