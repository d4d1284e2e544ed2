// Package capability resolves whether capture detection can run on this host.
//
// Version thresholds and permission checks are folded into a single
// Capability value once per detection session; everything downstream
// switches on that value instead of re-probing the platform.
package capability

import "fmt"

// Capability is the resolved detection capability of a capture facility
type Capability int

const (
	// Unsupported means the facility is absent or too old
	Unsupported Capability = iota
	// SupportedNoPermission means the facility exists but access was not granted
	SupportedNoPermission
	// SupportedGranted means detection may be registered
	SupportedGranted
)

// String implements fmt.Stringer
func (c Capability) String() string {
	switch c {
	case Unsupported:
		return "unsupported"
	case SupportedNoPermission:
		return "supported_no_permission"
	case SupportedGranted:
		return "supported_granted"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// CanDetect reports whether a callback may be registered
func (c Capability) CanDetect() bool {
	return c == SupportedGranted
}

// Probe is a point-in-time reading of a facility's version and permission state
type Probe struct {
	// Version is the facility version reported by the platform, 0 if absent
	Version int
	// MinVersion is the first version that provides capture notifications
	MinVersion int
	// PermissionGranted is the result of the runtime permission check
	PermissionGranted bool
}

// Resolve derives the capability from a probe.
// A version below the threshold is Unsupported regardless of permission.
func Resolve(p Probe) Capability {
	if p.Version <= 0 || p.Version < p.MinVersion {
		return Unsupported
	}
	if !p.PermissionGranted {
		return SupportedNoPermission
	}
	return SupportedGranted
}
