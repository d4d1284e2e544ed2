package events

import "time"

// Type names an event as the host sees it
type Type string

const (
	TypeDetectionStateChanged    Type = "screenCaptureDetectionChanged"
	TypeScreenshotDetected       Type = "userDidTakeScreenshot"
	TypePreventScreenshotChanged Type = "preventScreenshotChanged"
)

// Event is a typed payload forwarded to the host
type Event struct {
	Type    Type        `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// DetectionStateChanged reports detection being switched on or off
type DetectionStateChanged struct {
	Enabled bool `json:"enabled"`
}

// ScreenshotDetected reports a capture that passed the debounce window
type ScreenshotDetected struct {
	Captured    bool   `json:"captured"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	ImageType   string `json:"imageType,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	// Path is the capture file on disk when the facility knows it
	Path   string `json:"path,omitempty"`
	Source string `json:"source,omitempty"`
}

// PreventScreenshotChanged reports the outcome of a secure-flag toggle
type PreventScreenshotChanged struct {
	IsPrevent bool `json:"isPrevent"`
	Success   bool `json:"success"`
}

// Notifier receives events for the host. Implementations must not block.
type Notifier interface {
	Emit(evt Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Event)

// Emit implements Notifier
func (f NotifierFunc) Emit(evt Event) {
	f(evt)
}

// New stamps a payload with its type and the current time
func New(t Type, payload interface{}) Event {
	return Event{Type: t, At: time.Now(), Payload: payload}
}
