// Package recording answers whether the screen is currently being recorded by
// looking for known screen recorder processes.
package recording

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultProcessNames are recorders commonly found on Linux desktops
var DefaultProcessNames = []string{
	"obs",
	"ffmpeg",
	"simplescreenrecorder",
	"kazam",
	"vokoscreenNG",
	"peek",
	"recordmydesktop",
	"wf-recorder",
	"gpu-screen-recorder",
	"kooha",
}

// cacheTTL bounds how often the process table is walked
const cacheTTL = time.Second

// Probe matches running processes against a set of recorder names
type Probe struct {
	names map[string]struct{}
	list  func() ([]string, error)
	now   func() time.Time

	mu      sync.Mutex
	checked time.Time
	last    string
}

// NewProbe creates a probe for the given process names (case-insensitive).
// An empty list uses DefaultProcessNames.
func NewProbe(names []string) *Probe {
	if len(names) == 0 {
		names = DefaultProcessNames
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return &Probe{
		names: set,
		list:  processNames,
		now:   time.Now,
	}
}

// Recorder returns the name of a running recorder, or "" if none is found or
// the process table cannot be read.
func (p *Probe) Recorder() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.checked.IsZero() && now.Sub(p.checked) < cacheTTL {
		return p.last
	}

	names, err := p.list()
	if err != nil {
		logger.WithComponent("recording").Debug().Err(err).Msg("Failed to list processes")
		p.checked, p.last = now, ""
		return ""
	}

	p.checked, p.last = now, ""
	for _, n := range names {
		if _, ok := p.names[strings.ToLower(filepath.Base(n))]; ok {
			p.last = n
			break
		}
	}
	return p.last
}

// Active reports whether a recorder is running
func (p *Probe) Active() bool {
	return p.Recorder() != ""
}

func processNames() ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
