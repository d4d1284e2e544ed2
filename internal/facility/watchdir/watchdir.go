// Package watchdir detects screenshots by watching the directories that
// desktop screenshot tools save into.
package watchdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/capability"
	"github.com/bryanchriswhite/ScreenGuard/internal/detection"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const (
	// Name identifies this facility in config and events
	Name = "watchdir"

	// facilityVersion is reported when the watch backend is usable
	facilityVersion = 1
)

// DefaultExtensions are the file types screenshot tools write
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// ErrDirectoryRemoved is reported through onLost when a watched directory disappears
var ErrDirectoryRemoved = errors.New("watched directory removed")

// Facility watches screenshot directories for new image files
type Facility struct {
	dirs       []string
	extensions map[string]struct{}
}

// New creates a directory-watch facility
func New(dirs []string, extensions []string) *Facility {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	ext := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		ext[e] = struct{}{}
	}
	cleaned := make([]string, 0, len(dirs))
	for _, d := range dirs {
		cleaned = append(cleaned, expandHome(d))
	}
	return &Facility{dirs: cleaned, extensions: ext}
}

// DefaultDirs returns the usual screenshot locations for the current user
func DefaultDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dirs := []string{
		filepath.Join(home, "Pictures", "Screenshots"),
		filepath.Join(home, "Pictures"),
	}
	if xdg := os.Getenv("XDG_PICTURES_DIR"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "Screenshots"))
	}
	return dirs
}

// Name implements detection.Facility
func (f *Facility) Name() string {
	return Name
}

// Probe implements detection.Facility. The facility exists when at least one
// configured directory exists; permission is granted when every existing
// directory can be listed.
func (f *Facility) Probe() capability.Probe {
	probe := capability.Probe{MinVersion: facilityVersion}

	existing := f.existingDirs()
	if len(existing) == 0 {
		return probe
	}
	probe.Version = facilityVersion
	probe.PermissionGranted = true
	for _, d := range existing {
		if err := canList(d); err != nil {
			logger.WithComponent("watchdir").Debug().Err(err).Str("dir", d).Msg("Directory not readable")
			probe.PermissionGranted = false
		}
	}
	return probe
}

func (f *Facility) existingDirs() []string {
	var out []string
	for _, d := range f.dirs {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			out = append(out, d)
		}
	}
	return out
}

// Register implements detection.Facility
func (f *Facility) Register(dispatch func(func()), onSignal detection.Callback, onLost func(error)) (detection.Registration, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := f.existingDirs()
	watched := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", d, err)
		}
		watched[filepath.Clean(d)] = struct{}{}
	}
	if len(watched) == 0 {
		watcher.Close()
		return nil, fmt.Errorf("no screenshot directory to watch")
	}

	r := &registration{
		watcher:  watcher,
		watched:  watched,
		facility: f,
		dispatch: dispatch,
		onSignal: onSignal,
		onLost:   onLost,
		done:     make(chan struct{}),
	}
	go r.run()

	logger.WithComponent("watchdir").Info().
		Strs("dirs", dirs).
		Msg("Watching screenshot directories")
	return r, nil
}

func (f *Facility) matches(path string) bool {
	_, ok := f.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

type registration struct {
	watcher  *fsnotify.Watcher
	watched  map[string]struct{}
	facility *Facility
	dispatch func(func())
	onSignal detection.Callback
	onLost   func(error)

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (r *registration) run() {
	defer close(r.done)
	log := logger.WithComponent("watchdir")

	for {
		select {
		case evt, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
				if _, isDir := r.watched[filepath.Clean(evt.Name)]; isDir {
					delete(r.watched, filepath.Clean(evt.Name))
					if len(r.watched) == 0 {
						r.lost(fmt.Errorf("%w: %s", ErrDirectoryRemoved, evt.Name))
						return
					}
				}
				continue
			}
			if !evt.Has(fsnotify.Create) || !r.facility.matches(evt.Name) {
				continue
			}
			sig := detection.Signal{
				ID:     evt.Name,
				Path:   evt.Name,
				Source: Name,
				At:     time.Now(),
			}
			log.Debug().Str("path", evt.Name).Msg("Screenshot file created")
			r.dispatch(func() { r.onSignal(sig) })
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn().Err(err).Msg("Watch queue overflowed, some captures may be missed")
				continue
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (r *registration) lost(cause error) {
	if r.onLost == nil {
		return
	}
	r.dispatch(func() { r.onLost(cause) })
}

// Unregister implements detection.Registration
func (r *registration) Unregister() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.watcher.Close()
		<-r.done
	})
	return r.closeErr
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
