package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
)

// Detection sources
const (
	SourceWatchDir = "watchdir"
	SourcePortal   = "portal"
)

var hexColor = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// Config represents the application configuration
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	Detection DetectionConfig `json:"detection" yaml:"detection" mapstructure:"detection"`
	Snapshot  SnapshotConfig  `json:"snapshot" yaml:"snapshot" mapstructure:"snapshot"`
	Shield    ShieldConfig    `json:"shield" yaml:"shield" mapstructure:"shield"`
	Surface   SurfaceConfig   `json:"surface" yaml:"surface" mapstructure:"surface"`
	Recording RecordingConfig `json:"recording" yaml:"recording" mapstructure:"recording"`
}

// DetectionConfig selects and tunes the capture facility
type DetectionConfig struct {
	Source           string        `json:"source" yaml:"source" mapstructure:"source"`
	Cooldown         time.Duration `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`
	WatchDirs        []string      `json:"watch_dirs" yaml:"watch_dirs" mapstructure:"watch_dirs"`
	Extensions       []string      `json:"extensions" yaml:"extensions" mapstructure:"extensions"`
	MinPortalVersion int           `json:"min_portal_version" yaml:"min_portal_version" mapstructure:"min_portal_version"`
}

// SnapshotConfig tunes the artifact attached to screenshot events
type SnapshotConfig struct {
	// MaxWidth downsizes wider snapshots; 0 keeps full size
	MaxWidth int `json:"max_width" yaml:"max_width" mapstructure:"max_width"`
}

// ShieldConfig describes the opaque barrier raised while screenshots are prevented
type ShieldConfig struct {
	Color string `json:"color" yaml:"color" mapstructure:"color"`
}

// SurfaceConfig restricts which focused windows are protected
type SurfaceConfig struct {
	Patterns []string `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
}

// RecordingConfig lists the recorder processes that count as active capture
type RecordingConfig struct {
	ProcessNames []string `json:"process_names" yaml:"process_names" mapstructure:"process_names"`
}

// Validate checks values that cannot be fixed up silently
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port %d", c.ServerPort)
	}
	if _, err := logger.ParseLevelStrict(c.LogLevel); err != nil {
		return err
	}
	switch c.Detection.Source {
	case SourceWatchDir, SourcePortal:
	default:
		return fmt.Errorf("invalid detection.source %q (use %s or %s)", c.Detection.Source, SourceWatchDir, SourcePortal)
	}
	if c.Detection.Cooldown <= 0 {
		return fmt.Errorf("detection.cooldown must be positive, got %s", c.Detection.Cooldown)
	}
	if c.Snapshot.MaxWidth < 0 {
		return fmt.Errorf("snapshot.max_width must not be negative, got %d", c.Snapshot.MaxWidth)
	}
	if !hexColor.MatchString(c.Shield.Color) {
		return fmt.Errorf("invalid shield.color %q (use #rrggbb)", c.Shield.Color)
	}
	for _, p := range c.Surface.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid surface pattern %q: %w", p, err)
		}
	}
	return nil
}
