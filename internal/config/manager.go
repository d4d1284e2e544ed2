package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SCREENGUARD_DETECTION_SOURCE
const EnvPrefix = "SCREENGUARD"

// Defaults for every known key. Durations are kept as strings so the file
// written by Save stays human readable.
var defaults = map[string]any{
	"server_port":                  8090,
	"log_level":                    "info",
	"log_pretty":                   false,
	"detection.source":             SourceWatchDir,
	"detection.cooldown":           "10s",
	"detection.watch_dirs":         []string{"~/Pictures/Screenshots", "~/Pictures"},
	"detection.extensions":         []string{"png", "jpg", "jpeg", "webp"},
	"detection.min_portal_version": 2,
	"snapshot.max_width":           0,
	"shield.color":                 "#000000",
	"surface.patterns":             []string{},
	"recording.process_names":      []string{},
}

// flagKeys maps persistent CLI flags onto config keys
var flagKeys = map[string]string{
	"port":      "server_port",
	"log-level": "log_level",
	"pretty":    "log_pretty",
}

// Manager handles configuration. v layers env and flags over the file;
// stored holds only what belongs in the file and is what Save writes.
type Manager struct {
	configPath string
	v          *viper.Viper
	stored     *viper.Viper
	mu         sync.RWMutex
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

// DefaultPath returns $HOME/.config/screenguard/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "screenguard", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing file
// is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	stored := newViper(path)
	m := &Manager{configPath: path, stored: stored}

	if err := stored.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v := newViper(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	m.v = v

	logger.WithComponent("config").Debug().
		Str("path", path).
		Msg("Config loaded")

	return m, nil
}

// BindFlags lets changed CLI flags override file and environment values
func (m *Manager) BindFlags(flags *pflag.FlagSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := m.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Get returns a decoded snapshot of the configuration
func (m *Manager) Get() (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Lookup returns the raw value for key
func (m *Manager) Lookup(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, known := defaults[key]; !known && !m.v.IsSet(key) {
		return nil, false
	}
	return m.v.Get(key), true
}

// Set parses value according to the key's default type, validates the
// result and saves. Unknown keys are rejected.
func (m *Manager) Set(key, value string) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	parsed, err := parseValue(def, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	m.mu.Lock()
	prev := m.v.Get(key)
	prevStored := m.stored.Get(key)
	m.v.Set(key, parsed)
	m.stored.Set(key, parsed)
	m.mu.Unlock()

	cfg, err := m.Get()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		m.mu.Lock()
		m.v.Set(key, prev)
		m.stored.Set(key, prevStored)
		m.mu.Unlock()
		return err
	}

	return m.Save()
}

func parseValue(def any, value string) (any, error) {
	switch def.(type) {
	case int:
		return strconv.Atoi(value)
	case bool:
		return strconv.ParseBool(value)
	case []string:
		if strings.TrimSpace(value) == "" {
			return []string{}, nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return value, nil
	}
}

// Save writes the file-backed settings as YAML. Environment and flag
// overrides are never persisted.
func (m *Manager) Save() error {
	m.mu.RLock()
	settings := m.stored.AllSettings()
	m.mu.RUnlock()

	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
