package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/logger"
	"gopkg.in/yaml.v3"
)

// Geometry is a rectangle on the desktop in root-window coordinates.
// It doubles as a source's fallback capture region and as the desired
// placement of its receiver window.
type Geometry struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Source describes one mirrored video feed. Immutable after startup.
type Source struct {
	// ID is the path segment used for the stream route (/stream/{id}).
	ID string `json:"id" yaml:"id"`
	// Name is the AirPlay name advertised by the receiver instance.
	Name string `json:"name" yaml:"name"`
	// TitleMatch is the substring looked for in window titles when
	// resolving the receiver window. Defaults to Name when empty.
	TitleMatch string `json:"title_match" yaml:"title_match"`
	// PortBase is passed to the receiver so instances don't collide.
	PortBase int `json:"port_base" yaml:"port_base"`
	// Bounds is where the receiver window is positioned and the region
	// captured when direct window capture is unavailable.
	Bounds Geometry `json:"bounds" yaml:"bounds"`
}

// Title returns the window title substring for this source.
func (s Source) Title() string {
	if s.TitleMatch != "" {
		return s.TitleMatch
	}
	return s.Name
}

// StreamConfig holds encoding and pacing settings for all streams.
type StreamConfig struct {
	TargetFPS   int `json:"target_fps" yaml:"target_fps"`
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`
	// MaxWidth downscales frames wider than this before encoding.
	// Zero disables scaling.
	MaxWidth int `json:"max_width" yaml:"max_width"`
	// LookupIntervalMS throttles window re-resolution per session.
	LookupIntervalMS int `json:"lookup_interval_ms" yaml:"lookup_interval_ms"`
}

// FrameInterval returns the pacing interval between stream ticks.
func (c StreamConfig) FrameInterval() time.Duration {
	fps := c.TargetFPS
	if fps <= 0 {
		fps = 24
	}
	return time.Second / time.Duration(fps)
}

// LookupInterval returns the minimum delay between window lookups.
func (c StreamConfig) LookupInterval() time.Duration {
	if c.LookupIntervalMS <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(c.LookupIntervalMS) * time.Millisecond
}

// PositioningConfig controls the background window reconciler.
type PositioningConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	IntervalMS int  `json:"interval_ms" yaml:"interval_ms"`
}

// Interval returns the reconciler poll interval.
func (c PositioningConfig) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// ReceiverConfig controls the external AirPlay receiver processes.
type ReceiverConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Command is the receiver binary, uxplay by default.
	Command   string   `json:"command" yaml:"command"`
	ExtraArgs []string `json:"extra_args" yaml:"extra_args"`
	// StartupGraceMS is how long after launch the receiver is assumed
	// to still be creating its window.
	StartupGraceMS int `json:"startup_grace_ms" yaml:"startup_grace_ms"`
}

// StartupGrace returns the receiver startup grace period.
func (c ReceiverConfig) StartupGrace() time.Duration {
	if c.StartupGraceMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StartupGraceMS) * time.Millisecond
}

// Config represents the application configuration
type Config struct {
	ServerPort  int               `json:"server_port" yaml:"server_port"`
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Stream      StreamConfig      `json:"stream" yaml:"stream"`
	Positioning PositioningConfig `json:"positioning" yaml:"positioning"`
	Receiver    ReceiverConfig    `json:"receiver" yaml:"receiver"`
	Sources     []Source          `json:"sources" yaml:"sources"`
}

// SourceByID returns the source with the given id.
func (c *Config) SourceByID(id string) (Source, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

// Validate checks the configuration for values the pipelines cannot
// work with. It is called after load and before Save.
func (c *Config) Validate() error {
	if c.Stream.JPEGQuality < 0 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be 0..100, got %d", c.Stream.JPEGQuality)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("source with empty id")
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
		if src.Bounds.Width <= 0 || src.Bounds.Height <= 0 {
			return fmt.Errorf("source %q: bounds must have positive dimensions", src.ID)
		}
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager. When configFile is
// empty the default path under ~/.config/airmirror is used, and a
// default config is written on first run.
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "airmirror")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
	} else if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: actualConfigPath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("sources", len(m.config.Sources)).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration: two receiver instances
// side by side, matching the classic iPhone + iPad layout.
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Stream: StreamConfig{
			TargetFPS:        24,
			JPEGQuality:      75,
			LookupIntervalMS: 800,
		},
		Positioning: PositioningConfig{
			Enabled:    true,
			IntervalMS: 2000,
		},
		Receiver: ReceiverConfig{
			Enabled:        true,
			Command:        "uxplay",
			StartupGraceMS: 5000,
		},
		Sources: []Source{
			{
				ID:       "iphone",
				Name:     "Reflector-iPhone",
				PortBase: 7100,
				Bounds:   Geometry{Left: 80, Top: 80, Width: 430, Height: 930},
			},
			{
				ID:       "ipad",
				Name:     "Reflector-iPad",
				PortBase: 7200,
				Bounds:   Geometry{Left: 560, Top: 80, Width: 820, Height: 930},
			},
		},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Sources = append([]Source(nil), m.config.Sources...)
	return cfg
}

// GetConfigPath returns the path of the loaded config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetPort overrides the server port (flag override)
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level (flag override)
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}
