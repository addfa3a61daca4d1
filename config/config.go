package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Hotkey struct {
	Note    uint8         `yaml:"note"`
	Presses int           `yaml:"presses"`
	Window  time.Duration `yaml:"window"`
}

type Config struct {
	Device        string        `yaml:"device"`
	RecordingsDir string        `yaml:"recordings_dir"`
	SegmentLength time.Duration `yaml:"segment_length"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	Hotkey        Hotkey        `yaml:"hotkey"`
	Tempo         float64       `yaml:"tempo"`
	Resolution    uint16        `yaml:"resolution"`
	MinEvents     int           `yaml:"min_events"`
	LogLevel      string        `yaml:"log_level"`
	Reveal        bool          `yaml:"reveal"`
	RevealCommand []string      `yaml:"reveal_command,omitempty"`
}

// ConfigurationError is fatal at startup only.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func Default() *Config {
	dir := "midi_captures"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, "midi_captures")
	}
	return &Config{
		RecordingsDir: dir,
		SegmentLength: 5 * time.Minute,
		PollInterval:  2 * time.Second,
		TickInterval:  time.Second,
		Hotkey: Hotkey{
			Note:    36,
			Presses: 3,
			Window:  3 * time.Second,
		},
		Tempo:      120,
		Resolution: 960,
		MinEvents:  1,
		LogLevel:   "info",
		Reveal:     true,
	}
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midi-capture"), nil
}

// Path returns the default location of config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.RecordingsDir = expandHome(cfg.RecordingsDir)
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Device) == "":
		return &ConfigurationError{"device", "no target MIDI input given"}
	case c.RecordingsDir == "":
		return &ConfigurationError{"recordings_dir", "empty path"}
	case c.SegmentLength <= 0:
		return &ConfigurationError{"segment_length", "must be positive"}
	case c.PollInterval <= 0:
		return &ConfigurationError{"poll_interval", "must be positive"}
	case c.TickInterval <= 0:
		return &ConfigurationError{"tick_interval", "must be positive"}
	case c.Hotkey.Note > 127:
		return &ConfigurationError{"hotkey.note", fmt.Sprintf("%d is not a MIDI note", c.Hotkey.Note)}
	case c.Hotkey.Presses < 1:
		return &ConfigurationError{"hotkey.presses", "must be at least 1"}
	case c.Hotkey.Window <= 0:
		return &ConfigurationError{"hotkey.window", "must be positive"}
	case c.Tempo <= 0:
		return &ConfigurationError{"tempo", "must be positive"}
	case c.Resolution == 0:
		return &ConfigurationError{"resolution", "must be positive"}
	case c.MinEvents < 0:
		return &ConfigurationError{"min_events", "must not be negative"}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return &ConfigurationError{"log_level", fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	return nil
}

// Save writes the config as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
