// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the settings file is absent or partial
const (
	DefaultBackendURL       = "http://127.0.0.1:8000"
	DefaultCompressionLevel = 3
	DefaultDebounceMillis   = 300
)

// Settings is the user-editable part of the configuration, read from
// settings.yaml in the devopus directory.
type Settings struct {
	BackendURL       string `yaml:"backend_url"`
	PreviewDir       string `yaml:"preview_dir"`
	CompressionLevel int    `yaml:"compression_level"`
	DebounceMillis   int    `yaml:"debounce_millis"`
	GitHubToken      string `yaml:"github_token"`
}

// Config holds all application configuration and resolved paths
type Config struct {
	HomeDir      string
	DevopusDir   string
	DatabasePath string
	HistoryDir   string
	LogDir       string
	Settings     Settings
}

// Load creates a Config instance with resolved paths and settings
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	devopusDir := filepath.Join(home, ".devopus")
	logDir := filepath.Join(devopusDir, "logs")
	historyDir := filepath.Join(devopusDir, "history")

	// Ensure directories exist
	for _, dir := range []string{devopusDir, logDir, historyDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HomeDir:      home,
		DevopusDir:   devopusDir,
		DatabasePath: filepath.Join(devopusDir, "devopus.db"),
		HistoryDir:   historyDir,
		LogDir:       logDir,
	}

	settings, err := loadSettings(filepath.Join(devopusDir, "settings.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	if cfg.Settings.PreviewDir == "" {
		cfg.Settings.PreviewDir = filepath.Join(devopusDir, "preview")
	}

	return cfg, nil
}

// loadSettings reads settings.yaml, filling defaults for missing fields. A
// missing file is not an error.
func loadSettings(path string) (Settings, error) {
	settings := Settings{
		BackendURL:       DefaultBackendURL,
		CompressionLevel: DefaultCompressionLevel,
		DebounceMillis:   DefaultDebounceMillis,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse %s: %w", path, err)
	}

	if settings.BackendURL == "" {
		settings.BackendURL = DefaultBackendURL
	}
	if settings.CompressionLevel <= 0 {
		settings.CompressionLevel = DefaultCompressionLevel
	}
	if settings.DebounceMillis <= 0 {
		settings.DebounceMillis = DefaultDebounceMillis
	}

	return settings, nil
}

// SaveSettings writes the settings back to settings.yaml
func (c *Config) SaveSettings() error {
	data, err := yaml.Marshal(c.Settings)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.DevopusDir, "settings.yaml"), data, 0644)
}
