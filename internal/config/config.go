package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"reelbar/internal/browser"
	"reelbar/internal/engine"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where reelbar looks for its config when --config is not given.
const DefaultPath = "reelbar.yaml"

// Config holds all reelbar configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Polling    PollingConfig    `yaml:"polling"`
	Decoration DecorationConfig `yaml:"decoration"`
	Logging    LoggingConfig    `yaml:"logging"`

	// AdaptersFile holds extra page adapters; missing means built-ins only.
	AdaptersFile string `yaml:"adapters_file"`
}

// BrowserConfig configures the Chrome connection.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`
	Launch            []string `yaml:"launch"` // binary followed by flags
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	DrainInterval     string   `yaml:"drain_interval"`
	SessionStore      string   `yaml:"session_store"`
	TriggerPrefix     string   `yaml:"trigger_prefix"`
}

// PollingConfig sets the wait intervals of the tracking engine.
type PollingConfig struct {
	Container string `yaml:"container"`
	Items     string `yaml:"items"`
	Active    string `yaml:"active"`
	Ready     string `yaml:"ready"`
}

// DecorationConfig configures the mounted track.
type DecorationConfig struct {
	MountID string `yaml:"mount_id"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          false,
			ViewportWidth:     1280,
			ViewportHeight:    900,
			NavigationTimeout: "30s",
			DrainInterval:     "100ms",
			SessionStore:      ".reelbar/sessions.json",
			TriggerPrefix:     "https://www.youtube.com/",
		},
		Polling: PollingConfig{
			Container: "500ms",
			Items:     "500ms",
			Active:    "500ms",
			Ready:     "50ms",
		},
		Decoration: DecorationConfig{
			MountID: "reelbar-progress",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		AdaptersFile: ".reelbar/adapters.yaml",
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("REELBAR_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if v := os.Getenv("REELBAR_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = headless
		}
	}
	if path := os.Getenv("REELBAR_ADAPTERS"); path != "" {
		c.AdaptersFile = path
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.drain_interval":     c.Browser.DrainInterval,
		"polling.container":          c.Polling.Container,
		"polling.items":              c.Polling.Items,
		"polling.active":             c.Polling.Active,
		"polling.ready":              c.Polling.Ready,
	} {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", name, v)
		}
	}
	if len(c.Browser.Launch) > 0 && c.Browser.Launch[0] == "" {
		return fmt.Errorf("browser.launch: empty binary")
	}
	return nil
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetNavigationTimeout returns the page navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	return durationOr(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetDrainInterval returns how often page events are collected.
func (c *Config) GetDrainInterval() time.Duration {
	return durationOr(c.Browser.DrainInterval, 100*time.Millisecond)
}

// EngineOptions returns the tracking engine options for this config.
func (c *Config) EngineOptions() engine.Options {
	def := engine.DefaultOptions()
	return engine.Options{
		ContainerInterval: durationOr(c.Polling.Container, def.ContainerInterval),
		ItemsInterval:     durationOr(c.Polling.Items, def.ItemsInterval),
		ActiveInterval:    durationOr(c.Polling.Active, def.ActiveInterval),
		ReadyInterval:     durationOr(c.Polling.Ready, def.ReadyInterval),
		MountID:           c.Decoration.MountID,
	}
}

// BrowserSettings returns the browser session manager config.
func (c *Config) BrowserSettings() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.DebuggerURL = c.Browser.DebuggerURL
	cfg.Launch = c.Browser.Launch
	cfg.Headless = c.Browser.Headless
	if c.Browser.ViewportWidth > 0 {
		cfg.ViewportWidth = c.Browser.ViewportWidth
	}
	if c.Browser.ViewportHeight > 0 {
		cfg.ViewportHeight = c.Browser.ViewportHeight
	}
	cfg.NavigationTimeout = c.GetNavigationTimeout()
	cfg.DrainInterval = c.GetDrainInterval()
	cfg.SessionStore = c.Browser.SessionStore
	if c.Browser.TriggerPrefix != "" {
		cfg.TriggerPrefix = c.Browser.TriggerPrefix
	}
	return cfg
}
