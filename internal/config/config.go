package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Database Database `yaml:"database"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Refresh  Refresh  `yaml:"refresh"`
	Fetch    Fetch    `yaml:"fetch"`
	Enrich   Enrich   `yaml:"enrich"`
	Logging  Logging  `yaml:"logging"`
}

// Database selects the storage backend. For sqlite an empty DSN means
// benreader.db in the data directory.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Refresh controls the background poller.
type Refresh struct {
	Interval  time.Duration `yaml:"interval"`
	OnStartup bool          `yaml:"on_startup"`
}

type Fetch struct {
	UserAgent      string        `yaml:"user_agent"`
	FeedTimeout    time.Duration `yaml:"feed_timeout"`
	PaywallTimeout time.Duration `yaml:"paywall_timeout"`
	FaviconTimeout time.Duration `yaml:"favicon_timeout"`
	ArticleTimeout time.Duration `yaml:"article_timeout"`
}

// Enrich configures feed metadata lookups. An empty favicon service turns
// brand colors off.
type Enrich struct {
	FaviconService string `yaml:"favicon_service"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for benreader.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "benreader")
}

// DataDir returns the XDG data directory for benreader.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "benreader")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/benreader/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'benreader init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{Driver: "sqlite"},
		Server:   Server{Port: 8000},
		Refresh: Refresh{
			Interval:  30 * time.Minute,
			OnStartup: true,
		},
		Fetch: Fetch{
			UserAgent:      "BenReader/1.0",
			FeedTimeout:    15 * time.Second,
			PaywallTimeout: 10 * time.Second,
			FaviconTimeout: 5 * time.Second,
			ArticleTimeout: 15 * time.Second,
		},
		Enrich:  Enrich{FaviconService: "https://www.google.com/s2/favicons"},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("parsing config: unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("parsing config: database.dsn is required for postgres")
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabaseDSN returns the DSN to open: the configured one, or the SQLite
// file in the data directory.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.GetDataDir(), "benreader.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
