// Package config loads the TOML configuration for rtkstories.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultAnkiURL            = "http://127.0.0.1:8765"
	defaultAnkiTimeout        = 10
	defaultReferenceURL       = "http://hochanh.github.io/rtk"
	defaultReferenceTimeout   = 30
	defaultCacheBackend       = BackendDir
	defaultCacheDir           = "cache"
	defaultCacheSQLitePath    = "cache.db"
	defaultListen             = "127.0.0.1:3000"
	defaultStaticDir          = "static"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultPrefetchWorkers    = 4
	defaultConfigFileName     = "rtkstories.toml"
	defaultUserConfigLocation = "~/.config/rtkstories/config.toml"
)

// Cache backends.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
)

// Anki configures the AnkiConnect endpoint and the deck being edited.
type Anki struct {
	URL            string `toml:"url"`
	Deck           string `toml:"deck"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Reference configures the site stories are scraped from.
type Reference struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cache selects where scraped story bundles are kept.
type Cache struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	SQLitePath string `toml:"sqlite_path"`
}

// Server configures the local web UI.
type Server struct {
	Listen    string `toml:"listen"`
	StaticDir string `toml:"static_dir"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Prefetch configures the cache warmer.
type Prefetch struct {
	Workers int `toml:"workers"`
}

// Config holds every setting of the tool.
type Config struct {
	Anki      Anki      `toml:"anki"`
	Reference Reference `toml:"reference"`
	Cache     Cache     `toml:"cache"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
	Prefetch  Prefetch  `toml:"prefetch"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Anki:      Anki{URL: defaultAnkiURL, TimeoutSeconds: defaultAnkiTimeout},
		Reference: Reference{BaseURL: defaultReferenceURL, TimeoutSeconds: defaultReferenceTimeout},
		Cache:     Cache{Backend: defaultCacheBackend, Dir: defaultCacheDir, SQLitePath: defaultCacheSQLitePath},
		Server:    Server{Listen: defaultListen, StaticDir: defaultStaticDir},
		Logging:   Logging{Level: defaultLogLevel, Format: defaultLogFormat},
		Prefetch:  Prefetch{Workers: defaultPrefetchWorkers},
	}
}

// Load reads the configuration at path. An empty path looks for
// ./rtkstories.toml and then ~/.config/rtkstories/config.toml; a missing file
// yields the defaults. The second return value reports whether a file was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, false, err
	}
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

func resolvePath(path string) (string, bool, error) {
	candidates := []string{path}
	if strings.TrimSpace(path) == "" {
		candidates = []string{defaultConfigFileName, defaultUserConfigLocation}
	}
	for _, candidate := range candidates {
		expanded, err := ExpandPath(candidate)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err == nil && !info.IsDir() {
			return expanded, true, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	return "", false, nil
}

func (c *Config) normalize() error {
	c.Anki.URL = strings.TrimRight(strings.TrimSpace(c.Anki.URL), "/")
	c.Anki.Deck = strings.TrimSpace(c.Anki.Deck)
	if c.Anki.URL == "" {
		c.Anki.URL = defaultAnkiURL
	}
	if c.Anki.TimeoutSeconds <= 0 {
		c.Anki.TimeoutSeconds = defaultAnkiTimeout
	}

	c.Reference.BaseURL = strings.TrimRight(strings.TrimSpace(c.Reference.BaseURL), "/")
	if c.Reference.BaseURL == "" {
		c.Reference.BaseURL = defaultReferenceURL
	}
	if c.Reference.TimeoutSeconds <= 0 {
		c.Reference.TimeoutSeconds = defaultReferenceTimeout
	}

	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	var err error
	if c.Cache.Dir, err = ExpandPath(orDefault(c.Cache.Dir, defaultCacheDir)); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	if c.Cache.SQLitePath, err = ExpandPath(orDefault(c.Cache.SQLitePath, defaultCacheSQLitePath)); err != nil {
		return fmt.Errorf("cache.sqlite_path: %w", err)
	}

	c.Server.Listen = orDefault(c.Server.Listen, defaultListen)
	if strings.TrimSpace(c.Server.StaticDir) != "" {
		if c.Server.StaticDir, err = ExpandPath(c.Server.StaticDir); err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}
	}

	c.Logging.Level = orDefault(c.Logging.Level, defaultLogLevel)
	c.Logging.Format = orDefault(c.Logging.Format, defaultLogFormat)

	if c.Prefetch.Workers <= 0 {
		c.Prefetch.Workers = defaultPrefetchWorkers
	}
	return nil
}

// Validate ensures the configuration is usable. The deck is not required here
// because commands that need one may take it from the command line.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendDir, BackendSQLite:
	default:
		return fmt.Errorf("cache.backend: unsupported value %q (want %q or %q)", c.Cache.Backend, BackendDir, BackendSQLite)
	}
	if !strings.HasPrefix(c.Anki.URL, "http://") && !strings.HasPrefix(c.Anki.URL, "https://") {
		return fmt.Errorf("anki.url: %q is not an http url", c.Anki.URL)
	}
	if !strings.HasPrefix(c.Reference.BaseURL, "http://") && !strings.HasPrefix(c.Reference.BaseURL, "https://") {
		return fmt.Errorf("reference.base_url: %q is not an http url", c.Reference.BaseURL)
	}
	return nil
}

// AnkiTimeout returns the AnkiConnect request timeout.
func (c *Config) AnkiTimeout() time.Duration {
	return time.Duration(c.Anki.TimeoutSeconds) * time.Second
}

// ReferenceTimeout returns the reference site request timeout.
func (c *Config) ReferenceTimeout() time.Duration {
	return time.Duration(c.Reference.TimeoutSeconds) * time.Second
}

// ExpandPath resolves a leading ~ and makes the path absolute.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
