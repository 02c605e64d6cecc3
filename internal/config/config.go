// Package config handles loading and managing livefind configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/wesm/livefind/internal/fileutil"
)

// Config represents the livefind configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Search SearchConfig `toml:"search"`
	Index  IndexConfig  `toml:"index"`
	Server ServerConfig `toml:"server"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
}

// SearchConfig holds live-search behaviour. The three toggles use the
// setting names shared with the presentation layer.
type SearchConfig struct {
	ContentSearch  bool `toml:"content_search"`
	MailSearch     bool `toml:"mail_search"`
	AllUsersSearch bool `toml:"all_users_search"`

	DebounceMS          int    `toml:"debounce_ms"`           // quiet period before a query runs
	BatchSize           int    `toml:"batch_size"`            // rows per FetchBatch call
	MaxResults          int    `toml:"max_results"`           // 0 = unlimited
	FinishPrefixQueries bool   `toml:"finish_prefix_queries"` // let a narrowing query's predecessor finish
	QueryTimeout        string `toml:"query_timeout"`         // Go duration, empty = none
	ProfilesRoot        string `toml:"profiles_root"`         // where other users' profiles live
	ReuseCacheSize      int    `toml:"reuse_cache_size"`      // retained reuse scopes in the backend
	CheckPaths          bool   `toml:"check_paths"`           // hide file results missing on disk
}

// IndexConfig holds indexer configuration.
type IndexConfig struct {
	Roots           []string `toml:"roots"`             // directories crawled for files
	Mail            []string `toml:"mail"`              // mbox files or maildir-like trees
	MaxContentBytes int64    `toml:"max_content_bytes"` // cap on text read per file
	Schedule        string   `toml:"schedule"`          // cron expression for re-indexing
	Workers         int      `toml:"workers"`           // roots crawled in parallel
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort      int      `toml:"api_port"`       // HTTP server port (default: 8080)
	BindAddr     string   `toml:"bind_addr"`      // default 127.0.0.1
	APIKey       string   `toml:"api_key"`        // API authentication key
	RateLimitQPS float64  `toml:"rate_limit_qps"` // per-client request rate
	CORSOrigins  []string `toml:"cors_origins"`
}

// DefaultHome returns the default livefind home directory.
// Respects LIVEFIND_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("LIVEFIND_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".livefind"
	}
	return filepath.Join(home, ".livefind")
}

// DefaultProfilesRoot returns the directory holding per-user profiles on
// this platform.
func DefaultProfilesRoot() string {
	switch runtime.GOOS {
	case "windows":
		return `C:\Users`
	case "darwin":
		return "/Users"
	default:
		return "/home"
	}
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Search: SearchConfig{
			DebounceMS:          100,
			BatchSize:           50,
			MaxResults:          200,
			FinishPrefixQueries: true,
			ProfilesRoot:        DefaultProfilesRoot(),
			ReuseCacheSize:      256,
		},
		Index: IndexConfig{
			MaxContentBytes: 1 << 20,
			Workers:         4,
		},
		Server: ServerConfig{
			APIPort:      8080,
			BindAddr:     "127.0.0.1",
			RateLimitQPS: 20,
		},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (<home>/config.toml).
// homeDir overrides the home directory when non-empty.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := NewDefaultConfig(homeDir)

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Search.ProfilesRoot = expandPath(cfg.Search.ProfilesRoot)
	for i, root := range cfg.Index.Roots {
		cfg.Index.Roots[i] = expandPath(root)
	}
	for i, p := range cfg.Index.Mail {
		cfg.Index.Mail[i] = expandPath(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at use time.
func (c *Config) Validate() error {
	if c.Search.DebounceMS < 0 {
		return fmt.Errorf("search.debounce_ms must not be negative (got %d)", c.Search.DebounceMS)
	}
	if c.Search.BatchSize <= 0 {
		return fmt.Errorf("search.batch_size must be positive (got %d)", c.Search.BatchSize)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must not be negative (got %d)", c.Search.MaxResults)
	}
	if _, err := c.QueryTimeout(); err != nil {
		return err
	}
	if c.Index.Schedule != "" {
		if _, err := cron.ParseStandard(c.Index.Schedule); err != nil {
			return fmt.Errorf("index.schedule %q: %w", c.Index.Schedule, err)
		}
	}
	if c.Index.Workers <= 0 {
		c.Index.Workers = 1
	}
	return nil
}

// DatabasePath returns the path to the SQLite index database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return filepath.Join(c.Data.DataDir, "livefind.db")
}

// EnsureHomeDir creates the home and data directories, private to the
// current user. The index holds file contents and mail bodies.
func (c *Config) EnsureHomeDir() error {
	if err := fileutil.PrivateDir(c.HomeDir); err != nil {
		return err
	}
	if c.Data.DataDir != "" && c.Data.DataDir != c.HomeDir {
		return fileutil.PrivateDir(c.Data.DataDir)
	}
	return nil
}

// IndexRoots returns the file roots followed by the mail directories,
// without duplicates.
func (c *Config) IndexRoots() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, r := range append(append([]string(nil), c.Index.Roots...), c.Index.Mail...) {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roots = append(roots, r)
	}
	return roots
}

// ConfigFilePath returns the path to the config file in the home directory.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.HomeDir, "config.toml")
}

// DebounceInterval returns the configured debounce as a duration.
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Search.DebounceMS) * time.Millisecond
}

// QueryTimeout parses search.query_timeout. Zero means no watchdog.
func (c *Config) QueryTimeout() (time.Duration, error) {
	if c.Search.QueryTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Search.QueryTimeout)
	if err != nil {
		return 0, fmt.Errorf("search.query_timeout %q: %w", c.Search.QueryTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("search.query_timeout must not be negative (got %s)", d)
	}
	return d, nil
}

// expandPath expands a leading ~ or ~/ to the user's home directory.
// ~user forms are left alone.
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
