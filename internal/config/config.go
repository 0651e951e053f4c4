// Package config persists client-side settings between runs.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

const (
	// DefaultBaseURL is the backend origin used when nothing else is set.
	DefaultBaseURL = "http://localhost:3000"

	// EnvBaseURL overrides the API origin.
	EnvBaseURL = "PRINTSHELF_API_BASE_URL"
	// EnvConfigPath overrides the settings file location.
	EnvConfigPath = "PRINTSHELF_CONFIG"

	// MaxRecent matches the 1-9 shortcut keys on the setup page.
	MaxRecent = 9

	DefaultImagesPerPage = 20

	fileName = ".printshelf_config.json"
)

// Config is the on-disk settings file. The file may contain comments.
type Config struct {
	APIBaseURL    string   `json:"api_base_url,omitempty" yaml:"api_base_url"`
	RecentRoots   []string `json:"recent_roots" yaml:"recent_roots"`
	LastRootPath  string   `json:"last_root_path,omitempty" yaml:"last_root_path"`
	LastQuery     string   `json:"last_query,omitempty" yaml:"last_query"`
	AutoAdvance   *bool    `json:"auto_advance,omitempty" yaml:"auto_advance"`
	ImagesPerPage int      `json:"images_per_page,omitempty" yaml:"images_per_page"`
	DownloadDir   string   `json:"download_dir,omitempty" yaml:"download_dir"`
	LedgerPath    string   `json:"ledger_path,omitempty" yaml:"ledger_path"`
	LogFile       string   `json:"log_file,omitempty" yaml:"log_file"`

	// path is where the file was loaded from and where Save writes.
	path string
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		APIBaseURL:    DefaultBaseURL,
		RecentRoots:   []string{},
		ImagesPerPage: DefaultImagesPerPage,
	}
}

// Path returns the settings file location: $PRINTSHELF_CONFIG, else
// ~/.printshelf_config.json. It returns "" when no home directory exists.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, fileName)
}

// Load reads the settings at path. A missing file yields defaults and no
// error. A malformed file yields defaults and the parse error, so callers
// can warn and keep going.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	var parsed Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	parsed.path = path
	parsed.fill()
	return &parsed, nil
}

func (c *Config) fill() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultBaseURL
	}
	if c.RecentRoots == nil {
		c.RecentRoots = []string{}
	}
	if len(c.RecentRoots) > MaxRecent {
		c.RecentRoots = c.RecentRoots[:MaxRecent]
	}
	if c.ImagesPerPage <= 0 {
		c.ImagesPerPage = DefaultImagesPerPage
	}
}

// ApplyEnv overlays environment overrides. getenv is os.Getenv outside
// tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		c.APIBaseURL = v
	}
	if v := getenv("PRINTSHELF_AUTO_ADVANCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoAdvance = &b
		}
	}
	if v := getenv("PRINTSHELF_DOWNLOAD_DIR"); v != "" {
		c.DownloadDir = v
	}
}

// FilePath is where Save writes.
func (c *Config) FilePath() string { return c.path }

// Save writes the settings back to the file they were loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("unable to determine config path")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return os.WriteFile(c.path, data, 0o644)
}

// AutoAdvanceOr returns the configured tile auto-advance setting, or def.
func (c *Config) AutoAdvanceOr(def bool) bool {
	if c.AutoAdvance == nil {
		return def
	}
	return *c.AutoAdvance
}

// RememberRoot records a root path the user configured.
func (c *Config) RememberRoot(root string) {
	c.RecentRoots = AddRecent(c.RecentRoots, root, MaxRecent)
	if root != "" {
		c.LastRootPath = root
	}
}

// AddRecent moves p to the front of paths, keeping entries unique and at
// most limit long.
func AddRecent(paths []string, p string, limit int) []string {
	if p == "" {
		return paths
	}

	filtered := make([]string, 0, len(paths))
	for _, existing := range paths {
		if existing != p {
			filtered = append(filtered, existing)
		}
	}

	result := append([]string{p}, filtered...)
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Set assigns a field by its JSON name, for `printshelf config set`.
func (c *Config) Set(field, value string) error {
	switch field {
	case "api_base_url":
		c.APIBaseURL = value
	case "last_root_path":
		c.LastRootPath = value
	case "last_query":
		c.LastQuery = value
	case "download_dir":
		c.DownloadDir = value
	case "ledger_path":
		c.LedgerPath = value
	case "log_file":
		c.LogFile = value
	case "auto_advance":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto_advance: %w", err)
		}
		c.AutoAdvance = &b
	case "images_per_page":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("images_per_page must be a positive integer, got %q", value)
		}
		c.ImagesPerPage = n
	default:
		return fmt.Errorf("unknown setting %q", field)
	}
	return nil
}

// StateDir returns the directory for logs and the download ledger.
func StateDir() string {
	if d := os.Getenv("XDG_STATE_HOME"); d != "" {
		return filepath.Join(d, "printshelf")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".local", "state", "printshelf")
}

// LedgerFile returns the configured ledger path or its default.
func (c *Config) LedgerFile() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}
	return filepath.Join(StateDir(), "downloads.db")
}

// LogPath returns the configured TUI log file or its default.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(StateDir(), "printshelf.log")
}

// DownloadDirOr returns the download directory, falling back to the
// working directory.
func (c *Config) DownloadDirOr() string {
	if c.DownloadDir != "" {
		return c.DownloadDir
	}
	return "."
}
