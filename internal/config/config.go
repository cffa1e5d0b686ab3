package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

func homeDirOrFallback() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Config holds all user-configurable settings.
type Config struct {
	// BaseURL is the root URL the catalog data files are served from.
	// index.json, manifests and shards are fetched under {BaseURL}/data/.
	BaseURL string `json:"base_url"`
	// DownloadDir is where downloaded files are saved.
	DownloadDir string `json:"download_dir"`
	// MaxConcurrentDownloads is how many files to download in parallel.
	MaxConcurrentDownloads int `json:"max_concurrent_downloads"`
	// RequestsPerSecond rate-limits catalog data fetches.
	RequestsPerSecond float64 `json:"requests_per_second"`
	// DebounceMs is how long the search box waits after the last
	// keystroke before issuing a search.
	DebounceMs int `json:"debounce_ms"`
	// PageSize is how many results are revealed per scroll step.
	PageSize int `json:"page_size"`
	// Listen is the address the serve command binds to.
	Listen string `json:"listen"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home := homeDirOrFallback()
	return &Config{
		BaseURL:                "http://localhost:8080",
		DownloadDir:            filepath.Join(home, "Downloads", "myrient"),
		MaxConcurrentDownloads: 3,
		RequestsPerSecond:      10.0,
		DebounceMs:             500,
		PageSize:               40,
		Listen:                 ":8080",
	}
}

// ConfigDir returns the directory where config files are stored.
func ConfigDir() string {
	if dir := os.Getenv("EXPLORER_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDirOrFallback()
	return filepath.Join(home, ".config", "myrient-explorer")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads config from disk, returning defaults if the file doesn't
// exist, then applies environment overrides. A .env file in the working
// directory is honored if present.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("EXPLORER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("EXPLORER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RequestsPerSecond = f
		}
	}
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}
