package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "TULULU"

// Config holds downloader configuration.
type Config struct {
	BaseURL          string        `envconfig:"BASE_URL"`
	DestDir          string        `envconfig:"DEST_DIR"`
	Timeout          time.Duration `envconfig:"TIMEOUT"`
	NetworkBackoff   time.Duration `envconfig:"NETWORK_BACKOFF"`
	UserAgent        string        `envconfig:"USER_AGENT"`
	RespectRobotsTxt bool          `envconfig:"RESPECT_ROBOTS"`
	LogFile          string        `envconfig:"LOG_FILE"`
	LogMaxSizeMB     int           `envconfig:"LOG_MAX_SIZE_MB"`
	LogMaxBackups    int           `envconfig:"LOG_MAX_BACKUPS"`
	CatalogFile      string        `envconfig:"CATALOG_FILE"`
	CatalogFormat    string        `envconfig:"CATALOG_FORMAT"` // csv, json, yaml, or dual
	CatalogBatchSize int           `envconfig:"CATALOG_BATCH_SIZE"`
	PlaceholderCache int           `envconfig:"PLACEHOLDER_CACHE"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR"`
	Progress         bool          `envconfig:"PROGRESS"`
	Verbose          bool          `envconfig:"VERBOSE"`
}

// DefaultConfig returns the settings the downloader was designed around.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://tululu.org/",
		DestDir:          ".",
		Timeout:          10 * time.Second,
		NetworkBackoff:   15 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		LogFile:          "app.log",
		LogMaxSizeMB:     1,
		LogMaxBackups:    2,
		CatalogFile:      "catalog.jsonl",
		CatalogFormat:    "json",
		CatalogBatchSize: 8,
		PlaceholderCache: 16,
		MetricsAddr:      "",
		Progress:         true,
		Verbose:          false,
	}
}

// Load starts from DefaultConfig and applies TULULU_* environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.CatalogFormat = strings.ToLower(cfg.CatalogFormat)
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.DestDir == "" {
		return fmt.Errorf("destination directory cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.NetworkBackoff < 0 {
		return fmt.Errorf("network backoff cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.LogFile == "" {
		return fmt.Errorf("log file cannot be empty")
	}
	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log max size must be positive")
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}
	if c.CatalogFile != "" {
		switch c.CatalogFormat {
		case "csv", "json", "yaml", "dual":
		default:
			return fmt.Errorf("catalog format must be csv, json, yaml, or dual")
		}
		if c.CatalogBatchSize <= 0 {
			return fmt.Errorf("catalog batch size must be positive")
		}
	}
	if c.PlaceholderCache <= 0 {
		return fmt.Errorf("placeholder cache size must be positive")
	}

	return nil
}

// TextURL returns the plain-text endpoint for a book id.
func (c *Config) TextURL(bookID int) string {
	values := url.Values{}
	values.Set("id", fmt.Sprint(bookID))
	return c.BaseURL + "txt.php?" + values.Encode()
}

// PageURL returns the detail page for a book id.
func (c *Config) PageURL(bookID int) string {
	return fmt.Sprintf("%sb%d/", c.BaseURL, bookID)
}
