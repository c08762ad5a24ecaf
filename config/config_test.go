package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "unsupported scheme",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "ftp://tululu.org/"
			},
			wantErr: "scheme",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative backoff",
			mutate: func(cfg *Config) {
				cfg.NetworkBackoff = -time.Second
			},
			wantErr: "backoff",
		},
		{
			name: "empty destination",
			mutate: func(cfg *Config) {
				cfg.DestDir = ""
			},
			wantErr: "destination",
		},
		{
			name: "unknown catalog format",
			mutate: func(cfg *Config) {
				cfg.CatalogFormat = "xml"
			},
			wantErr: "catalog format",
		},
		{
			name: "zero log size",
			mutate: func(cfg *Config) {
				cfg.LogMaxSizeMB = 0
			},
			wantErr: "log max size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Timeout != 10*time.Second || cfg.NetworkBackoff != 15*time.Second {
		t.Fatalf("unexpected defaults: timeout=%s backoff=%s", cfg.Timeout, cfg.NetworkBackoff)
	}
}

func TestDisabledCatalogSkipsFormatCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CatalogFile = ""
	cfg.CatalogFormat = "whatever"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled catalog should validate, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TULULU_BASE_URL", "http://mirror.test")
	t.Setenv("TULULU_NETWORK_BACKOFF", "2s")
	t.Setenv("TULULU_CATALOG_FORMAT", "CSV")
	t.Setenv("TULULU_PROGRESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://mirror.test/" {
		t.Fatalf("BaseURL = %q, want trailing slash added", cfg.BaseURL)
	}
	if cfg.NetworkBackoff != 2*time.Second {
		t.Fatalf("NetworkBackoff = %s, want 2s", cfg.NetworkBackoff)
	}
	if cfg.CatalogFormat != "csv" {
		t.Fatalf("CatalogFormat = %q, want csv", cfg.CatalogFormat)
	}
	if cfg.Progress {
		t.Fatalf("Progress should be disabled by env")
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("Timeout = %s, want default kept", cfg.Timeout)
	}
}

func TestResourceURLs(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.TextURL(42); got != "https://tululu.org/txt.php?id=42" {
		t.Fatalf("TextURL = %q", got)
	}
	if got := cfg.PageURL(42); got != "https://tululu.org/b42/" {
		t.Fatalf("PageURL = %q", got)
	}
}
