package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
db:
  dsn: postgres://deedwatch@localhost:5432/deedwatch
  max_conns: 12
browser:
  headless: false
  user_agent: deedwatch-test
  nav_timeout_seconds: 45
  page_delay_seconds: 3
portal:
  url: https://portal.example.com
  workers: 4
scrape:
  state: FL
  prospect_type: TD
  counties: ["duval", "clay"]
  auction_start_date: "2026-03-01"
  auction_end_date: "2026-03-31"
  dry_run: true
storage:
  base_dir: /var/lib/deedwatch
  report_dir: /var/lib/deedwatch/reports
schedule:
  scrape_spec: "0 6 * * *"
logging:
  development: false
counties:
  duval: duval.realtaxdeed.com
  clay: www.clay.realforeclose.com
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.DB.MaxConns != 12 {
		t.Fatalf("expected db overrides to apply, got %+v", cfg.DB)
	}
	if cfg.Browser.Headless || cfg.Browser.UserAgent != "deedwatch-test" {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if got := cfg.Browser.NavTimeout(); got != 45*time.Second {
		t.Fatalf("expected nav timeout 45s, got %v", got)
	}
	if cfg.Portal.Workers != 4 {
		t.Fatalf("expected portal workers 4, got %d", cfg.Portal.Workers)
	}
	if cfg.Scrape.State != "FL" || !cfg.Scrape.DryRun || len(cfg.Scrape.Counties) != 2 {
		t.Fatalf("expected scrape filters to load: %+v", cfg.Scrape)
	}
	if !cfg.Scrape.RetryFailed {
		t.Fatal("expected retry_failed default to survive overrides")
	}
	if cfg.Schedule.ScrapeSpec != "0 6 * * *" || cfg.Schedule.SyncSpec != "" {
		t.Fatalf("expected schedule to load: %+v", cfg.Schedule)
	}

	base, err := cfg.CountyBaseURL("Duval")
	if err != nil {
		t.Fatalf("CountyBaseURL() error = %v", err)
	}
	if base != "duval.realtaxdeed.com" {
		t.Fatalf("expected duval base url, got %q", base)
	}
	if _, err := cfg.CountyBaseURL("orange"); err == nil {
		t.Fatal("expected error for unconfigured county")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless default true")
	}
	if cfg.Portal.Workers != 2 {
		t.Fatalf("expected default portal workers 2, got %d", cfg.Portal.Workers)
	}
	if cfg.Storage.BaseDir != "data" || cfg.Storage.ReportDir != "reports" {
		t.Fatalf("expected storage defaults: %+v", cfg.Storage)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		DB:      DBConfig{MaxConns: 8},
		Browser: BrowserConfig{NavTimeoutSec: 30},
		Portal:  PortalConfig{Workers: 2},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid max conns",
			cfg: func() Config {
				c := base
				c.DB.MaxConns = 0
				return c
			}(),
			want: "db.max_conns",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Portal.Workers = 0
				return c
			}(),
			want: "portal.workers",
		},
		{
			name: "invalid nav timeout",
			cfg: func() Config {
				c := base
				c.Browser.NavTimeoutSec = 0
				return c
			}(),
			want: "browser.nav_timeout_seconds",
		},
		{
			name: "unknown prospect type",
			cfg: func() Config {
				c := base
				c.Scrape.ProspectType = "XX"
				return c
			}(),
			want: "scrape.prospect_type",
		},
		{
			name: "county missing base url",
			cfg: func() Config {
				c := base
				c.Counties = map[string]string{"duval": " "}
				return c
			}(),
			want: "counties.duval",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
