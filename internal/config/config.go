// Package config loads and validates deedwatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// Counties maps a lowercase county name to its calendar base URL.
	Counties map[string]string `mapstructure:"counties"`
}

// ServerConfig controls HTTP server behavior in serve mode.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// BrowserConfig configures the headless calendar harvester.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	PageDelaySec  int    `mapstructure:"page_delay_seconds"`
}

// PortalConfig configures the partner document portal sessions.
type PortalConfig struct {
	URL           string `mapstructure:"url"`
	Workers       int    `mapstructure:"workers"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
}

// ScrapeConfig holds the default job filters. Unset filters match all.
type ScrapeConfig struct {
	State                   string   `mapstructure:"state"`
	ProspectType            string   `mapstructure:"prospect_type"`
	Counties                []string `mapstructure:"counties"`
	CaseNumbers             []string `mapstructure:"case_numbers"`
	AuctionStartDate        string   `mapstructure:"auction_start_date"`
	AuctionEndDate          string   `mapstructure:"auction_end_date"`
	SkipCompleted           bool     `mapstructure:"skip_completed"`
	RetryFailed             bool     `mapstructure:"retry_failed"`
	DryRun                  bool     `mapstructure:"dry_run"`
	ForceValidateDownloaded bool     `mapstructure:"force_validate_downloaded"`
}

// StorageConfig sets where downloaded documents and run reports land.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	ReportDir string `mapstructure:"report_dir"`
}

// ScheduleConfig drives recurring runs in serve mode. Empty specs
// disable the corresponding schedule.
type ScheduleConfig struct {
	ScrapeSpec string `mapstructure:"scrape_spec"`
	SyncSpec   string `mapstructure:"sync_spec"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEEDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "deedwatch/0.1")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.page_delay_seconds", 2)
	v.SetDefault("portal.workers", 2)
	v.SetDefault("portal.nav_timeout_seconds", 30)
	v.SetDefault("scrape.retry_failed", true)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.report_dir", "reports")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.Portal.Workers <= 0 {
		return fmt.Errorf("portal.workers must be > 0")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Scrape.ProspectType != "" {
		switch c.Scrape.ProspectType {
		case "TD", "TL", "SS", "MF":
		default:
			return fmt.Errorf("scrape.prospect_type %q is not one of TD, TL, SS, MF", c.Scrape.ProspectType)
		}
	}
	for county, base := range c.Counties {
		if strings.TrimSpace(base) == "" {
			return fmt.Errorf("counties.%s has no base url", county)
		}
	}
	return nil
}

// CountyBaseURL resolves the configured calendar base for a county.
func (c Config) CountyBaseURL(county string) (string, error) {
	base, ok := c.Counties[strings.ToLower(county)]
	if !ok {
		return "", fmt.Errorf("county %q is not configured", county)
	}
	return base, nil
}

// NavTimeout converts the browser navigation budget into a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// PageDelay converts the per-page pacing into a duration.
func (c BrowserConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelaySec) * time.Second
}

// NavTimeout converts the portal navigation budget into a duration.
func (c PortalConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}
