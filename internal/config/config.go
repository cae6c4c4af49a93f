// Package config loads journey settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"ncjourney/internal/browser"
	"ncjourney/internal/logging"
)

// Drivers.
const (
	DriverPlaywright = "playwright"
	DriverCDP        = "cdp"
)

// Share link strategies.
const (
	ShareLinkAttribute = "attribute"
	ShareLinkClipboard = "clipboard"
)

// Config holds every tunable of a journey run. Environment variables win
// over the YAML file, which wins over defaults.
type Config struct {
	HostURL  string `yaml:"host_url" env:"HOST_URL" env-default:"http://app"`
	Username string `yaml:"username" env:"NEXTCLOUD_USER" env-default:"Crash"`
	Password string `yaml:"password" env:"NEXTCLOUD_PASSWORD" env-default:"Override"`

	FixturePath string `yaml:"fixture_path" env:"FIXTURE_PATH" env-default:"/tmp/repo/green-metrics-tool/1mb.txt"`
	DownloadDir string `yaml:"download_dir" env:"DOWNLOAD_DIR" env-default:"downloads"`
	DumpDir     string `yaml:"dump_dir" env:"DUMP_DIR"`

	Driver          string `yaml:"driver" env:"BROWSER_DRIVER" env-default:"playwright"`
	Headless        bool   `yaml:"headless" env:"HEADLESS" env-default:"false"`
	AcceptDownloads bool   `yaml:"accept_downloads" env:"ACCEPT_DOWNLOADS"`
	IgnoreTLSErrors bool   `yaml:"ignore_tls_errors" env:"IGNORE_TLS_ERRORS"`

	StepTimeout       time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT" env-default:"30s"`
	DiagnosticTimeout time.Duration `yaml:"diagnostic_timeout" env:"DIAGNOSTIC_TIMEOUT" env-default:"20s"`
	ThinkTime         time.Duration `yaml:"think_time" env:"THINK_TIME" env-default:"0s"`

	ExpectedBytes int64 `yaml:"expected_bytes" env:"EXPECTED_BYTES" env-default:"1048576"`
	MaxBytes      int64 `yaml:"max_bytes" env:"MAX_BYTES" env-default:"0"`
	SizeTolerance int64 `yaml:"size_tolerance" env:"SIZE_TOLERANCE" env-default:"16"`

	ShareLinkStrategy string `yaml:"share_link_strategy" env:"SHARE_LINK_STRATEGY" env-default:"attribute"`
	LocatorsFile      string `yaml:"locators_file" env:"LOCATORS_FILE"`

	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT" env-default:"note"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// Load reads path when non-empty, then the environment.
func Load(path string) (*Config, error) {
	cfg := preset()
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	return &cfg, nil
}

// preset holds the true-by-default booleans. cleanenv's env-default fills
// any zero field after the file is read and would undo an explicit false.
func preset() Config {
	return Config{
		AcceptDownloads: true,
		IgnoreTLSErrors: true,
	}
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	var errs []error
	if c.HostURL == "" {
		errs = append(errs, errors.New("host_url is empty"))
	}
	switch c.Driver {
	case DriverPlaywright, DriverCDP:
	default:
		errs = append(errs, fmt.Errorf("driver %q: want %s or %s", c.Driver, DriverPlaywright, DriverCDP))
	}
	switch c.ShareLinkStrategy {
	case ShareLinkAttribute, ShareLinkClipboard:
	default:
		errs = append(errs, fmt.Errorf("share_link_strategy %q: want %s or %s",
			c.ShareLinkStrategy, ShareLinkAttribute, ShareLinkClipboard))
	}
	if c.StepTimeout <= 0 {
		errs = append(errs, errors.New("step_timeout must be positive"))
	}
	if c.DiagnosticTimeout <= 0 {
		errs = append(errs, errors.New("diagnostic_timeout must be positive"))
	}
	if c.ThinkTime < 0 {
		errs = append(errs, errors.New("think_time must not be negative"))
	}
	if c.SizeTolerance < 0 {
		errs = append(errs, errors.New("size_tolerance must not be negative"))
	}
	if c.MaxBytes != 0 && c.MaxBytes < c.ExpectedBytes {
		errs = append(errs, fmt.Errorf("max_bytes %d below expected_bytes %d", c.MaxBytes, c.ExpectedBytes))
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON, logging.FormatNote:
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want text, json or note", c.LogFormat))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Session returns the browser settings for one engine. Download capture
// follows AcceptDownloads; the download directory is made absolute.
func (c *Config) Session(kind browser.Kind, downloads bool) browser.Config {
	dir := c.DownloadDir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	bc := browser.Config{
		Kind:            kind,
		Headless:        c.Headless,
		DownloadDir:     dir,
		AcceptDownloads: downloads && c.AcceptDownloads,
		IgnoreTLSErrors: c.IgnoreTLSErrors,
	}
	if kind == browser.Chromium {
		bc.Args = []string{"--disable-gpu", "--disable-software-rasterizer"}
	}
	return bc
}
