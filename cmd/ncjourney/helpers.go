package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ncjourney/internal/browser"
	"ncjourney/internal/browser/cdpdriver"
	"ncjourney/internal/browser/pwdriver"
	"ncjourney/internal/config"
	"ncjourney/internal/format"
	"ncjourney/internal/logging"
	"ncjourney/internal/metrics"
	"ncjourney/internal/nextcloud"
	"ncjourney/internal/verify"
	"ncjourney/internal/workflow"
)

// rootOptions are the persistent flags. A flag overrides the config file
// and environment only when set.
type rootOptions struct {
	configPath  string
	driver      string
	headless    bool
	logLevel    string
	logFormat   string
	metricsAddr string
	report      string
}

func (o *rootOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "YAML config file (environment still wins)")
	f.StringVar(&o.driver, "driver", "", "Browser driver: playwright or cdp")
	f.BoolVar(&o.headless, "headless", false, "Run browsers headless")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", "", "Log format: note, text, json")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&o.report, "report", "ascii", "Summary table format: ascii or markdown")
}

// load reads the config, applies set flags, validates it and initialises
// logging.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver = o.driver
	}
	if flags.Changed("headless") {
		cfg.Headless = o.headless
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(level, cfg.LogFormat)
	return cfg, nil
}

// newLauncher picks the driver. Tests replace it with a fake.
var newLauncher = func(cfg *config.Config) (browser.Launcher, func() error) {
	if cfg.Driver == config.DriverCDP {
		return cdpdriver.NewLauncher(), func() error { return nil }
	}
	l := pwdriver.NewLauncher()
	return l, l.Close
}

// engineArgs accepts at most one engine name.
func engineArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return err
	}
	if len(args) == 1 {
		if _, err := browser.ParseKind(args[0]); err != nil {
			return fmt.Errorf("%w (want one of %v)", err, browser.Kinds())
		}
	}
	return nil
}

func engineFrom(args []string) browser.Kind {
	if len(args) == 0 {
		return browser.DefaultKind
	}
	k, _ := browser.ParseKind(args[0])
	return k
}

// telemetry owns the metrics registry for one command.
type telemetry struct {
	reg       *prometheus.Registry
	collector *metrics.Collector
}

func startTelemetry(ctx context.Context, cfg *config.Config) *telemetry {
	reg := prometheus.NewRegistry()
	t := &telemetry{reg: reg, collector: metrics.New(reg)}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logging.New("metrics").Error("metrics server stopped", "error", err)
			}
		}()
	}
	return t
}

// newJourney wires a journey for one engine.
func newJourney(cfg *config.Config, engine browser.Kind, l browser.Launcher, t *telemetry) (*nextcloud.Journey, error) {
	j := nextcloud.New(cfg, engine, l)
	if cfg.LocatorsFile != "" {
		locs, err := nextcloud.LoadLocatorsFromPath(cfg.LocatorsFile)
		if err != nil {
			return nil, err
		}
		j.Locators = locs
	}
	j.Observers = []workflow.Observer{t.collector}
	j.OnArtifact = func(k browser.Kind, a verify.Artifact) {
		t.collector.ObserveArtifact(string(k), a.ByteSize)
	}
	return j, nil
}

// printOutcome writes the step tables of both workflows.
func printOutcome(cmd *cobra.Command, out *nextcloud.Outcome, mode format.Mode) {
	w := cmd.OutOrStdout()
	if out == nil {
		return
	}
	if out.Main != nil {
		fmt.Fprint(w, format.Summary(out.Main, mode))
	}
	if out.Download != nil {
		fmt.Fprint(w, format.Summary(out.Download, mode))
	}
	if out.Artifact != nil {
		fmt.Fprintf(w, "downloaded %s: %d bytes\n", out.Artifact.DeclaredName, out.Artifact.ByteSize)
	}
}
