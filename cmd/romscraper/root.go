package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/platform"
	"github.com/ryanm101/romscraper/internal/tracing"
)

var (
	cfg *config.Config

	configPath  string
	platformID  string
	logLevel    string
	logFormat   string
	logFile     string
	metricsAddr string
	quiet       bool

	shutdownTracing func(context.Context) error
	metricsServer   *http.Server
)

var rootCmd = &cobra.Command{
	Use:           "romscraper",
	Short:         "Scrape game metadata and media for ROM collections.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return teardown(cmd.Context())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: .romscraper.yaml or ~/.config/romscraper/config.yaml)")
	flags.StringVarP(&platformID, "platform", "p", "", "platform to scrape, e.g. snes")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "log format: text, json, pretty")
	flags.StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only log errors and hide progress")
}

func execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		_ = teardown(context.Background())
		return 1
	}
	return 0
}

// setup loads the configuration and starts logging, tracing and the
// metrics endpoint.
func setup(cmd *cobra.Command) error {
	if configPath != "" {
		if err := os.Setenv("ROMSCRAPER_CONFIG", configPath); err != nil {
			return err
		}
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if platformID != "" {
		cfg.Platform = platformID
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	if quiet {
		cfg.Logging.Level = "error"
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}

	shutdownTracing, err = tracing.Setup(cmd.Context(), cfg.Tracing)
	if err != nil {
		logging.Error("failed to setup tracing", "error", err)
		shutdownTracing = nil
	}

	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr)
	}
	return nil
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logging.Info("Serving metrics", "addr", addr)
}

func teardown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var errs []error
	if metricsServer != nil {
		errs = append(errs, metricsServer.Shutdown(ctx))
		metricsServer = nil
	}
	if shutdownTracing != nil {
		errs = append(errs, shutdownTracing(ctx))
		shutdownTracing = nil
	}
	logging.Close()
	return errors.Join(errs...)
}

// resolvePlatform looks up the configured platform and returns the
// configuration with its per-platform overrides applied.
func resolvePlatform() (*platform.Platform, *config.Config, error) {
	if cfg.Platform == "" {
		return nil, nil, fmt.Errorf("%w: no platform given (use --platform)", config.ErrInvalid)
	}
	p, err := platform.Load().Get(cfg.Platform)
	if err != nil {
		return nil, nil, err
	}
	pcfg, err := cfg.ForPlatform(p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, pcfg, nil
}
