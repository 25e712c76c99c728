package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GlowingScrewdriver/go-sntp/internal/brand"
	"github.com/GlowingScrewdriver/go-sntp/internal/clock"
	"github.com/GlowingScrewdriver/go-sntp/internal/config"
	"github.com/GlowingScrewdriver/go-sntp/internal/health"
	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
	"github.com/GlowingScrewdriver/go-sntp/internal/metrics"
	"github.com/GlowingScrewdriver/go-sntp/internal/services/ntp"
)

const shutdownTimeout = 5 * time.Second

// loadConfig reads and validates configFile. An empty name selects the
// default path, which may be absent.
func loadConfig(configFile string) (*config.Config, config.ValidationErrors, error) {
	var cfg *config.Config
	if configFile == "" {
		c, err := config.LoadFile(brand.DefaultConfigPath())
		switch {
		case errors.Is(err, fs.ErrNotExist):
			cfg = config.Default()
		case err != nil:
			return nil, nil, err
		default:
			cfg = c
		}
	} else {
		c, err := config.LoadFile(configFile)
		if err != nil {
			return nil, nil, err
		}
		cfg = c
	}

	errs := cfg.Validate()
	if errs.HasErrors() {
		return nil, errs, fmt.Errorf("configuration invalid: %w", errs)
	}
	return cfg, errs.Warnings(), nil
}

// RunServe runs the SNTP server until ctx is cancelled. SIGHUP reloads
// configFile.
func RunServe(ctx context.Context, configFile string) error {
	cfg, warnings, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()
	for _, w := range warnings {
		logger.Warn("Configuration warning", "field", w.Field, "message", w.Message)
	}

	reg := metrics.Get()
	reg.StartTime.SetToCurrentTime()

	svc := ntp.NewService(logger, reg)
	svc.Configure(cfg.Server)

	if cfg.Metrics != nil && cfg.Metrics.Listen != "" {
		checker := health.NewChecker(&clock.RealClock{})
		checker.Register(svc.Name(), health.ServiceCheck(svc))
		checker.Register("clock", health.ClockCheck(&clock.RealClock{}))

		stop, err := startMetricsServer(cfg.Metrics.Listen, reg, checker, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", svc.Name(), err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return svc.Stop(stopCtx)
		case <-hup:
			reload(configFile, svc, reg, logger)
		}
	}
}

// reload swaps in a new server block. An invalid file keeps the running
// configuration.
func reload(configFile string, svc *ntp.Service, reg *metrics.Registry, logger *logging.Logger) bool {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		logger.Error("Reload failed, keeping current configuration", "error", err)
		reg.IncrementConfigReload(false)
		return false
	}
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if _, err := svc.Reload(cfg); err != nil {
		logger.Error("Reload failed", "error", err)
		reg.IncrementConfigReload(false)
		return false
	}
	logger.Info("Configuration reloaded")
	reg.IncrementConfigReload(true)
	return true
}

// startMetricsServer exposes /metrics and the health probes on addr. The
// returned func shuts the listener down.
func startMetricsServer(addr string, reg *metrics.Registry, checker *health.Checker, logger *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/livez", health.LivenessHandler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	logger.Info("Metrics listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
