package cmd

import (
	"fmt"
	"io"

	"github.com/GlowingScrewdriver/go-sntp/internal/config"
	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
)

// setupLogging builds the process logger from the config and installs it
// as the default. The returned func releases the syslog connection.
func setupLogging(cfg *config.Config, debug bool) (*logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		level = logging.LevelDebug
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.JSON = cfg.LogJSON

	cleanup := func() {}
	if cfg.Syslog != nil {
		sc := logging.DefaultSyslogConfig()
		sc.Enabled = true
		sc.Host = cfg.Syslog.Host
		sc.Port = cfg.Syslog.Port
		sc.Protocol = cfg.Syslog.Protocol
		sc.Tag = cfg.Syslog.Tag
		sc.Facility = cfg.Syslog.Facility

		w, err := logging.NewSyslogWriter(sc)
		if err != nil {
			return nil, nil, fmt.Errorf("syslog: %w", err)
		}
		lc.Output = io.MultiWriter(lc.Output, w)
		cleanup = func() { w.Close() }
	}

	logger := logging.New(lc)
	logging.SetDefault(logger)
	return logger, cleanup, nil
}
