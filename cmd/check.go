package cmd

import (
	"fmt"

	"github.com/GlowingScrewdriver/go-sntp/internal/brand"
	"github.com/GlowingScrewdriver/go-sntp/internal/config"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s", brand.BinaryName, brand.BinaryName, brand.DefaultConfigPath())
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	errs := cfg.Validate()
	for _, w := range errs.Warnings() {
		Printer.Fprintf(Out, "Warning: %s\n", w.Error())
	}
	if errs.HasErrors() {
		return fmt.Errorf("configuration invalid: %w", errs)
	}

	Printer.Fprintf(Out, "Configuration valid!\n")
	if cfg.Server.IsEnabled() {
		Printer.Fprintf(Out, "Server: %s (stratum %d, refid %s)\n", cfg.Server.Listen, cfg.Server.Stratum, cfg.Server.ReferenceID)
		if cfg.Server.Upstream != "" {
			Printer.Fprintf(Out, "Upstream: %s\n", cfg.Server.Upstream)
		}
	} else {
		Printer.Fprintf(Out, "Server: disabled\n")
	}
	Printer.Fprintf(Out, "Client default server: %s\n", cfg.Client.Server)
	if cfg.Metrics != nil && cfg.Metrics.Listen != "" {
		Printer.Fprintf(Out, "Metrics: %s\n", cfg.Metrics.Listen)
	}

	if verbose {
		Printer.Fprintln(Out)
		Printer.Fprintf(Out, "# Effective configuration\n")
		Out.Write(config.Marshal(cfg))
	}
	return nil
}
