package config

import (
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any entry is not a warning.
func (e ValidationErrors) HasErrors() bool {
	for _, err := range e {
		if err.Severity != "warning" {
			return true
		}
	}
	return false
}

// Warnings returns only the warning entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity == "warning" {
			out = append(out, err)
		}
	}
	return out
}

// Validate validates the entire configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, ValidationError{Field: "log_level", Message: err.Error()})
	}
	if c.Client != nil {
		errs = append(errs, c.Client.validate()...)
	}
	if c.Server != nil {
		errs = append(errs, c.Server.validate()...)
	}
	if c.Metrics != nil && c.Metrics.Listen != "" {
		if err := validateListen(c.Metrics.Listen); err != nil {
			errs = append(errs, ValidationError{Field: "metrics.listen", Message: err.Error()})
		}
	}
	if c.Syslog != nil {
		errs = append(errs, c.Syslog.validate()...)
	}
	return errs
}

func (c *ClientConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if c.Server == "" {
		errs = append(errs, ValidationError{Field: "client.server", Message: "must not be empty"})
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, ValidationError{Field: "client.timeout", Message: err.Error()})
	} else if d <= 0 {
		errs = append(errs, ValidationError{Field: "client.timeout", Message: "must be positive"})
	}
	if c.Retries < 0 {
		errs = append(errs, ValidationError{Field: "client.retries", Message: "must not be negative"})
	}
	return errs
}

func (s *ServerConfig) validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: "server." + field, Message: fmt.Sprintf(format, args...)})
	}

	if err := validateListen(s.Listen); err != nil {
		add("listen", "%v", err)
	}
	if s.Stratum < 1 || s.Stratum > int(sntp.MaxStratum) {
		add("stratum", "must be between 1 and %d, got %d", sntp.MaxStratum, s.Stratum)
	}
	if s.Leap < 0 || s.Leap > int(sntp.LeapNotInSync) {
		add("leap", "must be between 0 and 3, got %d", s.Leap)
	}
	if s.Poll < math.MinInt8 || s.Poll > math.MaxInt8 {
		add("poll", "must fit in a signed byte, got %d", s.Poll)
	}
	if s.Precision < math.MinInt8 || s.Precision > math.MaxInt8 {
		add("precision", "must fit in a signed byte, got %d", s.Precision)
	}
	if _, err := sntp.ParseReferenceID(s.ReferenceID); err != nil {
		add("reference_id", "%v", err)
	}
	if s.DSCP < 0 || s.DSCP > 63 {
		add("dscp", "must be between 0 and 63, got %d", s.DSCP)
	}
	if s.Upstream != "" {
		if _, _, err := net.SplitHostPort(sntp.WithDefaultPort(s.Upstream)); err != nil {
			add("upstream", "%v", err)
		}
	}
	if s.RateLimit != nil {
		if s.RateLimit.Requests < 0 {
			add("rate_limit.requests", "must not be negative")
		}
		if d, err := time.ParseDuration(s.RateLimit.Interval); err != nil {
			add("rate_limit.interval", "%v", err)
		} else if d <= 0 {
			add("rate_limit.interval", "must be positive")
		}
	}
	// a secondary server's reference id is its source's IPv4 address;
	// clients render anything else as a dotted quad
	if s.Upstream == "" && s.Stratum >= 2 && s.Stratum <= int(sntp.MaxStratum) && net.ParseIP(s.ReferenceID).To4() == nil {
		errs = append(errs, ValidationError{
			Field:    "server.reference_id",
			Message:  fmt.Sprintf("%q is read as an IPv4 address at stratum %d; use the source's IPv4 address or stratum 1", s.ReferenceID, s.Stratum),
			Severity: "warning",
		})
	}
	return errs
}

func (s *SyslogConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if s.Host == "" {
		errs = append(errs, ValidationError{Field: "syslog.host", Message: "must not be empty"})
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, ValidationError{Field: "syslog.port", Message: fmt.Sprintf("invalid port %d", s.Port)})
	}
	if s.Protocol != "udp" && s.Protocol != "tcp" {
		errs = append(errs, ValidationError{Field: "syslog.protocol", Message: fmt.Sprintf("must be udp or tcp, got %q", s.Protocol)})
	}
	if s.Facility < 0 || s.Facility > 23 {
		errs = append(errs, ValidationError{Field: "syslog.facility", Message: fmt.Sprintf("must be between 0 and 23, got %d", s.Facility)})
	}
	return errs
}

func validateListen(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return fmt.Errorf("missing port in %q", addr)
	}
	return nil
}
