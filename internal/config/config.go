package config

import (
	"time"
)

// Config is the root of the HCL schema.
type Config struct {
	LogLevel string `hcl:"log_level,optional"`
	LogJSON  bool   `hcl:"log_json,optional"`

	Client  *ClientConfig  `hcl:"client,block"`
	Server  *ServerConfig  `hcl:"server,block"`
	Metrics *MetricsConfig `hcl:"metrics,block"`
	Syslog  *SyslogConfig  `hcl:"syslog,block"`
}

// ClientConfig holds defaults for one-shot queries.
type ClientConfig struct {
	Server   string `hcl:"server,optional"`
	Timeout  string `hcl:"timeout,optional"`
	Retries  int    `hcl:"retries,optional"`
	SetClock bool   `hcl:"set_clock,optional"`
}

// ServerConfig configures the responder. Poll and Precision of zero mean
// "use the default".
type ServerConfig struct {
	Enabled     *bool            `hcl:"enabled,optional"`
	Listen      string           `hcl:"listen,optional"`
	Stratum     int              `hcl:"stratum,optional"`
	Leap        int              `hcl:"leap,optional"`
	Poll        int              `hcl:"poll,optional"`
	Precision   int              `hcl:"precision,optional"`
	ReferenceID string           `hcl:"reference_id,optional"`
	Upstream    string           `hcl:"upstream,optional"`
	DSCP        int              `hcl:"dscp,optional"`
	RateLimit   *RateLimitConfig `hcl:"rate_limit,block"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	Requests int    `hcl:"requests,optional"`
	Interval string `hcl:"interval,optional"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `hcl:"listen,optional"`
}

// SyslogConfig forwards logs to a remote syslog server.
type SyslogConfig struct {
	Host     string `hcl:"host"`
	Port     int    `hcl:"port,optional"`
	Protocol string `hcl:"protocol,optional"`
	Tag      string `hcl:"tag,optional"`
	Facility int    `hcl:"facility,optional"`
}

const (
	defaultClientServer  = "pool.ntp.org"
	defaultClientTimeout = "5s"
	defaultListen        = ":123"
	defaultStratum       = 1
	defaultPoll          = 4
	defaultPrecision     = -20
	defaultReferenceID   = "LOCL"
	defaultRateRequests  = 16
	defaultRateInterval  = "1s"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Client == nil {
		c.Client = &ClientConfig{}
	}
	if c.Client.Server == "" {
		c.Client.Server = defaultClientServer
	}
	if c.Client.Timeout == "" {
		c.Client.Timeout = defaultClientTimeout
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	s := c.Server
	if s.Enabled == nil {
		enabled := true
		s.Enabled = &enabled
	}
	if s.Listen == "" {
		s.Listen = defaultListen
	}
	if s.Stratum == 0 {
		s.Stratum = defaultStratum
	}
	if s.Poll == 0 {
		s.Poll = defaultPoll
	}
	if s.Precision == 0 {
		s.Precision = defaultPrecision
	}
	if s.ReferenceID == "" {
		s.ReferenceID = defaultReferenceID
	}
	if s.RateLimit == nil {
		s.RateLimit = &RateLimitConfig{}
	}
	if s.RateLimit.Requests == 0 {
		s.RateLimit.Requests = defaultRateRequests
	}
	if s.RateLimit.Interval == "" {
		s.RateLimit.Interval = defaultRateInterval
	}

	if c.Syslog != nil {
		if c.Syslog.Port == 0 {
			c.Syslog.Port = 514
		}
		if c.Syslog.Protocol == "" {
			c.Syslog.Protocol = "udp"
		}
		if c.Syslog.Tag == "" {
			c.Syslog.Tag = "sntp"
		}
		if c.Syslog.Facility == 0 {
			c.Syslog.Facility = 1
		}
	}
}

// TimeoutDuration returns the parsed client timeout. Call after Validate.
func (c *ClientConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// IsEnabled reports whether the server block is switched on.
func (s *ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// IntervalDuration returns the parsed rate-limit window. Call after Validate.
func (r *RateLimitConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return time.Second
	}
	return d
}
