// Package config handles HCL configuration parsing, validation and rendering.
//
// # Overview
//
// The sntp binary reads a single HCL file (default /etc/sntp/sntp.hcl).
// Attribute expressions may reference the process environment through the
// env object, for example:
//
//	server {
//	  upstream = env.SNTP_UPSTREAM
//	}
//
// # Blocks
//
//   - client: defaults for `sntp query`
//   - server: the responder run by `sntp serve`
//   - metrics: Prometheus scrape endpoint and health probes
//   - syslog: optional remote log sink
//
// Missing blocks and attributes are filled from [Default] after decoding,
// then [Config.Validate] reports every problem it finds at once.
package config
