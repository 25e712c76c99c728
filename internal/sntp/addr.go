package sntp

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// WithDefaultPort appends the NTP port to host if it has none. Bare IPv6
// literals are bracketed.
func WithDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(trimBrackets(host), strconv.Itoa(DefaultPort))
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

// ResolveServer resolves host[:port] to a UDP address on network
// ("udp", "udp4" or "udp6").
func ResolveServer(ctx context.Context, network, host string) (*net.UDPAddr, error) {
	hostport := WithDefaultPort(host)
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	port, err := net.DefaultResolver.LookupPort(ctx, network, p)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(h); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	ipNet := "ip"
	switch network {
	case "udp4":
		ipNet = "ip4"
	case "udp6":
		ipNet = "ip6"
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, ipNet, h)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %s", h)
	}
	return &net.UDPAddr{IP: ips[0], Port: port}, nil
}
