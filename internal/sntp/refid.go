package sntp

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// ParseReferenceID encodes a reference identifier. A dotted IPv4 address
// is used verbatim (secondary servers); anything else must be an ASCII
// code of at most four characters, left justified and zero padded
// (primary servers, e.g. "GPS", "LOCL").
func ParseReferenceID(s string) (uint32, error) {
	if ip := net.ParseIP(s); ip != nil {
		v4 := ip.To4()
		if v4 == nil {
			return 0, fmt.Errorf("reference id %q: only IPv4 addresses are supported", s)
		}
		return binary.BigEndian.Uint32(v4), nil
	}
	if len(s) > 4 {
		return 0, fmt.Errorf("reference id %q: longer than 4 characters", s)
	}
	var b [4]byte
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return 0, fmt.Errorf("reference id %q: not printable ASCII", s)
		}
		b[i] = s[i]
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReferenceIDFromAddr returns the identifier for an upstream peer.
// Non-IPv4 peers yield 0.
func ReferenceIDFromAddr(addr net.Addr) uint32 {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0
	}
	if v4 := udp.IP.To4(); v4 != nil {
		return binary.BigEndian.Uint32(v4)
	}
	return 0
}

// FormatReferenceID renders id the way it is interpreted at stratum.
func FormatReferenceID(id uint32, stratum uint8) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	if stratum <= 1 {
		return strings.TrimRight(string(b[:]), "\x00")
	}
	return net.IP(b[:]).String()
}
