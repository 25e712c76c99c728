package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/GlowingScrewdriver/go-sntp/internal/brand"
	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

// RunDecode parses a hex dump of one SNTP message and prints its fields.
// Whitespace, colons and a 0x prefix are ignored.
func RunDecode(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("usage: %s decode <hex>", brand.BinaryName)
	}
	data, err := decodeHex(input)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	m, err := sntp.ParseMessage(data, nil)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	Printer.Fprintln(Out, renderMessage(fmt.Sprintf("%s message", m.Mode()), m))
	return nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ':' {
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}
