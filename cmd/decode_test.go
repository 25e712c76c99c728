package cmd

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

func TestRunDecode(t *testing.T) {
	out := captureOutput(t)

	req, err := sntp.NewExchange().Request(sntp.PosixToNTP(1000.0))
	require.NoError(t, err)

	require.NoError(t, RunDecode(hex.EncodeToString(req.Bytes())))

	s := out.String()
	assert.Contains(t, s, "client message")
	for _, f := range sntp.Fields {
		assert.Contains(t, s, f.Name)
	}
	assert.Contains(t, s, "alarm, clock not synchronized")
	assert.Contains(t, s, "(unset)", "reference timestamp is zero in a request")
	assert.Contains(t, s, "1970-01-01T00:16:40Z")
}

func TestRunDecode_Separators(t *testing.T) {
	out := captureOutput(t)

	req, err := sntp.NewExchange().Request(sntp.PosixToNTP(1000.0))
	require.NoError(t, err)

	var parts []string
	for _, b := range req.Bytes() {
		parts = append(parts, hex.EncodeToString([]byte{b}))
	}
	require.NoError(t, RunDecode("0x"+strings.Join(parts, ":")))
	assert.Contains(t, out.String(), "TransmitTimestamp")

	out.Reset()
	require.NoError(t, RunDecode(strings.Join(parts, " ")+"\n"))
	assert.Contains(t, out.String(), "TransmitTimestamp")
}

func TestRunDecode_Errors(t *testing.T) {
	captureOutput(t)

	assert.Error(t, RunDecode(""))
	assert.Error(t, RunDecode("zz"))

	err := RunDecode("e3000000")
	assert.ErrorIs(t, err, sntp.ErrMessageSize)
}
