package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
)

// captureOutput redirects Out for the duration of the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	t.Cleanup(func() { Out = prev })
	return &buf
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelError
	cfg.Output = &bytes.Buffer{}
	return logging.New(cfg)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
