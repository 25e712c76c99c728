package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:      LevelDebug,
		Output:     &buf,
		JSON:       true,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		for _, tc := range []struct {
			log func(string, ...any)
			msg string
		}{
			{logger.Debug, "debug msg"},
			{logger.Info, "info msg"},
			{logger.Warn, "warn msg"},
			{logger.Error, "error msg"},
		} {
			buf.Reset()
			tc.log(tc.msg)
			if !strings.Contains(buf.String(), tc.msg) {
				t.Errorf("expected %q in output, got %q", tc.msg, buf.String())
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		l := logger.WithComponent("ntp-server")
		l.Info("msg")
		if !strings.Contains(buf.String(), "ntp-server") {
			t.Error("WithComponent missing component field")
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		l := logger.WithFields(map[string]any{"server": "192.0.2.1"})
		l.Info("msg")
		if !strings.Contains(buf.String(), "server") || !strings.Contains(buf.String(), "192.0.2.1") {
			t.Error("WithFields missing fields")
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(LevelWarn)
		defer logger.SetLevel(LevelDebug)

		logger.Audit("clock_step", "system_clock", map[string]any{"offset": "1.5s"})
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") {
			t.Error("Audit log missing AUDIT message")
		}
		if !strings.Contains(logStr, "system_clock") {
			t.Error("Audit log missing resource")
		}
	})
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default logger is nil")
	}

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	prev := Default()
	SetDefault(New(cfg))
	defer SetDefault(prev)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	Errorf("error %s", "formatted")
	Audit("test", "res", nil)
	WithComponent("comp").Info("comp msg")

	out := buf.String()
	if strings.Contains(out, "] debug") {
		t.Error("debug should be filtered at the default level")
	}
	for _, want := range []string{"info", "warn", "error formatted", "comp: comp msg"} {
		if !strings.Contains(out, want) {
			t.Errorf("default logger output missing %q:\n%s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" {
		t.Error("JSON msg field incorrect")
	}
	if data["key"] != "value" {
		t.Error("JSON extra field incorrect")
	}
	if data["level"] != "INFO" {
		t.Error("JSON level incorrect")
	}
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	levelVar := &slog.LevelVar{}
	h := NewConsoleHandler(&buf, &slog.HandlerOptions{Level: levelVar}, time.RFC3339)
	l := slog.New(h).With("component", "NTP-Client")

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelWarn, "response rejected", 0)
	r.AddAttrs(slog.String("reason", "replay mismatch"), slog.Int("stratum", 2))
	if err := l.Handler().Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	line := buf.String()
	if !strings.HasPrefix(line, "2026-01-02T03:04:05Z sntp[") {
		t.Errorf("unexpected prefix: %q", line)
	}
	if !strings.Contains(line, "]: [warn] ntp-client: response rejected") {
		t.Errorf("missing level/component header: %q", line)
	}
	if !strings.Contains(line, `reason="replay mismatch"`) || !strings.Contains(line, "stratum=2") {
		t.Errorf("missing attributes: %q", line)
	}
	if strings.Count(line, "component") != 0 {
		t.Errorf("component should only appear in the header: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line should be newline-terminated")
	}
}

func TestConsoleHandlerEnabled(t *testing.T) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelWarn)
	h := NewConsoleHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: levelVar}, "")

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestSetDefaultConcurrent(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	cfg := DefaultConfig()
	cfg.Output = io.Discard
	cfg.Level = LevelError

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetDefault(New(cfg))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if Default() == nil {
					t.Error("Default returned nil")
					return
				}
				Info("concurrent")
			}
		}()
	}
	wg.Wait()
}
