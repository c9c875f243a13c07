package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})

	l.Info("hidden")
	l.Warn("shown", "component", "drowsiness")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "component=drowsiness") {
		t.Errorf("text output = %q", out)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{JSON: true, Output: &buf}).Info("frame", "ear", 0.21)

	if !strings.Contains(buf.String(), `"msg":"frame"`) || !strings.Contains(buf.String(), `"ear":0.21`) {
		t.Errorf("json output = %q", buf.String())
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drowse.log")
	var buf bytes.Buffer
	New(Options{File: path, Output: &buf}).Info("to both")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Errorf("file = %q, output = %q", data, buf.String())
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GO_ENV", "production")
	t.Setenv("LOG_FILE", "/var/log/drowse.log")

	o := OptionsFromEnv()
	if o.Level != "debug" || !o.JSON || o.File != "/var/log/drowse.log" {
		t.Errorf("OptionsFromEnv() = %+v", o)
	}
}
