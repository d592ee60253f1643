package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "picframe.log")

	log, err := New(Config{Level: "info", OutputPath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("clip rendered", zap.String("clip", "/sd/gifs/cat.gif"))
	log.Debug("filtered out")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file: %v", err)
	}
	if !strings.Contains(string(data), `"clip":"/sd/gifs/cat.gif"`) {
		t.Errorf("Expected structured field in log, got %s", data)
	}
	if strings.Contains(string(data), "filtered out") {
		t.Error("Debug entry should be filtered at info level")
	}
}
