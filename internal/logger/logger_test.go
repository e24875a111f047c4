package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := Config{
		Level:      "debug",
		Filename:   logPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	Debug("debug message", zap.String("key", "value"))
	Info("info message", zap.Int("number", 42))
	Warn("warning message", zap.Bool("flag", true))
	Error("error message", zap.Error(os.ErrNotExist))

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}

	if err := Sync(); err != nil {
		t.Logf("sync returned %v (common when stderr is not syncable)", err)
	}
}

func TestLogLevels(t *testing.T) {
	tmpDir := t.TempDir()

	levels := []string{"debug", "info", "warn", "error"}
	for _, level := range levels {
		logPath := filepath.Join(tmpDir, level+".log")
		cfg := Config{
			Level:      level,
			Filename:   logPath,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		if err := Init(cfg); err != nil {
			t.Errorf("Failed to initialize logger with level %s: %v", level, err)
			continue
		}

		Debug("debug message")
		Info("info message")
		Warn("warning message")
		Error("error message")

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("Log file was not created for level %s", level)
		}
	}
}

func TestInitRejectsInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := Config{Level: "not-a-level", Filename: filepath.Join(tmpDir, "bad.log")}
	if err := Init(cfg); err == nil {
		t.Error("expected error for invalid log level")
	}
}
