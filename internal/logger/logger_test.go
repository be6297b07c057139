package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func todayLog(dir string) string {
	return filepath.Join(dir, filePrefix+time.Now().Format("2006-01-02")+".log")
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" INFO ":  INFO,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.sink.level != INFO {
		t.Errorf("Expected level INFO, got %v", logger.sink.level)
	}
	if logger.sink.maxDays != 7 {
		t.Errorf("Expected maxDays 7, got %d", logger.sink.maxDays)
	}
	if logger.sink.logDir != tmpDir {
		t.Errorf("Expected logDir %s, got %s", tmpDir, logger.sink.logDir)
	}
}

func TestNewLogger_DefaultMaxDays(t *testing.T) {
	logger, err := NewLogger(Config{LogDir: t.TempDir(), Level: INFO})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.sink.maxDays != 7 {
		t.Errorf("Expected default maxDays 7, got %d", logger.sink.maxDays)
	}
}

func TestNewLogger_CreateLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs", "subdir")

	logger, err := NewLogger(Config{LogDir: logDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}

func TestLogger_LogLevels(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: DEBUG, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message %d", 1)
	logger.Info("info message %s", "test")
	logger.Warn("warn message")
	logger.Error("error message")

	logger.Close()

	content, err := os.ReadFile(todayLog(tmpDir))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "[DEBUG] debug message 1") {
		t.Error("Log should contain DEBUG message")
	}
	if !strings.Contains(logContent, "[INFO] info message test") {
		t.Error("Log should contain INFO message")
	}
	if !strings.Contains(logContent, "[WARN] warn message") {
		t.Error("Log should contain WARN message")
	}
	if !strings.Contains(logContent, "[ERROR] error message") {
		t.Error("Log should contain ERROR message")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: WARN, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	logger.Close()

	content, err := os.ReadFile(todayLog(tmpDir))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)
	if strings.Contains(logContent, "[DEBUG]") {
		t.Error("DEBUG messages should be filtered out")
	}
	if strings.Contains(logContent, "[INFO]") {
		t.Error("INFO messages should be filtered out")
	}
	if !strings.Contains(logContent, "[WARN]") {
		t.Error("WARN messages should be logged")
	}
	if !strings.Contains(logContent, "[ERROR]") {
		t.Error("ERROR messages should be logged")
	}
}

func TestLogger_Named(t *testing.T) {
	tmpDir := t.TempDir()

	root, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatal(err)
	}

	sim := root.Named("simulator")
	sim.Info("selected %d participants", 3)
	sim.Named("scoring").Warn("impact timeout")
	root.Close()

	content, err := os.ReadFile(todayLog(tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	logContent := string(content)
	if !strings.Contains(logContent, "[INFO] [simulator] selected 3 participants") {
		t.Errorf("Missing component tag:\n%s", logContent)
	}
	if !strings.Contains(logContent, "[WARN] [simulator.scoring] impact timeout") {
		t.Errorf("Missing nested component tag:\n%s", logContent)
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	l.Info("ignored")
	l.Named("x").Error("ignored")
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger returned %v", err)
	}
}

func TestLogger_GetWriter(t *testing.T) {
	logger, err := NewLogger(Config{LogDir: t.TempDir(), Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	writer := logger.GetWriter(INFO)
	if writer == nil {
		t.Fatal("GetWriter should return a writer")
	}

	n, err := writer.Write([]byte("test message via writer\n"))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if n != 24 { // "test message via writer\n" is 24 bytes
		t.Errorf("Expected to write 24 bytes, wrote %d", n)
	}
}

func TestLogger_Close(t *testing.T) {
	logger, err := NewLogger(Config{LogDir: t.TempDir(), Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close returned error: %v", err)
	}
}

func TestPackageLevelFunctions_WithNilLogger(t *testing.T) {
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	// These should not panic when default logger is nil
	Debug("test")
	Info("test")
	Warn("test")
	Error("test")
	Named("store").Info("test")

	if err := Close(); err != nil {
		t.Errorf("Close with nil logger returned error: %v", err)
	}
}

func TestGetDefault(t *testing.T) {
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	if GetDefault() != nil {
		t.Error("GetDefault should return nil when no logger is initialized")
	}
}
