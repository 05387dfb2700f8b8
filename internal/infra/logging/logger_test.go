package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func setupTestLogger(output *bytes.Buffer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	SetLoggerForTest(zerolog.New(output).With().Timestamp().Logger().Level(lvl))
}

func TestInfoLogging(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Info("quote built", "lines", 3, "include_vat", true)

	out := buf.String()
	if !strings.Contains(out, "quote built") {
		t.Error("expected log message not found in output")
	}
	if !strings.Contains(out, `"lines":3`) || !strings.Contains(out, `"include_vat":true`) {
		t.Error("expected key-value pairs not found in output")
	}
}

func TestDanglingKeyAndErrors(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "debug")

	Error("store failed", "error", errors.New("boom"), "dangling")
	out := buf.String()
	if !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("error value should be rendered as string, got %s", out)
	}
	if !strings.Contains(out, `"extra":"dangling"`) {
		t.Errorf("dangling key should be kept, got %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	Debug("hidden")
	Info("hidden too")
	Warn("something odd", "code", 99)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn should be dropped, got %s", out)
	}
	if !strings.Contains(out, "something odd") || !strings.Contains(out, `"code":99`) {
		t.Error("warn log output missing expected content")
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	SetLogLevel("info")
	Info("should be visible")
	if !strings.Contains(buf.String(), "should be visible") {
		t.Error("expected info log after SetLogLevel")
	}

	buf.Reset()
	SetLogLevel("invalid-level")
	Info("fallback to info")
	if !strings.Contains(buf.String(), "fallback to info") {
		t.Error("invalid level should fall back to info")
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "stickerquote.log")
	InitLogger(logFile, 1, 1, 1, false, "invalid")
	Info("hello", "k", "v")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"k":"v"`) {
		t.Fatalf("expected log line in file, got %s", data)
	}
	SetLoggerForTest(zerolog.New(os.Stdout))
}
