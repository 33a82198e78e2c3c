package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sbr_monitor/config"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, WARN)
	t.Cleanup(func() { InitWriter(os.Stdout, INFO) })

	Debugf("debug %d\n", 1)
	Printf("info %d\n", 2)
	Warnf("warn %d\n", 3)
	Errorf("error %d\n", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("messages below WARN were written: %q", out)
	}
	if !strings.Contains(out, "WARN: warn 3") || !strings.Contains(out, "ERROR: error 4") {
		t.Fatalf("missing messages: %q", out)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "verbose")
	t.Cleanup(func() { InitWriter(os.Stdout, INFO) })

	Debugf("hidden\n")
	Printf("shown\n")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestLogResult(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, INFO)
	t.Cleanup(func() { InitWriter(os.Stdout, INFO) })

	LogResult("Push", true, "12 records")
	LogResult("Pull", false, "")
	LogProgress(2, 5, "sbr2.csv")
	out := buf.String()
	if !strings.Contains(out, "Push: SUCCESS - 12 records") || !strings.Contains(out, "Pull: FAILED\n") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "Progress: [2/5] sbr2.csv") {
		t.Fatalf("missing progress line: %q", out)
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := Init(config.LoggingConfig{LogFile: path, LogLevel: DEBUG}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debugf("pull tick\n")
	if GetLogFileName() != path {
		t.Fatalf("log file = %q", GetLogFileName())
	}
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	t.Cleanup(func() { InitWriter(os.Stdout, INFO) })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "DEBUG: pull tick") || !strings.Contains(string(data), "Session ended") {
		t.Fatalf("unexpected log contents: %q", data)
	}
}
