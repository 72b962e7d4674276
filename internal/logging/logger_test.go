package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
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
		{"chatty", slog.LevelInfo},
		{"none", slog.LevelInfo},
		{"low", slog.LevelDebug},
		{"verbose", slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDebugLevel(t *testing.T) {
	tests := []struct {
		in          string
		wantLevel   string
		wantVerbose bool
	}{
		{"", "", false},
		{"none", "info", false},
		{"low", "debug", false},
		{"LOW", "debug", false},
		{"verbose", "debug", true},
	}
	for _, tt := range tests {
		level, verbose, err := ParseDebugLevel(tt.in)
		if err != nil {
			t.Errorf("ParseDebugLevel(%q) error = %v", tt.in, err)
			continue
		}
		if level != tt.wantLevel || verbose != tt.wantVerbose {
			t.Errorf("ParseDebugLevel(%q) = %q, %v; want %q, %v", tt.in, level, verbose, tt.wantLevel, tt.wantVerbose)
		}
	}

	for _, bad := range []string{"debug", "high", "2"} {
		if _, _, err := ParseDebugLevel(bad); !errors.Is(err, ErrInvalidDebugLevel) {
			t.Errorf("ParseDebugLevel(%q) error = %v, want ErrInvalidDebugLevel", bad, err)
		}
	}
}

func TestNew_DebugLevels(t *testing.T) {
	ctx := context.Background()
	for _, level := range []string{"low", "verbose"} {
		if !New(io.Discard, level, "text").Enabled(ctx, slog.LevelDebug) {
			t.Errorf("New(%q) does not log debug", level)
		}
	}
	if New(io.Discard, "none", "text").Enabled(ctx, slog.LevelDebug) {
		t.Error(`New("none") logs debug`)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("upload run started", "run_id", "r1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "upload run started" || entry["run_id"] != "r1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("row rejected", "line", 4)
	if !strings.Contains(buf.String(), "line=4") {
		t.Errorf("output = %q, want line=4", buf.String())
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	SetupWriter(&buf, "info", "text")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "run_id", "r9").Info("upload received")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") || !strings.Contains(out, "run_id=r9") {
		t.Errorf("output = %q, want request_id and run_id", out)
	}
}
