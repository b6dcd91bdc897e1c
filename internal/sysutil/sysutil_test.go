package sysutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-inventory-sync/internal/config"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewLogger(config.LogConfig{}, &buf)
	defer closer.Close()

	l.Info().Str("op", "create_item").Msg("queued")
	out := buf.String()
	if !strings.Contains(out, `"op":"create_item"`) || !strings.Contains(out, `"time"`) {
		t.Fatalf("unexpected json line: %q", out)
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewLogger(config.LogConfig{Pretty: true}, &buf)
	l.Warn().Msg("offline")
	if out := buf.String(); strings.HasPrefix(out, "{") || !strings.Contains(out, "offline") {
		t.Fatalf("expected console format, got %q", out)
	}
}

func TestNewLogger_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invsync.log")
	var buf bytes.Buffer
	l, closer := NewLogger(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1}, &buf)

	l.Error().Msg("sync failed")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "sync failed") || !strings.Contains(buf.String(), "sync failed") {
		t.Fatalf("line missing: file=%q console=%q", data, buf.String())
	}
}
