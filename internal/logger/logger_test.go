package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/bountyboard/backend/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_ServiceAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.Logging{Level: "info", Service: "bountyboard"}, &buf)
	ctx := WithRequestID(context.Background(), "req-1")

	FromContext(ctx, l).Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["service"] != "bountyboard" {
		t.Errorf("service: %v", rec["service"])
	}
	if rec["request_id"] != "req-1" {
		t.Errorf("request_id: %v", rec["request_id"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.Logging{Level: "error"}, &buf)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at error level: %s", buf.String())
	}
}
