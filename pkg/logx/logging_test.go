package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"searchwatch/internal/transport"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "search"))
	log.Info("chunk fetched", Int64("count", 7), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "search" {
		t.Fatalf("comp = %v, want search", m["comp"])
	}
	if m["count"] != float64(7) {
		t.Fatalf("count = %v, want 7", m["count"])
	}
	if _, ok := m["err"]; ok {
		t.Fatalf("nil error must not be logged: %v", m)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should be disabled at warn level")
	}
	if !log.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	l.Error("nothing happens")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatForwardJSON(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"x","message":"chunk failed","query":"q:[\"x\"]","status":502}`
	got := formatForwardJSON([]byte(line))
	if !strings.HasPrefix(got, "[WARN] chunk failed") {
		t.Fatalf("unexpected header: %q", got)
	}
	if !strings.Contains(got, "- status=502") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time must be stripped: %q", got)
	}
}

func TestServiceForwardsWarnings(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	done := make(chan struct{}, 1)
	sender := transport.SenderFunc{ID: "test", Fn: func(_ context.Context, text string) error {
		mu.Lock()
		sent = append(sent, text)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}}

	svc, log := New(Config{
		Level:   "info",
		Console: false,
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("not forwarded")
	log.Warn("forwarded")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded log")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("forwarded %d messages, want 1: %v", len(sent), sent)
	}
	if !strings.Contains(sent[0], "forwarded") {
		t.Fatalf("unexpected forwarded text: %q", sent[0])
	}
}
