package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"sdfmarch/tracer/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.With(String("component", "driver")).Info("frame published",
		Uint64("seq", 7),
		Float64("angle", 1.5),
		Float64("total", math.Inf(1)),
		Duration("elapsed", 1500*time.Microsecond),
		Error(errors.New("boom")),
	)
	logger.Debug("hidden")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["service"] != "tracer" || entry["component"] != "driver" || entry["level"] != "info" {
		t.Fatalf("unexpected envelope %+v", entry)
	}
	if entry["seq"] != float64(7) || entry["angle"] != 1.5 || entry["total"] != "+Inf" {
		t.Fatalf("unexpected numeric fields %+v", entry)
	}
	if entry["elapsed"] != 1.5 || entry["error"] != "boom" {
		t.Fatalf("unexpected duration/error fields %+v", entry)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := NewWithWriter(nil, "loud"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
	if level, err := parseLevel("WARNING"); err != nil || level != WarnLevel {
		t.Fatalf("expected warn level, got %v (%v)", level, err)
	}
}

func TestGenerateTraceIDIsUUID(t *testing.T) {
	id := GenerateTraceID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid trace id, got %q: %v", id, err)
	}
	if id == GenerateTraceID() {
		t.Fatal("expected distinct trace ids")
	}
}

func TestHTTPTraceMiddlewarePropagatesID(t *testing.T) {
	var seen string
	handler := HTTPTraceMiddleware(NewTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		if LoggerFromContext(r.Context()) == nil {
			t.Fatal("expected context logger")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(TraceIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(TraceIDHeader) != "abc-123" {
		t.Fatalf("expected propagated trace id, got %q / %q", seen, rec.Header().Get(TraceIDHeader))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Header().Get(TraceIDHeader) == "" || seen == "abc-123" {
		t.Fatal("expected generated trace id")
	}
}

func TestContextLoggerFallsBackToGlobal(t *testing.T) {
	if LoggerFromContext(context.Background()) != L() {
		t.Fatal("expected global logger fallback")
	}
}

func TestNewMirrorsToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tracer.log")
	logger, err := New(config.LoggingConfig{Level: "warn", Path: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("skipped")
	logger.Warn("scene regenerated", Int("placed", 4))
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	entries := decodeLines(t, bytes.NewBuffer(data))
	if len(entries) != 1 || entries[0]["message"] != "scene regenerated" || entries[0]["placed"] != float64(4) {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestLinesKeepEnvelopeFirstAndSortFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.With(String("zone", "a"), String("component", "stream")).Debug("tick",
		String("component", "driver"),
		Bool("hit", true),
		String("message", "ignored"),
	)

	line := strings.TrimSpace(buf.String())
	prefix := `{"timestamp":"`
	if !strings.HasPrefix(line, prefix) {
		t.Fatalf("expected timestamp first, got %s", line)
	}
	tail := line[strings.Index(line, `"level"`):]
	want := `"level":"debug","message":"tick","component":"driver","hit":true,"service":"tracer","zone":"a"}`
	if tail != want {
		t.Fatalf("expected %s, got %s", want, tail)
	}
}
