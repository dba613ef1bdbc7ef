// Package logging writes one JSON object per line. The envelope keys come
// first in a fixed order and the remaining fields follow sorted by key, so
// trace and log files diff cleanly between runs.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sdfmarch/tracer/internal/config"
)

// TraceIDHeader carries a request's trace id in and out of the HTTP API.
const TraceIDHeader = "X-Trace-ID"

// TraceIDField is the log key holding the trace id.
const TraceIDField = "trace_id"

const serviceName = "tracer"

// Level orders log verbosity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error", "fatal"}

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "info"
	}
	return levelNames[l]
}

func parseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	for i, candidate := range levelNames {
		if candidate == name {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", raw)
}

// Field is one structured attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field        { return Field{Key: key, Value: value} }
func Int(key string, value int) Field       { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field     { return Field{Key: key, Value: value} }

// Float64 renders non-finite values as strings; march distances are +Inf
// against an empty scene and JSON has no encoding for that.
func Float64(key string, value float64) Field {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Field{Key: key, Value: strconv.FormatFloat(value, 'g', -1, 64)}
	}
	return Field{Key: key, Value: value}
}

// Duration is reported in fractional milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: float64(value) / float64(time.Millisecond)}
}

// Error stores err's message under "error".
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// sink serialises writes shared by a logger and everything derived from it.
type sink struct {
	mu   sync.Mutex
	out  io.Writer
	file *os.File
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(line)
}

func (s *sink) sync() error {
	if s == nil || s.file == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

// Logger emits JSON lines. Loggers derived with With share the parent's sink.
type Logger struct {
	level  Level
	sink   *sink
	fields []Field
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewTestLogger()
)

// New builds the process logger: stdout, plus cfg.Path when one is set.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	s := &sink{out: os.Stdout}
	if path := strings.TrimSpace(cfg.Path); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		s.out = io.MultiWriter(file, os.Stdout)
		s.file = file
	}
	return &Logger{level: level, sink: s, fields: []Field{String("service", serviceName)}}, nil
}

// NewWithWriter logs to w only.
func NewWithWriter(w io.Writer, level string) (*Logger, error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = io.Discard
	}
	return &Logger{level: parsed, sink: &sink{out: w}, fields: []Field{String("service", serviceName)}}, nil
}

// NewTestLogger discards everything.
func NewTestLogger() *Logger {
	return &Logger{level: DebugLevel, sink: &sink{out: io.Discard}}
}

// ReplaceGlobals swaps the fallback returned by L.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a child logger that stamps fields on every line. A later field
// with the same key overrides an earlier one.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{level: l.level, sink: l.sink, fields: merged}
}

// Sync flushes the log file, if any.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.sink.sync()
}

func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields) }
func (l *Logger) Info(message string, fields ...Field)  { l.log(InfoLevel, message, fields) }
func (l *Logger) Warn(message string, fields ...Field)  { l.log(WarnLevel, message, fields) }
func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(message string, fields ...Field) {
	l.log(FatalLevel, message, fields)
	_ = l.Sync()
	os.Exit(1)
}

func (l *Logger) log(level Level, message string, fields []Field) {
	if l == nil {
		l = L()
	}
	if level < l.level {
		return
	}
	line, err := encodeLine(time.Now().UTC(), level, message, l.fields, fields)
	if err != nil {
		return
	}
	l.sink.write(line)
}

// encodeLine writes timestamp, level and message first, then the merged
// fields in key order.
func encodeLine(at time.Time, level Level, message string, base, extra []Field) ([]byte, error) {
	values := make(map[string]any, len(base)+len(extra))
	for _, field := range base {
		values[field.Key] = field.Value
	}
	for _, field := range extra {
		values[field.Key] = field.Value
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		switch key {
		case "timestamp", "level", "message":
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":"`)
	buf.WriteString(at.Format(time.RFC3339Nano))
	buf.WriteString(`","level":"`)
	buf.WriteString(level.String())
	buf.WriteString(`","message":`)
	if err := appendJSON(&buf, message); err != nil {
		return nil, err
	}
	for _, key := range keys {
		buf.WriteByte(',')
		if err := appendJSON(&buf, key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := appendJSON(&buf, values[key]); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func appendJSON(buf *bytes.Buffer, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

type scopeKey struct{}

// scope is what a request carries through its context.
type scope struct {
	logger  *Logger
	traceID string
}

func scopeFrom(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// LoggerFromContext returns the request logger, or L when there is none.
func LoggerFromContext(ctx context.Context) *Logger {
	if logger := scopeFrom(ctx).logger; logger != nil {
		return logger
	}
	return L()
}

// TraceIDFromContext returns the request's trace id, or "".
func TraceIDFromContext(ctx context.Context) string {
	return scopeFrom(ctx).traceID
}

// GenerateTraceID returns a random UUID.
func GenerateTraceID() string {
	return uuid.NewString()
}

// WithTrace attaches traceID (or a fresh one) and a logger stamped with it to ctx.
func WithTrace(ctx context.Context, base *Logger, traceID string) (context.Context, *Logger, string) {
	tid := strings.TrimSpace(traceID)
	if tid == "" {
		tid = GenerateTraceID()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	derived := base.With(String(TraceIDField, tid))
	return context.WithValue(ctx, scopeKey{}, scope{logger: derived, traceID: tid}), derived, tid
}

// HTTPTraceMiddleware reuses an incoming X-Trace-ID or mints one, echoes it on
// the response and exposes it to handlers through the request context.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, logger, traceID := WithTrace(r.Context(), base, r.Header.Get(TraceIDHeader))
			w.Header().Set(TraceIDHeader, traceID)
			logger.Debug("request received", String("method", r.Method), String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
