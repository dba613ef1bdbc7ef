package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"sdfmarch/tracer/internal/generator"
)

// Prefix namespaces every environment variable read by the service.
const Prefix = "TRACER"

const (
	// DefaultAddr is the default TCP address the HTTP server listens on.
	DefaultAddr = ":43127"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket message size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// MaxStepsLimit bounds the per-march step budget so one tick stays cheap.
	MaxStepsLimit = 10000

	// DefaultTargetHz is the animation tick rate.
	DefaultTargetHz = 60
	// DefaultViewportWidth and DefaultViewportHeight size the traced area.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// DefaultResetWindow bounds how frequently scene resets may be requested.
	DefaultResetWindow = time.Second
	// DefaultResetBurst sets how many resets may be made per window.
	DefaultResetBurst = 5

	// DefaultTraceMaxSessions caps how many trace sessions are kept on disk.
	DefaultTraceMaxSessions = 20
	// DefaultTraceMaxAge removes trace sessions older than this age. Zero disables it.
	DefaultTraceMaxAge = 72 * time.Hour
	// DefaultTraceSweepInterval controls how often the retention sweep runs.
	DefaultTraceSweepInterval = 10 * time.Minute

	// DefaultGRPCEncoding is the frame compression codec for gRPC streams.
	DefaultGRPCEncoding = "gzip"
	// DefaultGRPCStreamHz throttles gRPC frame delivery.
	DefaultGRPCStreamHz = 20

	// DefaultLogLevel controls verbosity for service logs.
	DefaultLogLevel = "info"

	// DefaultMaxShapes bounds how many shapes one reset may request.
	DefaultMaxShapes = 100
	// DefaultTrailLimit caps the terminal points carried in every frame.
	DefaultTrailLimit = 4096
)

// gRPC authentication modes.
const (
	AuthModeNone         = "none"
	AuthModeSharedSecret = "shared_secret"
	AuthModeMTLS         = "mtls"
)

// Config captures all runtime tunables for the tracer service.
type Config struct {
	Address         string          `envconfig:"ADDR" default:":43127"`
	AllowedOrigins  []string        `envconfig:"ALLOWED_ORIGINS"`
	MaxPayloadBytes int64           `envconfig:"MAX_PAYLOAD_BYTES" default:"65536"`
	PingInterval    time.Duration   `envconfig:"PING_INTERVAL" default:"30s"`
	MaxClients      int             `envconfig:"MAX_CLIENTS" default:"256"`
	WSAuthSecret    string          `envconfig:"WS_AUTH_SECRET"`
	TargetHz        float64         `envconfig:"TARGET_HZ" default:"60"`
	TraceDir        string          `envconfig:"TRACE_DIR"`
	TraceRetention  RetentionConfig `envconfig:"TRACE"`
	ResetWindow     time.Duration   `envconfig:"RESET_WINDOW" default:"1s"`
	ResetBurst      int             `envconfig:"RESET_BURST" default:"5"`
	GRPC            GRPCConfig      `envconfig:"GRPC"`
	Logging         LoggingConfig   `envconfig:"LOG"`
	SceneConfig
}

// SceneConfig describes the viewport, the scene generator and march limits.
type SceneConfig struct {
	ViewportWidth     float64 `envconfig:"VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight    float64 `envconfig:"VIEWPORT_HEIGHT" default:"720"`
	Seed              uint64  `envconfig:"SEED" default:"0"`
	ShapesMin         int     `envconfig:"SHAPES_MIN" default:"5"`
	ShapesMax         int     `envconfig:"SHAPES_MAX" default:"10"`
	RotationSpeed     float64 `envconfig:"ROTATION_SPEED" default:"0.003"`
	RotationStep      float64 `envconfig:"ROTATION_STEP" default:"0.001"`
	MaxSteps          int     `envconfig:"MAX_STEPS" default:"200"`
	MinDistance       float64 `envconfig:"MIN_DISTANCE" default:"0.01"`
	TravelFactor      float64 `envconfig:"TRAVEL_FACTOR" default:"10"`
	ExclusionRadius   float64 `envconfig:"EXCLUSION_RADIUS" default:"150"`
	Margin            float64 `envconfig:"MARGIN" default:"50"`
	PlacementAttempts int     `envconfig:"PLACEMENT_ATTEMPTS" default:"1000"`
	MaxShapes         int     `envconfig:"MAX_SHAPES" default:"100"`
	TrailLimit        int     `envconfig:"TRAIL_LIMIT" default:"4096"`
}

// RetentionConfig bounds the trace sessions kept under TRACE_DIR.
type RetentionConfig struct {
	MaxSessions   int           `envconfig:"MAX_SESSIONS" default:"20"`
	MaxAge        time.Duration `envconfig:"MAX_AGE" default:"72h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
}

// GRPCConfig captures the optional gRPC listener and its security settings.
type GRPCConfig struct {
	Address      string  `envconfig:"ADDR"`
	Encoding     string  `envconfig:"ENCODING" default:"gzip"`
	StreamHz     float64 `envconfig:"STREAM_HZ" default:"20"`
	AuthMode     string  `envconfig:"AUTH_MODE" default:"none"`
	SharedSecret string  `envconfig:"SHARED_SECRET"`
	TLSCertPath  string  `envconfig:"TLS_CERT"`
	TLSKeyPath   string  `envconfig:"TLS_KEY"`
	ClientCAPath string  `envconfig:"TLS_CLIENT_CA"`
}

// Enabled reports whether a gRPC listener should be started.
func (g GRPCConfig) Enabled() bool {
	return strings.TrimSpace(g.Address) != ""
}

// LoggingConfig selects the log level and an optional file mirrored alongside
// stdout. Keys are derived from field names so no unprefixed fallback such as
// PATH is consulted.
type LoggingConfig struct {
	Level string `split_words:"true" default:"info"`
	Path  string `split_words:"true"`
}

// Load reads the tracer configuration from TRACER_* environment variables,
// applying defaults and returning one descriptive error for every invalid override.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage prints the recognised variables in envconfig's table format.
func Usage() error {
	return envconfig.Usage(Prefix, &Config{})
}

func (c *Config) normalise() {
	c.Address = strings.TrimSpace(c.Address)
	c.TraceDir = strings.TrimSpace(c.TraceDir)
	c.WSAuthSecret = strings.TrimSpace(c.WSAuthSecret)
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if item := strings.TrimSpace(origin); item != "" {
			origins = append(origins, item)
		}
	}
	c.AllowedOrigins = nil
	if len(origins) > 0 {
		c.AllowedOrigins = origins
	}
	c.GRPC.Address = strings.TrimSpace(c.GRPC.Address)
	c.GRPC.Encoding = strings.ToLower(strings.TrimSpace(c.GRPC.Encoding))
	c.GRPC.AuthMode = strings.ToLower(strings.TrimSpace(c.GRPC.AuthMode))
	c.GRPC.SharedSecret = strings.TrimSpace(c.GRPC.SharedSecret)
	c.GRPC.TLSCertPath = strings.TrimSpace(c.GRPC.TLSCertPath)
	c.GRPC.TLSKeyPath = strings.TrimSpace(c.GRPC.TLSKeyPath)
	c.GRPC.ClientCAPath = strings.TrimSpace(c.GRPC.ClientCAPath)
	c.Logging.Level = strings.TrimSpace(c.Logging.Level)
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
}

// Validate collects every out-of-range setting into a single error.
func (c *Config) Validate() error {
	var problems []string
	positive := func(key string, value float64) {
		if !(value > 0) || math.IsInf(value, 0) {
			problems = append(problems, fmt.Sprintf("%s_%s must be a positive number, got %v", Prefix, key, value))
		}
	}
	nonNegative := func(key string, value float64) {
		if !(value >= 0) || math.IsInf(value, 0) {
			problems = append(problems, fmt.Sprintf("%s_%s must be a non-negative number, got %v", Prefix, key, value))
		}
	}
	finite := func(key string, value float64) {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			problems = append(problems, fmt.Sprintf("%s_%s must be finite, got %v", Prefix, key, value))
		}
	}

	if c.Address == "" {
		problems = append(problems, Prefix+"_ADDR must not be empty")
	}
	if c.MaxPayloadBytes <= 0 {
		problems = append(problems, fmt.Sprintf("%s_MAX_PAYLOAD_BYTES must be a positive integer, got %d", Prefix, c.MaxPayloadBytes))
	}
	if c.PingInterval <= 0 {
		problems = append(problems, fmt.Sprintf("%s_PING_INTERVAL must be a positive duration, got %v", Prefix, c.PingInterval))
	}
	nonNegative("MAX_CLIENTS", float64(c.MaxClients))
	positive("TARGET_HZ", c.TargetHz)
	if c.ResetWindow <= 0 {
		problems = append(problems, fmt.Sprintf("%s_RESET_WINDOW must be a positive duration, got %v", Prefix, c.ResetWindow))
	}
	positive("RESET_BURST", float64(c.ResetBurst))

	s := c.SceneConfig
	positive("VIEWPORT_WIDTH", s.ViewportWidth)
	positive("VIEWPORT_HEIGHT", s.ViewportHeight)
	if s.MaxShapes < 1 || s.MaxShapes > generator.MaxCount {
		problems = append(problems, fmt.Sprintf("%s_MAX_SHAPES must be between 1 and %d, got %d", Prefix, generator.MaxCount, s.MaxShapes))
	}
	if s.ShapesMin < 0 || s.ShapesMax < 1 || s.ShapesMax < s.ShapesMin || s.ShapesMax > s.MaxShapes {
		problems = append(problems, fmt.Sprintf("%s_SHAPES_MIN and %s_SHAPES_MAX must satisfy 0 <= min <= max, 1 <= max <= %s_MAX_SHAPES, got %d and %d", Prefix, Prefix, Prefix, s.ShapesMin, s.ShapesMax))
	}
	finite("ROTATION_SPEED", s.RotationSpeed)
	finite("ROTATION_STEP", s.RotationStep)
	positive("MAX_STEPS", float64(s.MaxSteps))
	if s.MaxSteps > MaxStepsLimit {
		problems = append(problems, fmt.Sprintf("%s_MAX_STEPS must not exceed %d, got %d", Prefix, MaxStepsLimit, s.MaxSteps))
	}
	positive("MIN_DISTANCE", s.MinDistance)
	positive("TRAVEL_FACTOR", s.TravelFactor)
	nonNegative("EXCLUSION_RADIUS", s.ExclusionRadius)
	nonNegative("MARGIN", s.Margin)
	positive("PLACEMENT_ATTEMPTS", float64(s.PlacementAttempts))
	positive("TRAIL_LIMIT", float64(s.TrailLimit))

	r := c.TraceRetention
	nonNegative("TRACE_MAX_SESSIONS", float64(r.MaxSessions))
	if r.MaxAge < 0 {
		problems = append(problems, fmt.Sprintf("%s_TRACE_MAX_AGE must not be negative, got %v", Prefix, r.MaxAge))
	}
	if r.SweepInterval <= 0 {
		problems = append(problems, fmt.Sprintf("%s_TRACE_SWEEP_INTERVAL must be a positive duration, got %v", Prefix, r.SweepInterval))
	}

	g := c.GRPC
	switch g.Encoding {
	case "gzip", "zstd", "snappy":
	default:
		problems = append(problems, fmt.Sprintf("%s_GRPC_ENCODING must be one of gzip, zstd, snappy, got %q", Prefix, g.Encoding))
	}
	positive("GRPC_STREAM_HZ", g.StreamHz)
	switch g.AuthMode {
	case AuthModeNone:
	case AuthModeSharedSecret:
		if g.SharedSecret == "" {
			problems = append(problems, Prefix+"_GRPC_SHARED_SECRET is required when "+Prefix+"_GRPC_AUTH_MODE=shared_secret")
		}
	case AuthModeMTLS:
		if g.TLSCertPath == "" || g.TLSKeyPath == "" || g.ClientCAPath == "" {
			problems = append(problems, Prefix+"_GRPC_TLS_CERT, "+Prefix+"_GRPC_TLS_KEY and "+Prefix+"_GRPC_TLS_CLIENT_CA are required when "+Prefix+"_GRPC_AUTH_MODE=mtls")
		}
	default:
		problems = append(problems, fmt.Sprintf("%s_GRPC_AUTH_MODE must be one of none, shared_secret, mtls, got %q", Prefix, g.AuthMode))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		problems = append(problems, fmt.Sprintf("%s_LOG_LEVEL must be one of debug, info, warn, error, fatal, got %q", Prefix, c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
