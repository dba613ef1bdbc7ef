package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/logging"
	"sdfmarch/tracer/internal/scene"
	"sdfmarch/tracer/internal/simulation"
	"sdfmarch/tracer/internal/trace"
)

// ReadinessProvider exposes service state required for readiness checks.
type ReadinessProvider interface {
	StartupError() error
	Uptime() time.Duration
}

// Engine is the part of the animation driver the HTTP surface needs.
type Engine interface {
	Scene() *scene.Scene
	Params() simulation.Params
	Origin() geometry.Point
	Stats() driver.Stats
	SubmitCommand(ctx context.Context, cmd driver.Command) error
}

// StreamStatsFunc returns connected frame subscribers and frames dropped for slow ones.
type StreamStatsFunc func() (clients int, dropped uint64)

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Authenticator validates the caller of a state-changing request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	Engine       Engine
	Monitor      *simulation.MarchMonitor
	Streams      StreamStatsFunc
	RateLimiter  RateLimiter
	TraceStats   func() trace.Stats
	StorageStats func() trace.StorageStats
	// Authenticator guards POST /commands; nil leaves it open.
	Authenticator Authenticator
	// MaxBodyBytes caps request bodies for POST endpoints.
	MaxBodyBytes int64
	TimeSource   func() time.Time
}

// HandlerSet bundles the tracer HTTP handlers.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	engine       Engine
	monitor      *simulation.MarchMonitor
	streams      StreamStatsFunc
	rateLimiter  RateLimiter
	traceStats   func() trace.Stats
	storageStats func() trace.StorageStats
	auth         Authenticator
	maxBody      int64
	now          func() time.Time
}

const defaultMaxBodyBytes = 1 << 16

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		engine:       opts.Engine,
		monitor:      opts.Monitor,
		streams:      opts.Streams,
		rateLimiter:  opts.RateLimiter,
		traceStats:   opts.TraceStats,
		storageStats: opts.StorageStats,
		auth:         opts.Authenticator,
		maxBody:      maxBody,
		now:          now,
	}
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(r *mux.Router) {
	if r == nil {
		return
	}
	r.HandleFunc("/livez", h.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ReadinessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/scene", h.SceneHandler()).Methods(http.MethodGet)
	r.HandleFunc("/scene/shapes/{index:[0-9]+}", h.ShapeHandler()).Methods(http.MethodGet)
	r.HandleFunc("/march", h.MarchHandler()).Methods(http.MethodPost)
	r.HandleFunc("/commands", h.CommandHandler()).Methods(http.MethodPost)
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the driver is up, with scene and client counts.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Mode          string  `json:"mode,omitempty"`
		SceneVersion  uint64  `json:"scene_version"`
		Shapes        int     `json:"shapes"`
		Clients       int     `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if h.engine != nil {
			stats := h.engine.Stats()
			resp.Mode = stats.Mode.String()
			resp.SceneVersion = stats.SceneVersion
			resp.Shapes = stats.Shapes
		} else if status == http.StatusOK {
			status = http.StatusServiceUnavailable
			resp.Status = "error"
			resp.Message = "driver not configured"
		}
		if h.streams != nil {
			resp.Clients, _ = h.streams()
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var uptime float64
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}
		fmt.Fprintf(w, "# HELP tracer_uptime_seconds Service uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE tracer_uptime_seconds gauge\n")
		fmt.Fprintf(w, "tracer_uptime_seconds %.0f\n", uptime)

		if h.engine != nil {
			stats := h.engine.Stats()
			fmt.Fprintf(w, "# HELP tracer_ticks_total Animation ticks processed by the driver.\n")
			fmt.Fprintf(w, "# TYPE tracer_ticks_total counter\n")
			fmt.Fprintf(w, "tracer_ticks_total %d\n", stats.Ticks)
			fmt.Fprintf(w, "# HELP tracer_dropped_ticks_total Ticks coalesced because the driver was busy.\n")
			fmt.Fprintf(w, "# TYPE tracer_dropped_ticks_total counter\n")
			fmt.Fprintf(w, "tracer_dropped_ticks_total %d\n", stats.DroppedTicks)
			fmt.Fprintf(w, "# HELP tracer_events_total Events handled by the driver.\n")
			fmt.Fprintf(w, "# TYPE tracer_events_total counter\n")
			fmt.Fprintf(w, "tracer_events_total %d\n", stats.Events)
			fmt.Fprintf(w, "# HELP tracer_frames_total Frames published by the driver.\n")
			fmt.Fprintf(w, "# TYPE tracer_frames_total counter\n")
			fmt.Fprintf(w, "tracer_frames_total %d\n", stats.Frames)
			fmt.Fprintf(w, "# HELP tracer_scene_version Current scene version.\n")
			fmt.Fprintf(w, "# TYPE tracer_scene_version gauge\n")
			fmt.Fprintf(w, "tracer_scene_version %d\n", stats.SceneVersion)
			fmt.Fprintf(w, "# HELP tracer_scene_shapes Shapes in the current scene.\n")
			fmt.Fprintf(w, "# TYPE tracer_scene_shapes gauge\n")
			fmt.Fprintf(w, "tracer_scene_shapes %d\n", stats.Shapes)
		}
		if h.monitor != nil {
			snap := h.monitor.Snapshot()
			fmt.Fprintf(w, "# HELP tracer_marches_total Marches completed, by outcome.\n")
			fmt.Fprintf(w, "# TYPE tracer_marches_total counter\n")
			fmt.Fprintf(w, "tracer_marches_total{outcome=%q} %d\n", "hit", snap.Hits)
			fmt.Fprintf(w, "tracer_marches_total{outcome=%q} %d\n", "miss", snap.Misses)
			fmt.Fprintf(w, "# HELP tracer_march_duration_seconds March wall time.\n")
			fmt.Fprintf(w, "# TYPE tracer_march_duration_seconds gauge\n")
			fmt.Fprintf(w, "tracer_march_duration_seconds{stat=%q} %.9f\n", "avg", snap.Average.Seconds())
			fmt.Fprintf(w, "tracer_march_duration_seconds{stat=%q} %.9f\n", "max", snap.Max.Seconds())
			fmt.Fprintf(w, "tracer_march_duration_seconds{stat=%q} %.9f\n", "last", snap.Last.Seconds())
			fmt.Fprintf(w, "# HELP tracer_march_steps March step counts.\n")
			fmt.Fprintf(w, "# TYPE tracer_march_steps gauge\n")
			fmt.Fprintf(w, "tracer_march_steps{stat=%q} %.2f\n", "avg", snap.AverageSteps)
			fmt.Fprintf(w, "tracer_march_steps{stat=%q} %d\n", "max", snap.MaxSteps)
		}
		if h.streams != nil {
			clients, dropped := h.streams()
			fmt.Fprintf(w, "# HELP tracer_stream_clients Connected frame subscribers.\n")
			fmt.Fprintf(w, "# TYPE tracer_stream_clients gauge\n")
			fmt.Fprintf(w, "tracer_stream_clients %d\n", clients)
			fmt.Fprintf(w, "# HELP tracer_stream_dropped_frames_total Frames dropped for slow subscribers.\n")
			fmt.Fprintf(w, "# TYPE tracer_stream_dropped_frames_total counter\n")
			fmt.Fprintf(w, "tracer_stream_dropped_frames_total %d\n", dropped)
		}
		if h.traceStats != nil {
			stats := h.traceStats()
			fmt.Fprintf(w, "# HELP tracer_trace_frames_total Frames persisted to the trace session.\n")
			fmt.Fprintf(w, "# TYPE tracer_trace_frames_total counter\n")
			fmt.Fprintf(w, "tracer_trace_frames_total %d\n", stats.Frames)
			fmt.Fprintf(w, "# HELP tracer_trace_commands_total Commands persisted to the trace session.\n")
			fmt.Fprintf(w, "# TYPE tracer_trace_commands_total counter\n")
			fmt.Fprintf(w, "tracer_trace_commands_total %d\n", stats.Commands)
			fmt.Fprintf(w, "# HELP tracer_trace_pending_frames Frames buffered awaiting flush.\n")
			fmt.Fprintf(w, "# TYPE tracer_trace_pending_frames gauge\n")
			fmt.Fprintf(w, "tracer_trace_pending_frames %d\n", stats.PendingFrames)
		}
		if h.storageStats != nil {
			stats := h.storageStats()
			fmt.Fprintf(w, "# HELP tracer_trace_sessions Trace sessions retained on disk.\n")
			fmt.Fprintf(w, "# TYPE tracer_trace_sessions gauge\n")
			fmt.Fprintf(w, "tracer_trace_sessions %d\n", stats.Sessions)
			fmt.Fprintf(w, "# HELP tracer_trace_storage_bytes Disk usage of retained trace sessions.\n")
			fmt.Fprintf(w, "# TYPE tracer_trace_storage_bytes gauge\n")
			fmt.Fprintf(w, "tracer_trace_storage_bytes %d\n", stats.Bytes)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
