package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gonum.org/v1/gonum/spatial/r2"
	"google.golang.org/grpc"

	"sdfmarch/tracer/internal/auth"
	configpkg "sdfmarch/tracer/internal/config"
	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/generator"
	grpcstream "sdfmarch/tracer/internal/grpc"
	"sdfmarch/tracer/internal/httpapi"
	"sdfmarch/tracer/internal/logging"
	"sdfmarch/tracer/internal/simulation"
	"sdfmarch/tracer/internal/stream"
	"sdfmarch/tracer/internal/trace"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	tokenLeeway       = 5 * time.Second
	traceSessionName  = "tracer"
)

func main() {
	showEnv := flag.Bool("env", false, "print the recognised TRACER_* environment variables and exit")
	flag.Parse()
	if *showEnv {
		if err := configpkg.Usage(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble tracer", logging.Error(err))
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("tracer stopped with error", logging.Error(err))
		os.Exit(1)
	}
}

// app owns every long-running component of the tracer process.
type app struct {
	cfg     *configpkg.Config
	log     *logging.Logger
	seed    uint64
	started time.Time

	engine   *driver.Driver
	frames   *driver.Broadcaster
	monitor  *simulation.MarchMonitor
	loop     *simulation.Loop
	hub      *stream.Hub
	router   *mux.Router
	recorder *trace.Recorder
	cleaner  *trace.Cleaner
	grpc     *grpc.Server

	mu       sync.RWMutex
	startErr error
}

func newApp(cfg *configpkg.Config, logger *logging.Logger) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.L()
	}
	a := &app{cfg: cfg, log: logger, seed: cfg.Seed, started: time.Now()}
	if a.seed == 0 {
		a.seed = uint64(time.Now().UnixNano())
	}

	state, err := newState(cfg, a.seed)
	if err != nil {
		return nil, err
	}
	a.frames = driver.NewBroadcaster(0)
	a.monitor = simulation.NewMarchMonitor()

	opts := []driver.Option{
		driver.WithSink(a.frames),
		driver.WithMonitor(a.monitor),
		driver.WithLogger(logger),
	}
	if cfg.TraceDir != "" {
		if err := a.openTrace(); err != nil {
			return nil, err
		}
		opts = append(opts, driver.WithCommandObserver(a.recorder.ObserveCommand))
	}
	a.engine, err = driver.New(state, opts...)
	if err != nil {
		a.closeTrace()
		return nil, fmt.Errorf("create driver: %w", err)
	}
	a.loop = simulation.NewLoop(cfg.TargetHz, a.engine.Tick)

	limiter := httpapi.NewSlidingWindowLimiter(cfg.ResetWindow, cfg.ResetBurst, nil)
	var tokens *auth.HMACTokens
	if cfg.WSAuthSecret != "" {
		tokens, err = auth.NewHMACTokens(cfg.WSAuthSecret, tokenLeeway)
		if err != nil {
			a.closeTrace()
			return nil, fmt.Errorf("websocket auth: %w", err)
		}
	}
	hubOpts := stream.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
		MaxPayload:     cfg.MaxPayloadBytes,
		MaxClients:     cfg.MaxClients,
		ResetLimiter:   limiter,
	}
	if tokens != nil {
		hubOpts.Authenticator = tokens
	}
	a.hub, err = stream.NewHub(a.frames, a.engine, hubOpts)
	if err != nil {
		a.closeTrace()
		return nil, fmt.Errorf("create stream hub: %w", err)
	}

	handlerOpts := httpapi.Options{
		Logger:       logger,
		Readiness:    a,
		Engine:       a.engine,
		Monitor:      a.monitor,
		Streams:      a.hub.Stats,
		RateLimiter:  limiter,
		MaxBodyBytes: cfg.MaxPayloadBytes,
	}
	if tokens != nil {
		handlerOpts.Authenticator = tokens
	}
	if a.recorder != nil {
		handlerOpts.TraceStats = a.recorder.Writer().Stats
		handlerOpts.StorageStats = a.cleaner.Stats
	}
	a.router = mux.NewRouter()
	a.router.Use(logging.HTTPTraceMiddleware(logger))
	httpapi.NewHandlerSet(handlerOpts).Register(a.router)
	registerControlDocEndpoints(a.router, cfg.RotationStep)
	a.router.Handle(streamPath, a.hub).Methods(http.MethodGet)

	if cfg.GRPC.Enabled() {
		if err := a.buildGRPC(); err != nil {
			a.closeTrace()
			return nil, err
		}
	}
	return a, nil
}

// newState builds the initial driver state from the scene configuration.
func newState(cfg *configpkg.Config, seed uint64) (*driver.State, error) {
	placement := generator.DefaultRequest(0, r2.Box{})
	placement.ExclusionRadius = cfg.ExclusionRadius
	placement.Margin = cfg.Margin
	placement.MaxAttempts = cfg.PlacementAttempts

	state, err := driver.NewState(driver.Options{
		Width:  cfg.ViewportWidth,
		Height: cfg.ViewportHeight,
		Params: simulation.Params{
			MaxSteps:    cfg.MaxSteps,
			MaxTravel:   cfg.TravelFactor * math.Hypot(cfg.ViewportWidth, cfg.ViewportHeight),
			MinDistance: cfg.MinDistance,
		},
		RotationSpeed: cfg.RotationSpeed,
		TrailLimit:    cfg.TrailLimit,
		MaxShapes:     cfg.MaxShapes,
		Placement:     placement,
		CountMin:      cfg.ShapesMin,
		CountMax:      cfg.ShapesMax,
		Rand:          generator.NewSource(seed),
	})
	if err != nil {
		return nil, fmt.Errorf("create driver state: %w", err)
	}
	return state, nil
}

func (a *app) openTrace() error {
	writer, manifest, err := trace.NewWriter(a.cfg.TraceDir, traceSessionName, time.Now)
	if err != nil {
		return fmt.Errorf("open trace session: %w", err)
	}
	writer.SetHeaderMetadata(a.seed, trace.Viewport{Width: a.cfg.ViewportWidth, Height: a.cfg.ViewportHeight})
	a.recorder, err = trace.NewRecorder(writer, a.log)
	if err != nil {
		_ = writer.Close()
		return fmt.Errorf("create trace recorder: %w", err)
	}
	live := filepath.Clean(writer.Directory())
	a.cleaner = trace.NewCleaner(a.cfg.TraceDir, trace.RetentionPolicy{
		MaxSessions: a.cfg.TraceRetention.MaxSessions,
		MaxAge:      a.cfg.TraceRetention.MaxAge,
	}, a.log)
	a.cleaner.Protect(func(path string) bool { return filepath.Clean(path) == live })
	a.log.Info("trace recording enabled",
		logging.String("directory", writer.Directory()),
		logging.String("session", manifest.Session),
		logging.String("session_id", manifest.ID),
		logging.Uint64("seed", a.seed),
	)
	return nil
}

func (a *app) closeTrace() {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Writer().Close(); err != nil {
		a.log.Warn("trace close failed", logging.Error(err))
	}
}

func (a *app) buildGRPC() error {
	opts, err := configureGRPCSecurity(a.cfg.GRPC, a.log)
	if err != nil {
		return fmt.Errorf("configure grpc security: %w", err)
	}
	compressor, err := grpcstream.NewCompressor(a.cfg.GRPC.Encoding)
	if err != nil {
		return err
	}
	a.grpc = grpc.NewServer(opts...)
	service := grpcstream.NewService(&engineBridge{frames: a.frames, engine: a.engine},
		grpcstream.WithCompressor(compressor),
		grpcstream.WithStreamRate(int(math.Ceil(a.cfg.GRPC.StreamHz))),
		grpcstream.WithLogger(a.log),
	)
	grpcstream.Register(a.grpc, service)
	return nil
}

// StartupError reports a listener failure so readiness can surface it.
func (a *app) StartupError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.startErr
}

// Uptime reports how long the process has been running.
func (a *app) Uptime() time.Duration {
	return time.Since(a.started)
}

func (a *app) fail(err error) {
	a.mu.Lock()
	if a.startErr == nil {
		a.startErr = err
	}
	a.mu.Unlock()
}

// Run starts every component and blocks until ctx is cancelled or a listener fails.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				a.log.Error("component failed", logging.String("component", name), logging.Error(err))
				a.fail(err)
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	spawn("driver", func() error { return a.engine.Run(ctx) })
	spawn("stream", func() error { return a.hub.Run(ctx) })
	if a.recorder != nil {
		frames, unsubscribe := a.frames.Subscribe()
		spawn("trace", func() error {
			defer unsubscribe()
			return a.recorder.Run(ctx, frames)
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.cleaner.Run(ctx, a.cfg.TraceRetention.SweepInterval)
		}()
	}
	a.loop.Start(ctx)

	server := &http.Server{Addr: a.cfg.Address, Handler: a.router, ReadHeaderTimeout: readHeaderTimeout}
	spawn("http", func() error {
		a.log.Info("tracer listening",
			logging.String("url", listenerURL(a.cfg.Address, false)),
			logging.String("stream_url", streamURL(a.cfg.Address, false)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.grpc != nil {
		listener, err := net.Listen("tcp", a.cfg.GRPC.Address)
		if err != nil {
			a.fail(err)
			cancel()
			_ = server.Close()
			wg.Wait()
			a.closeTrace()
			return fmt.Errorf("listen grpc: %w", err)
		}
		spawn("grpc", func() error {
			a.log.Info("gRPC listening", logging.String("address", listener.Addr().String()))
			return a.grpc.Serve(listener)
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()
	a.loop.Stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown failed", logging.Error(err))
	}
	if a.grpc != nil {
		a.grpc.GracefulStop()
	}
	wg.Wait()
	a.closeTrace()
	a.log.Info("tracer stopped", logging.Duration("uptime", a.Uptime()))
	return runErr
}
