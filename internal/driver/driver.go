package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/logging"
	"sdfmarch/tracer/internal/scene"
	"sdfmarch/tracer/internal/simulation"
)

const defaultQueueSize = 64

var (
	// ErrStopped is returned when submitting to a driver whose Run has exited.
	ErrStopped = errors.New("driver stopped")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("driver already running")
	// ErrTooManyShapes is returned for a reset larger than the shape limit.
	ErrTooManyShapes = errors.New("too many shapes requested")
)

// Sink receives every frame the driver produces.
type Sink interface {
	Publish(Frame)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(Frame)

// Publish invokes the wrapped function.
func (f SinkFunc) Publish(frame Frame) { f(frame) }

// CommandObserver sees every accepted command before it is queued.
type CommandObserver func(Command)

// Stats is a point-in-time view of driver activity.
type Stats struct {
	Ticks        uint64
	DroppedTicks uint64
	Events       uint64
	Frames       uint64
	Mode         Mode
	SceneVersion uint64
	Shapes       int
}

// Driver serialises all state mutation onto the goroutine running Run.
type Driver struct {
	state     *State
	events    chan Event
	done      chan struct{}
	running   atomic.Bool
	pending   atomic.Bool
	scene     atomic.Pointer[scene.Scene]
	params    simulation.Params
	origin    geometry.Point
	maxShapes int
	sink      Sink
	monitor   *simulation.MarchMonitor
	logger    *logging.Logger
	observer  CommandObserver

	ticks   atomic.Uint64
	dropped atomic.Uint64
	handled atomic.Uint64
	frames  atomic.Uint64
	mode    atomic.Int32
	version atomic.Uint64
}

// Option customises a Driver.
type Option func(*Driver)

// WithSink routes frames to sink.
func WithSink(sink Sink) Option {
	return func(d *Driver) { d.sink = sink }
}

// WithMonitor records march timings on monitor.
func WithMonitor(monitor *simulation.MarchMonitor) Option {
	return func(d *Driver) { d.monitor = monitor }
}

// WithLogger overrides the driver logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithQueueSize sets the event buffer length.
func WithQueueSize(size int) Option {
	return func(d *Driver) {
		if size > 0 {
			d.events = make(chan Event, size)
		}
	}
}

// WithCommandObserver registers a hook for accepted commands.
func WithCommandObserver(observer CommandObserver) Option {
	return func(d *Driver) { d.observer = observer }
}

// New wraps state in a driver. The driver takes ownership of state.
func New(state *State, opts ...Option) (*Driver, error) {
	if state == nil {
		return nil, errors.New("driver state is required")
	}
	d := &Driver{
		state:     state,
		events:    make(chan Event, defaultQueueSize),
		done:      make(chan struct{}),
		params:    state.Params(),
		origin:    state.Origin(),
		maxShapes: state.MaxShapes(),
		logger:    logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.publishState()
	return d, nil
}

// Run drains the event queue until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.events:
			d.handle(ev)
		}
	}
}

// Submit queues ev for the driver goroutine.
func (d *Driver) Submit(ctx context.Context, ev Event) error {
	if err := d.admit(ev); err != nil {
		return err
	}
	select {
	case <-d.done:
		return ErrStopped
	default:
	}
	select {
	case d.events <- ev:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitCommand validates cmd, notifies the observer and queues its event.
func (d *Driver) SubmitCommand(ctx context.Context, cmd Command) error {
	ev, err := cmd.Event()
	if err != nil {
		return err
	}
	if err := d.admit(ev); err != nil {
		return err
	}
	if d.observer != nil {
		d.observer(cmd)
	}
	return d.Submit(ctx, ev)
}

func (d *Driver) admit(ev Event) error {
	if ev == nil {
		return errors.New("event is required")
	}
	if reset, ok := ev.(Reset); ok && !reset.Random && reset.Count > float64(d.maxShapes) {
		return fmt.Errorf("%w: %v exceeds limit %d", ErrTooManyShapes, reset.Count, d.maxShapes)
	}
	return nil
}

// MaxShapes is the largest reset Submit accepts.
func (d *Driver) MaxShapes() int { return d.maxShapes }

// Tick queues a tick unless one is already pending. Its signature matches
// simulation.FrameFunc so a Loop can drive it directly.
func (d *Driver) Tick(time.Duration) {
	if !d.pending.CompareAndSwap(false, true) {
		d.dropped.Add(1)
		return
	}
	select {
	case d.events <- Tick{}:
	default:
		d.pending.Store(false)
		d.dropped.Add(1)
	}
}

// Scene returns the current scene for read-only queries from any goroutine.
func (d *Driver) Scene() *scene.Scene {
	return d.scene.Load()
}

// Params returns the march limits the driver uses.
func (d *Driver) Params() simulation.Params { return d.params }

// Origin returns the shared ray origin.
func (d *Driver) Origin() geometry.Point { return d.origin }

// Stats reports counters safe to read from any goroutine.
func (d *Driver) Stats() Stats {
	current := d.scene.Load()
	return Stats{
		Ticks:        d.ticks.Load(),
		DroppedTicks: d.dropped.Load(),
		Events:       d.handled.Load(),
		Frames:       d.frames.Load(),
		Mode:         Mode(d.mode.Load()),
		SceneVersion: d.version.Load(),
		Shapes:       current.Len(),
	}
}

func (d *Driver) handle(ev Event) {
	if _, ok := ev.(Tick); ok {
		d.pending.Store(false)
		d.ticks.Add(1)
	}
	d.handled.Add(1)

	started := time.Now()
	frame, emitted := d.state.Apply(ev)
	elapsed := time.Since(started)
	d.publishState()

	if reset, ok := ev.(Reset); ok {
		report := d.state.LastReport()
		d.logger.Info("scene regenerated",
			logging.Float64("requested_count", reset.Count),
			logging.Bool("random", reset.Random),
			logging.Int("placed", report.Placed),
			logging.Int("dropped", report.Dropped),
			logging.Int("attempts", report.Attempts),
			logging.Uint64("scene_version", d.state.SceneVersion()),
		)
	}
	if !emitted {
		return
	}
	d.monitor.Observe(frame.Result, elapsed)
	d.frames.Add(1)
	if d.sink != nil {
		d.sink.Publish(frame)
	}
}

func (d *Driver) publishState() {
	d.scene.Store(d.state.Scene())
	d.mode.Store(int32(d.state.Mode()))
	d.version.Store(d.state.SceneVersion())
}
