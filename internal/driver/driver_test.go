package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/logging"
	"sdfmarch/tracer/internal/simulation"
)

func startDriver(t *testing.T, state *State, opts ...Option) (*Driver, chan Frame, context.CancelFunc) {
	t.Helper()
	frames := make(chan Frame, 32)
	opts = append([]Option{
		WithSink(SinkFunc(func(frame Frame) { frames <- frame })),
		WithLogger(logging.NewTestLogger()),
	}, opts...)
	d, err := New(state, opts...)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, frames, cancel
}

func receiveFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case frame := <-frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestDriverPublishesTickFrames(t *testing.T) {
	monitor := simulation.NewMarchMonitor()
	d, frames, _ := startDriver(t, newTestState(t, nil), WithMonitor(monitor))
	d.Tick(0)
	frame := receiveFrame(t, frames)
	if frame.Seq != 1 || !frame.Result.Hit() {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if snap := monitor.Snapshot(); snap.Marches != 1 || snap.Hits != 1 {
		t.Fatalf("expected monitor to observe the march, got %+v", snap)
	}
	if stats := d.Stats(); stats.Ticks != 1 || stats.Frames != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDriverCoalescesPendingTicks(t *testing.T) {
	d, err := New(newTestState(t, nil), WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	//1.- Without a running consumer the second tick finds one already pending.
	d.Tick(0)
	d.Tick(0)
	d.Tick(0)
	if len(d.events) != 1 {
		t.Fatalf("expected one queued tick, got %d", len(d.events))
	}
	if stats := d.Stats(); stats.DroppedTicks != 2 {
		t.Fatalf("expected 2 dropped ticks, got %d", stats.DroppedTicks)
	}
}

func TestDriverCommandsUpdateSceneAndMode(t *testing.T) {
	var observed []Command
	d, frames, _ := startDriver(t, newTestState(t, nil), WithCommandObserver(func(cmd Command) {
		observed = append(observed, cmd)
	}))
	ctx := context.Background()
	if err := d.SubmitCommand(ctx, Command{Type: CommandToggle}); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if frame := receiveFrame(t, frames); frame.Mode != ModePaused {
		t.Fatalf("expected paused frame, got %s", frame.Mode)
	}
	if err := d.SubmitCommand(ctx, ResetCommand(2)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	frame := receiveFrame(t, frames)
	if frame.SceneVersion != 2 || len(frame.Shapes) != 2 {
		t.Fatalf("expected regenerated scene in frame, got version %d with %d shapes", frame.SceneVersion, len(frame.Shapes))
	}
	if d.Scene().Len() != 2 || d.Stats().Mode != ModePaused {
		t.Fatalf("expected published scene and mode, got %d shapes mode %s", d.Scene().Len(), d.Stats().Mode)
	}
	if err := d.SubmitCommand(ctx, Command{Type: "explode"}); err == nil {
		t.Fatal("expected unknown command to fail")
	}
	if len(observed) != 2 {
		t.Fatalf("expected two observed commands, got %d", len(observed))
	}
}

func TestDriverRejectsResetsAboveShapeLimit(t *testing.T) {
	var observed int
	d, _, _ := startDriver(t, newTestState(t, func(opts *Options) { opts.MaxShapes = 20 }), WithCommandObserver(func(Command) {
		observed++
	}))
	ctx := context.Background()
	if err := d.SubmitCommand(ctx, ResetCommand(21)); !errors.Is(err, ErrTooManyShapes) {
		t.Fatalf("expected ErrTooManyShapes, got %v", err)
	}
	if err := d.Submit(ctx, Reset{Count: 1e12}); !errors.Is(err, ErrTooManyShapes) {
		t.Fatalf("expected ErrTooManyShapes from Submit, got %v", err)
	}
	if err := d.Submit(ctx, Reset{Random: true}); err != nil {
		t.Fatalf("expected random reset to pass, got %v", err)
	}
	if observed != 0 {
		t.Fatalf("expected rejected command to skip the observer, got %d", observed)
	}
	if d.MaxShapes() != 20 {
		t.Fatalf("expected limit 20, got %d", d.MaxShapes())
	}
}

func TestDriverPausedPointerFollows(t *testing.T) {
	d, frames, _ := startDriver(t, newTestState(t, func(opts *Options) { opts.StartPaused = true }))
	if err := d.Submit(context.Background(), PointerMoved{Target: geometry.Pt(740, 360)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if frame := receiveFrame(t, frames); !frame.Result.Hit() {
		t.Fatalf("expected hit toward pointer, got %s", frame.Result.Termination)
	}
	d.Tick(0)
	select {
	case frame := <-frames:
		t.Fatalf("expected paused tick to stay silent, got frame %d", frame.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDriverSubmitAfterStop(t *testing.T) {
	d, err := New(newTestState(t, nil), WithLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := d.Submit(context.Background(), Toggle{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestNewDriverRequiresState(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil state")
	}
}
