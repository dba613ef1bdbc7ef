package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopSchedulesFrames(t *testing.T) {
	var frames int32
	loop := NewLoop(120, func(time.Duration) {
		atomic.AddInt32(&frames, 1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	loop.Stop()
	if atomic.LoadInt32(&frames) == 0 {
		t.Fatalf("expected loop to schedule at least one frame")
	}
	//1.- No further frames may run once Stop has returned.
	after := atomic.LoadInt32(&frames)
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&frames); got != after {
		t.Fatalf("expected frames to stop at %d, got %d", after, got)
	}
}

func TestLoopNeverOverlapsFrames(t *testing.T) {
	var running, overlaps int32
	loop := NewLoop(500, func(time.Duration) {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	})
	loop.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	loop.Stop()
	if atomic.LoadInt32(&overlaps) != 0 {
		t.Fatalf("expected frames to run one at a time")
	}
}

func TestLoopInterval(t *testing.T) {
	loop := NewLoop(120, nil)
	if loop.Interval() != time.Second/120 {
		t.Fatalf("unexpected interval %v", loop.Interval())
	}
	if NewLoop(0, nil).Interval() != time.Second/60 {
		t.Fatal("expected non-positive rate to fall back to 60 Hz")
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	loop := NewLoop(200, nil)
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	cancel()
	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Stop to return after cancellation")
	}
}
