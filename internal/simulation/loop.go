package simulation

import (
	"context"
	"sync"
	"time"
)

// FrameFunc runs once per scheduled frame with the wall time since the previous frame.
type FrameFunc func(elapsed time.Duration)

// Loop schedules frames at a fixed target rate, standing in for a display
// refresh callback. A frame is never started while the previous one is still
// running; frames missed while a callback overran are skipped, not replayed.
type Loop struct {
	interval time.Duration
	frame    FrameFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop configures a loop that targets the provided frames per second.
func NewLoop(targetHz float64, frame FrameFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if frame == nil {
		frame = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{interval: interval, frame: frame}
}

// Start begins scheduling frames until the context is cancelled or Stop is
// invoked. Calling Start on a running loop has no effect.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Hand the callback the real elapsed time so overruns stay visible.
			elapsed := now.Sub(last)
			last = now
			l.frame(elapsed)
		}
	}
}

// Stop cancels the loop and waits for the scheduling goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Interval exposes the configured frame period.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
