package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/logging"
)

// Recorder feeds driver frames and accepted commands into a session Writer.
type Recorder struct {
	writer *Writer
	log    *logging.Logger
	errors atomic.Uint64
}

// NewRecorder wraps writer so it can be attached to a driver.
func NewRecorder(writer *Writer, logger *logging.Logger) (*Recorder, error) {
	if writer == nil {
		return nil, fmt.Errorf("trace writer must be provided")
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Recorder{writer: writer, log: logger.With(logging.String("component", "trace"))}, nil
}

// Run drains frames until ctx is cancelled or the channel closes, then
// flushes whatever is still buffered.
func (r *Recorder) Run(ctx context.Context, frames <-chan driver.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return r.writer.Flush()
		case frame, ok := <-frames:
			if !ok {
				return r.writer.Flush()
			}
			r.record(frame)
		}
	}
}

func (r *Recorder) record(frame driver.Frame) {
	payload, err := driver.EncodeFrame(frame)
	if err == nil {
		err = r.writer.AppendFrame(frame.Seq, frame.SceneVersion, payload)
	}
	if err != nil {
		if r.errors.Add(1) == 1 {
			r.log.Warn("trace frame write failed", logging.Uint64("seq", frame.Seq), logging.Error(err))
		}
	}
}

// ObserveCommand appends an accepted command to the command log. It satisfies
// driver.CommandObserver.
func (r *Recorder) ObserveCommand(cmd driver.Command) {
	payload, err := json.Marshal(cmd)
	if err == nil {
		err = r.writer.AppendCommand(cmd.Type, payload)
	}
	if err != nil {
		r.errors.Add(1)
		r.log.Warn("trace command write failed", logging.String("type", cmd.Type), logging.Error(err))
	}
}

// Errors reports how many writes failed since the recorder started.
func (r *Recorder) Errors() uint64 {
	return r.errors.Load()
}

// Writer exposes the underlying session writer.
func (r *Recorder) Writer() *Writer {
	return r.writer
}
