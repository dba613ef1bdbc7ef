package trace

import (
	"context"
	"testing"
	"time"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/logging"
)

func TestRecorderPersistsFramesAndCommands(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "rec", nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	recorder, err := NewRecorder(writer, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	frames := make(chan driver.Frame, 4)
	frames <- driver.Frame{Seq: 1, SceneVersion: 1, Angle: 0.5}
	frames <- driver.Frame{Seq: 2, SceneVersion: 1, Angle: 0.6}
	close(frames)

	recorder.ObserveCommand(driver.Command{Type: driver.CommandToggle})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := recorder.Run(ctx, frames); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bundle, err := Open(writer.Directory())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(bundle.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(bundle.Frames))
	}
	wire, err := driver.DecodeFrame(bundle.Frames[1].Payload)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if wire.Seq != 2 || wire.Angle != 0.6 {
		t.Fatalf("unexpected decoded frame %+v", wire)
	}
	if len(bundle.Commands) != 1 || bundle.Commands[0].Type != driver.CommandToggle {
		t.Fatalf("unexpected commands %+v", bundle.Commands)
	}
	if recorder.Errors() != 0 {
		t.Fatalf("expected no write errors, got %d", recorder.Errors())
	}
}

func TestRecorderCountsWriteErrors(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "closed", nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	recorder, err := NewRecorder(writer, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	recorder.ObserveCommand(driver.Command{Type: driver.CommandToggle})
	recorder.record(driver.Frame{Seq: 1})
	if recorder.Errors() != 2 {
		t.Fatalf("expected 2 errors, got %d", recorder.Errors())
	}
	if _, err := NewRecorder(nil, nil); err == nil {
		t.Fatal("expected nil writer to fail")
	}
}
