// Package tracedump summarises recorded tracer sessions for offline inspection.
package tracedump

import (
	"fmt"
	"sort"
	"time"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/trace"
)

// FrameSummary is the per-frame view printed by the dump tool.
type FrameSummary struct {
	Seq           uint64    `json:"seq"`
	SceneVersion  uint64    `json:"scene_version"`
	CapturedAt    time.Time `json:"captured_at"`
	Mode          string    `json:"mode"`
	Angle         float64   `json:"angle"`
	Termination   string    `json:"termination"`
	Steps         int       `json:"steps"`
	Hit           bool      `json:"hit"`
	Nearest       int       `json:"nearest_shape"`
	TotalDistance *float64  `json:"total_distance,omitempty"`
	Samples       int       `json:"samples"`
}

// Totals aggregates march outcomes across a session.
type Totals struct {
	Frames        int            `json:"frames"`
	Commands      int            `json:"commands"`
	SceneVersions int            `json:"scene_versions"`
	Terminations  map[string]int `json:"terminations"`
	CommandTypes  map[string]int `json:"command_types"`
	AverageSteps  float64        `json:"average_steps"`
}

// Summary is the full decoded view of a session.
type Summary struct {
	Directory string                `json:"directory"`
	Manifest  trace.Manifest        `json:"manifest"`
	Header    *trace.Header         `json:"header,omitempty"`
	Commands  []trace.CommandRecord `json:"commands"`
	Frames    []FrameSummary        `json:"frames"`
	Totals    Totals                `json:"totals"`
}

// Load opens the session at path and summarises it.
func Load(path string) (Summary, error) {
	bundle, err := trace.Open(path)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(bundle)
}

// Summarize decodes every recorded frame in bundle.
func Summarize(bundle *trace.Bundle) (Summary, error) {
	if bundle == nil {
		return Summary{}, fmt.Errorf("bundle is required")
	}
	summary := Summary{
		Directory: bundle.Directory,
		Manifest:  bundle.Manifest,
		Header:    bundle.Header,
		Commands:  bundle.Commands,
		Frames:    make([]FrameSummary, 0, len(bundle.Frames)),
		Totals: Totals{
			Frames:       len(bundle.Frames),
			Commands:     len(bundle.Commands),
			Terminations: make(map[string]int),
			CommandTypes: make(map[string]int),
		},
	}
	versions := make(map[uint64]struct{})
	steps := 0
	for _, record := range bundle.Frames {
		frame, err := driver.DecodeFrame(record.Payload)
		if err != nil {
			return Summary{}, fmt.Errorf("frame %d: %w", record.Seq, err)
		}
		summary.Frames = append(summary.Frames, FrameSummary{
			Seq:           record.Seq,
			SceneVersion:  record.SceneVersion,
			CapturedAt:    record.CapturedAt,
			Mode:          frame.Mode,
			Angle:         frame.Angle,
			Termination:   frame.March.Termination,
			Steps:         frame.March.Steps,
			Hit:           frame.March.Hit,
			Nearest:       frame.Nearest,
			TotalDistance: frame.March.TotalDistance,
			Samples:       len(frame.March.Samples),
		})
		summary.Totals.Terminations[frame.March.Termination]++
		versions[record.SceneVersion] = struct{}{}
		steps += frame.March.Steps
	}
	for _, cmd := range bundle.Commands {
		summary.Totals.CommandTypes[cmd.Type]++
	}
	summary.Totals.SceneVersions = len(versions)
	if len(summary.Frames) > 0 {
		summary.Totals.AverageSteps = float64(steps) / float64(len(summary.Frames))
	}
	sort.SliceStable(summary.Frames, func(i, j int) bool { return summary.Frames[i].Seq < summary.Frames[j].Seq })
	return summary, nil
}
