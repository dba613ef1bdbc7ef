package trace

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"go.jetify.com/typeid/v2"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	frameInterval = 200 * time.Millisecond
	// frameHeaderSize is seq, scene version, capture time and payload length.
	frameHeaderSize = 8 + 8 + 8 + 4

	// ManifestVersion is the layout version written to manifest.json.
	ManifestVersion = 1
	// SessionIDPrefix tags session identifiers so tooling can tell them apart.
	SessionIDPrefix = "trace"
	commandsFile    = "commands.jsonl.sz"
	framesFile      = "frames.bin.zst"
	manifestFile    = "manifest.json"
	headerFile      = "header.json"
)

// frameBlob stores frame metadata before it is persisted to disk.
type frameBlob struct {
	Seq          uint64
	SceneVersion uint64
	CapturedAt   time.Time
	Payload      []byte
}

// Stats summarises writer activity for monitoring endpoints.
type Stats struct {
	Frames        uint64
	Commands      uint64
	PendingFrames int
	FrameBytes    int64
}

// Writer streams march frames and client commands into a session directory.
type Writer struct {
	mu            sync.Mutex
	dir           string
	now           func() time.Time
	commandFile   *os.File
	commandStream *snappy.Writer
	frameFile     *os.File
	frameStream   *zstd.Encoder
	pending       []frameBlob
	lastFlush     time.Time
	header        Header
	stats         Stats
	closed        bool
}

// Manifest describes the session layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	ID              string `json:"id,omitempty"`
	Session         string `json:"session"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	CommandsPath    string `json:"commands_path"`
	FramesPath      string `json:"frames_path"`
}

// NewWriter prepares a session directory under root and opens compressed sinks.
func NewWriter(root, session string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("trace root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := sessionCleaner.ReplaceAllString(session, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	commandFile, err := os.Create(filepath.Join(path, commandsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	commandStream := snappy.NewBufferedWriter(commandFile)

	frameFile, err := os.Create(filepath.Join(path, framesFile))
	if err != nil {
		commandFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		commandStream.Close()
		commandFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         ManifestVersion,
		ID:              typeid.MustGenerate(SessionIDPrefix).String(),
		Session:         cleaned,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		CommandsPath:    commandsFile,
		FramesPath:      framesFile,
	}
	closeAll := func() {
		frameStream.Close()
		frameFile.Close()
		commandStream.Close()
		commandFile.Close()
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		closeAll()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, manifestFile), data, 0o644); err != nil {
		closeAll()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:           path,
		now:           clock,
		commandFile:   commandFile,
		commandStream: commandStream,
		frameFile:     frameFile,
		frameStream:   frameStream,
		header:        Header{SchemaVersion: HeaderSchemaVersion, FilePointer: manifestFile},
	}
	return writer, manifest, nil
}

// ValidateSessionID checks that id is a well-formed session identifier.
func ValidateSessionID(id string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", id, err)
	}
	if parsed.Prefix() != SessionIDPrefix {
		return fmt.Errorf("session id %q has prefix %q, want %q", id, parsed.Prefix(), SessionIDPrefix)
	}
	return nil
}

// Directory exposes the directory backing the session.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendCommand writes one JSON command line to the compressed command log.
func (w *Writer) AppendCommand(commandType string, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("command payload must be valid JSON")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	record := CommandRecord{
		Seq:        w.stats.Commands + 1,
		CapturedAt: captured,
		Type:       commandType,
		Payload:    append(json.RawMessage(nil), payload...),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.commandStream.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := w.commandStream.Flush(); err != nil {
		return err
	}
	w.stats.Commands++
	return nil
}

// AppendFrame buffers an encoded frame until the 5 Hz flush cadence is reached.
func (w *Writer) AppendFrame(seq, sceneVersion uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	//1.- Stage the frame so cadence enforcement can persist batches together.
	w.pending = append(w.pending, frameBlob{Seq: seq, SceneVersion: sceneVersion, CapturedAt: captured, Payload: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= frameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// SetHeaderMetadata records the generator seed and viewport written on Close.
func (w *Writer) SetHeaderMetadata(seed uint64, viewport Viewport) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.header.Seed = seed
	w.header.Viewport = viewport
	w.mu.Unlock()
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() Stats {
	if w == nil {
		return Stats{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := w.stats
	stats.PendingFrames = len(w.pending)
	return stats
}

// Flush forces pending frames to be written regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close writes the header, flushes every buffer and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	header := w.header
	header.Frames = w.stats.Frames + uint64(len(w.pending))
	header.Commands = w.stats.Commands
	if err := WriteHeader(filepath.Join(w.dir, headerFile), header); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.commandStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.commandFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers must hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	header := make([]byte, frameHeaderSize)
	for _, frame := range w.pending {
		binary.LittleEndian.PutUint64(header[0:8], frame.Seq)
		binary.LittleEndian.PutUint64(header[8:16], frame.SceneVersion)
		binary.LittleEndian.PutUint64(header[16:24], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[24:28], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
		w.stats.Frames++
		w.stats.FrameBytes += int64(len(frame.Payload))
	}
	w.pending = w.pending[:0]
	return nil
}
