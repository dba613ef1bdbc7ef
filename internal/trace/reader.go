package trace

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// CommandRecord is one line of the command log.
type CommandRecord struct {
	Seq        uint64          `json:"seq"`
	CapturedAt time.Time       `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// FrameRecord is one length-prefixed frame read back from the frame stream.
type FrameRecord struct {
	Seq          uint64
	SceneVersion uint64
	CapturedAt   time.Time
	Payload      []byte
}

// Bundle is a fully loaded session.
type Bundle struct {
	Directory string
	Manifest  Manifest
	// Header is nil when the session was not closed cleanly.
	Header   *Header
	Commands []CommandRecord
	Frames   []FrameRecord
}

// Open loads a session from its directory or manifest path.
func Open(path string) (*Bundle, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	manifestPath := path
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		manifestPath = filepath.Join(path, manifestFile)
	}
	dir := filepath.Dir(manifestPath)

	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	if manifest.ID != "" {
		if err := ValidateSessionID(manifest.ID); err != nil {
			return nil, err
		}
	}

	bundle := &Bundle{Directory: dir, Manifest: manifest}
	header, err := ReadHeader(filepath.Join(dir, headerFile))
	switch {
	case err == nil:
		bundle.Header = &header
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read header: %w", err)
	}

	if bundle.Commands, err = ReadCommands(filepath.Join(dir, manifest.CommandsPath)); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	if bundle.Frames, err = ReadFrames(filepath.Join(dir, manifest.FramesPath)); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return bundle, nil
}

// ReadCommands decodes the snappy-compressed command log.
func ReadCommands(path string) ([]CommandRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []CommandRecord
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record CommandRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadFrames decodes the zstd-compressed frame stream.
func ReadFrames(path string) ([]FrameRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var frames []FrameRecord
	offset := 0
	for offset+frameHeaderSize <= len(payload) {
		seq := binary.LittleEndian.Uint64(payload[offset : offset+8])
		version := binary.LittleEndian.Uint64(payload[offset+8 : offset+16])
		captured := int64(binary.LittleEndian.Uint64(payload[offset+16 : offset+24]))
		size := int(binary.LittleEndian.Uint32(payload[offset+24 : offset+28]))
		offset += frameHeaderSize
		if offset+size > len(payload) {
			return nil, fmt.Errorf("frame %d payload truncated", seq)
		}
		frames = append(frames, FrameRecord{
			Seq:          seq,
			SceneVersion: version,
			CapturedAt:   time.Unix(0, captured).UTC(),
			Payload:      append([]byte(nil), payload[offset:offset+size]...),
		})
		offset += size
	}
	if offset != len(payload) {
		return nil, fmt.Errorf("trailing %d bytes after last frame", len(payload)-offset)
	}
	return frames, nil
}
