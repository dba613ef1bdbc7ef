package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion tracks the schema version for session header documents.
const HeaderSchemaVersion = 1

// Viewport is the traced area recorded with a session.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Header is the metadata persisted when a session closes. It records how the
// session was generated, never the shapes themselves.
type Header struct {
	SchemaVersion int      `json:"schema_version"`
	Seed          uint64   `json:"seed"`
	Viewport      Viewport `json:"viewport"`
	Frames        uint64   `json:"frames"`
	Commands      uint64   `json:"commands"`
	FilePointer   string   `json:"file_pointer"`
}

// Validate ensures the header contains enough information for tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	if h.Viewport.Width < 0 || h.Viewport.Height < 0 {
		return fmt.Errorf("viewport must not be negative")
	}
	return nil
}

// WriteHeader persists the supplied header to path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a session header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
