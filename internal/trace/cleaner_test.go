package trace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"sdfmarch/tracer/internal/logging"
)

func writeSession(t *testing.T, root, name string, modTime time.Time, size int) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string][]byte{
		manifestFile: []byte("{}"),
		framesFile:   []byte(strings.Repeat("f", size)),
	}
	for file, data := range files {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.Chtimes(dir, modTime, modTime); err != nil {
		t.Fatalf("chtimes dir: %v", err)
	}
	return dir
}

func listSessions(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestCleanerEnforcesMaxSessions(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	writeSession(t, tmp, "alpha", now.Add(-3*time.Hour), 64)
	writeSession(t, tmp, "bravo", now.Add(-2*time.Hour), 32)
	writeSession(t, tmp, "charlie", now.Add(-time.Hour), 48)
	if err := os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write loose file: %v", err)
	}

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxSessions: 2}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.RunOnce()

	remaining := listSessions(t, tmp)
	expected := []string{"bravo", "charlie", "notes.txt"}
	if strings.Join(remaining, ",") != strings.Join(expected, ",") {
		t.Fatalf("unexpected retained sessions: %v", remaining)
	}
	stats := cleaner.Stats()
	if stats.Sessions != 2 || stats.Removed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Bytes != int64(48+32+2+2) {
		t.Fatalf("expected byte total 84, got %d", stats.Bytes)
	}
	if stats.LastSweep.IsZero() {
		t.Fatal("expected last sweep timestamp to be recorded")
	}
}

func TestCleanerPrunesByAgeAndSkipsProtected(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2026, 7, 16, 9, 0, 0, 0, time.UTC)
	writeSession(t, tmp, "delta", now.Add(-48*time.Hour), 16)
	live := writeSession(t, tmp, "echo", now.Add(-72*time.Hour), 8)
	writeSession(t, tmp, "foxtrot", now.Add(-time.Hour), 4)

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxAge: 36 * time.Hour}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.Protect(func(path string) bool { return path == live })
	cleaner.RunOnce()

	remaining := listSessions(t, tmp)
	if strings.Join(remaining, ",") != "echo,foxtrot" {
		t.Fatalf("unexpected retained sessions: %v", remaining)
	}
	if stats := cleaner.Stats(); stats.Sessions != 2 || stats.Removed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCleanerIgnoresMissingDirectory(t *testing.T) {
	cleaner := NewCleaner(filepath.Join(t.TempDir(), "missing"), RetentionPolicy{MaxSessions: 1}, logging.NewTestLogger())
	cleaner.RunOnce()
	if !cleaner.Stats().LastSweep.IsZero() {
		t.Fatal("expected failed scan to leave stats untouched")
	}
}
