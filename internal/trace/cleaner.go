package trace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"sdfmarch/tracer/internal/logging"
)

// RetentionPolicy defines how many trace sessions are retained on disk.
type RetentionPolicy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// StorageStats summarises the disk footprint of persisted sessions.
type StorageStats struct {
	Sessions  int
	Bytes     int64
	Removed   int
	LastSweep time.Time
}

// Cleaner periodically prunes session directories according to a retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	// protect reports directories the cleaner must never remove, such as the live session.
	protect func(path string) bool
	stats   StorageStats
}

// NewCleaner constructs a cleaner for the provided trace root.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Protect registers a predicate for directories that must survive every sweep.
func (c *Cleaner) Protect(fn func(path string) bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protect = fn
	c.mu.Unlock()
}

// Run executes retention sweeps until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type session struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("trace retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	c.mu.RLock()
	protect := c.protect
	removed := c.stats.Removed
	c.mu.RUnlock()

	sessions := c.collect(entries)
	now := c.now()
	kept := 0
	stats := StorageStats{LastSweep: now, Removed: removed}
	for _, s := range sessions {
		protected := protect != nil && protect(s.path)
		if drop, reasons := c.shouldRemove(s, now, kept); drop && !protected {
			if err := os.RemoveAll(s.path); err != nil {
				c.log.Warn("trace retention removal failed", logging.Error(err), logging.String("session", s.name))
			} else {
				c.log.Info("trace retention removed session", logging.String("session", s.name), logging.String("reason", reasons))
				stats.Removed++
				continue
			}
		}
		kept++
		stats.Sessions++
		stats.Bytes += s.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// collect lists session directories newest first. Loose files are ignored.
func (c *Cleaner) collect(entries []os.DirEntry) []session {
	sessions := make([]session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, manifestFile)); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.log.Warn("trace retention stat failed", logging.Error(err), logging.String("path", path))
			continue
		}
		size, modTime, err := directoryUsage(path)
		if err != nil {
			c.log.Warn("trace retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		if info.ModTime().After(modTime) {
			modTime = info.ModTime()
		}
		sessions = append(sessions, session{name: entry.Name(), path: path, size: size, modTime: modTime})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].modTime.After(sessions[j].modTime) })
	return sessions
}

func (c *Cleaner) shouldRemove(s session, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(s.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSessions > 0 && kept >= c.policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", c.policy.MaxSessions))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

// directoryUsage returns the total file size and latest modification time under root.
func directoryUsage(root string) (int64, time.Time, error) {
	var total int64
	var latest time.Time
	walkErr := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return total, latest, walkErr
}
