package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Cache.Load when no usable cached schedule
// exists: missing file, undecodable payload, or a decode that yields no
// schedule. Callers recover by fetching.
var ErrCacheMiss = errors.New("schedule: cache miss")

// Cache persists the last-fetched schedule as a single JSON blob alongside
// the calendar date it was fetched on. One file, replaced atomically.
type Cache struct {
	path string
	log  *zap.Logger
}

type cacheFile struct {
	LastFetchDate string         `json:"last_fetch_date"` // "YYYY-MM-DD"
	Schedule      *DailySchedule `json:"schedule"`
}

// NewCache creates a Cache at the given file path.
func NewCache(path string, log *zap.Logger) *Cache {
	return &Cache{path: path, log: log}
}

// Load returns the cached schedule and the date it was fetched on.
// A corrupt cache is deleted and reported as a miss, never propagated as a
// fatal error.
func (c *Cache) Load() (*DailySchedule, string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrCacheMiss
		}
		return nil, "", fmt.Errorf("read schedule cache: %w", err)
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.Schedule == nil {
		c.log.Warn("schedule cache undecodable, discarding",
			zap.String("path", c.path), zap.Error(err))
		c.Clear()
		return nil, "", ErrCacheMiss
	}
	return cf.Schedule, cf.LastFetchDate, nil
}

// FreshFor reports whether the cached schedule was fetched on the given
// calendar date ("YYYY-MM-DD").
func (c *Cache) FreshFor(date string) bool {
	_, fetched, err := c.Load()
	return err == nil && fetched == date
}

// Save writes the schedule and its fetch date, replacing any previous cache.
// The write goes through a temp file and rename so a crash mid-write leaves
// either the old cache or the new one, never a torn file.
func (c *Cache) Save(s *DailySchedule, fetchDate string) error {
	data, err := json.Marshal(cacheFile{LastFetchDate: fetchDate, Schedule: s})
	if err != nil {
		return fmt.Errorf("encode schedule cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schedule-*.json")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("install schedule cache: %w", err)
	}
	return nil
}

// Clear removes the cache file if present.
func (c *Cache) Clear() {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove schedule cache", zap.Error(err))
	}
}
