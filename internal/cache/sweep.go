package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Removed int
	Freed   int64
}

// Sweep deletes cached files older than the max age, along with leftover
// temp files from interrupted downloads. Files still referenced are kept.
func (c *Cache) Sweep() (SweepResult, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return SweepResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res SweepResult
	now := c.clock.Now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= c.maxAge {
			continue
		}
		if !strings.HasSuffix(e.Name(), partSuffix) && c.refs[trackIDFromName(e.Name())] > 0 {
			continue
		}

		p := filepath.Join(c.dir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Str("path", p).Msg("sweep remove")
			continue
		}
		res.Removed++
		res.Freed += info.Size()
	}

	if res.Removed > 0 {
		c.log.Info().Int("removed", res.Removed).Str("freed", humanize.Bytes(uint64(res.Freed))).Msg("cache sweep")
	}
	return res, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := c.clock.Ticker(c.sweepInterval)
	defer ticker.Stop()

	for {
		if _, err := c.Sweep(); err != nil {
			c.log.Error().Err(err).Msg("cache sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Usage returns the number of cached files and their total size.
func (c *Cache) Usage() (files int, size int64, err error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), partSuffix) {
			continue
		}
		if info, err := e.Info(); err == nil {
			files++
			size += info.Size()
		}
	}
	return files, size, nil
}
