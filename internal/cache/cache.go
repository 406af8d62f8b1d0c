// Package cache downloads tracks into a directory shared by every channel
// and hands out local paths for playback.
//
// Files are written to a unique temporary name and renamed into place, so
// readers only ever see complete files. Concurrent misses for one track
// share a single download, and a reference count keeps a file alive while
// any channel still plays it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/llehouerou/wavebot/internal/source"
	"github.com/llehouerou/wavebot/internal/tags"
)

const (
	DefaultMaxAttempts   = 10
	DefaultMaxAge        = 2 * time.Hour
	DefaultSweepInterval = time.Hour

	partSuffix = ".part"
)

// extensions a cached file may have, in lookup order.
var extensions = []string{tags.ExtMP3, tags.ExtFLAC}

// Options configures a Cache. Zero values take the defaults.
type Options struct {
	Dir           string
	MaxAttempts   int
	MaxAge        time.Duration
	SweepInterval time.Duration
	HTTPClient    *http.Client
	Clock         clock.Clock
}

// Cache keeps downloaded tracks on disk, shared by every channel.
type Cache struct {
	dir           string
	provider      source.Provider
	httpClient    *http.Client
	maxAttempts   int
	maxAge        time.Duration
	sweepInterval time.Duration
	clock         clock.Clock
	log           zerolog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group

	mu   sync.Mutex // guards refs and file creation/removal
	refs map[string]int
}

// New creates a cache over opts.Dir, creating the directory if needed.
func New(provider source.Provider, opts Options, log zerolog.Logger) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		dir:           opts.Dir,
		provider:      provider,
		httpClient:    opts.HTTPClient,
		maxAttempts:   opts.MaxAttempts,
		maxAge:        opts.MaxAge,
		sweepInterval: opts.SweepInterval,
		clock:         opts.Clock,
		log:           log.With().Str("component", "cache").Logger(),
		refs:          make(map[string]int),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	c.sleep = c.clockSleep
	return c, nil
}

// LocalPath returns a local file for a track, downloading it on a miss.
// Every successful call takes a reference that Release gives back.
func (c *Cache) LocalPath(ctx context.Context, trackID string) (string, error) {
	if p, ok := c.acquireExisting(trackID); ok {
		c.log.Debug().Str("track", trackID).Msg("cache hit")
		return p, nil
	}

	for {
		_, err, shared := c.group.Do(trackID, func() (any, error) {
			if p, ok := c.lookup(trackID); ok {
				return p, nil
			}
			return c.download(ctx, trackID)
		})
		if err != nil {
			return "", err
		}

		// Another channel may have released the fresh file before this
		// caller took its reference; download again in that case.
		if p, ok := c.acquireExisting(trackID); ok {
			c.log.Debug().Str("track", trackID).Bool("shared", shared).Msg("cache miss resolved")
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

// Release drops a reference taken by LocalPath. The file is deleted when
// no channel holds it anymore.
func (c *Cache) Release(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.refs[trackID]; n > 1 {
		c.refs[trackID] = n - 1
		return
	}
	delete(c.refs, trackID)

	for _, ext := range extensions {
		p := c.pathFor(trackID, ext)
		if err := os.Remove(p); err == nil {
			c.log.Debug().Str("track", trackID).Msg("released cached file")
		} else if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Str("path", p).Msg("remove cached file")
		}
	}
}

// InUse returns the number of references held on a track.
func (c *Cache) InUse(trackID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[trackID]
}

func (c *Cache) acquireExisting(trackID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.lookup(trackID)
	if ok {
		c.refs[trackID]++
	}
	return p, ok
}

func (c *Cache) lookup(trackID string) (string, bool) {
	for _, ext := range extensions {
		p := c.pathFor(trackID, ext)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func (c *Cache) pathFor(trackID, ext string) string {
	return filepath.Join(c.dir, url.PathEscape(trackID)+ext)
}

// trackIDFromName reverses pathFor for sweep bookkeeping.
func trackIDFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if id, err := url.PathUnescape(base); err == nil {
		return id
	}
	return base
}

func (c *Cache) download(ctx context.Context, trackID string) (string, error) {
	var lastErr error
	for attempt := range c.maxAttempts {
		if attempt > 0 {
			delay := time.Duration(1<<attempt) * time.Second
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		path, err := c.fetch(ctx, trackID, attempt+1)
		if err == nil {
			return path, nil
		}
		var terr *TransientDownloadError
		if !errors.As(err, &terr) {
			return "", err
		}
		lastErr = err
		c.log.Warn().Err(err).Str("track", trackID).Int("attempt", attempt+1).Msg("download attempt failed")
	}

	return "", &DownloadFailure{TrackID: trackID, Attempts: c.maxAttempts, Err: lastErr}
}

// fetch runs one attempt: fresh URL, copy into a temp file, validate, rename.
func (c *Cache) fetch(ctx context.Context, trackID string, attempt int) (string, error) {
	transient := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransientDownloadError{TrackID: trackID, Attempt: attempt, Err: err}
	}

	streamURL, err := c.provider.StreamURL(ctx, trackID)
	if err != nil {
		return "", transient(fmt.Errorf("stream url: %w", err))
	}

	tmp := filepath.Join(c.dir, url.PathEscape(trackID)+"."+uuid.NewString()+partSuffix)
	n, err := c.copyTo(ctx, streamURL, tmp)
	if err != nil {
		os.Remove(tmp)
		return "", transient(err)
	}

	kind, err := tags.Sniff(tmp)
	if err != nil {
		os.Remove(tmp)
		return "", transient(fmt.Errorf("validate: %w", err))
	}
	ext := "." + strings.ToLower(kind)
	if ext != tags.ExtMP3 && ext != tags.ExtFLAC {
		os.Remove(tmp)
		return "", transient(fmt.Errorf("unsupported format %s", kind))
	}

	final := c.pathFor(trackID, ext)
	c.mu.Lock()
	err = os.Rename(tmp, final)
	c.mu.Unlock()
	if err != nil {
		os.Remove(tmp)
		return "", transient(fmt.Errorf("rename: %w", err))
	}

	c.log.Info().Str("track", trackID).Str("size", humanize.Bytes(uint64(n))).Msg("downloaded track")
	return final, nil
}

func (c *Cache) copyTo(ctx context.Context, streamURL, dst string) (int64, error) {
	var body io.ReadCloser
	if source.IsFileURL(streamURL) {
		u, err := url.Parse(streamURL)
		if err != nil {
			return 0, err
		}
		f, err := os.Open(u.Path)
		if err != nil {
			return 0, err
		}
		body = f
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, http.NoBody)
		if err != nil {
			return 0, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("http request: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return 0, fmt.Errorf("unexpected status: %s", resp.Status)
		}
		body = resp.Body
	}
	defer body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (c *Cache) clockSleep(ctx context.Context, d time.Duration) error {
	t := c.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
