package cache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payload is a few bytes that sniff as an untagged MP3 stream.
var payload = append([]byte{0xff, 0xfb, 0x90, 0x00}, bytes.Repeat([]byte{0x55}, 4096)...)

// fakeProvider fails the first `fail` calls, then returns url.
type fakeProvider struct {
	url   string
	fail  int
	calls atomic.Int32
}

func (p *fakeProvider) StreamURL(context.Context, string) (string, error) {
	n := int(p.calls.Add(1))
	if n <= p.fail {
		return "", errors.New("upstream unavailable")
	}
	return p.url, nil
}

func audioServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestCache(t *testing.T, p *fakeProvider, opts Options) (*Cache, *sleepRecorder) {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	c, err := New(p, opts, zerolog.Nop())
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func TestLocalPath_Hit(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newTestCache(t, p, Options{})
	existing := filepath.Join(c.dir, "t1.mp3")
	require.NoError(t, os.WriteFile(existing, payload, 0o600))

	got, err := c.LocalPath(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, 1, c.InUse("t1"))
}

func TestLocalPath_RetriesWithBackoff(t *testing.T) {
	srv := audioServer(t, nil)
	p := &fakeProvider{url: srv.URL, fail: 3}
	c, rec := newTestCache(t, p, Options{})

	got, err := c.LocalPath(context.Background(), "t1")
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, ".mp3", filepath.Ext(got))

	// a fresh URL is requested on every attempt
	assert.Equal(t, int32(4), p.calls.Load())
	require.Len(t, rec.delays, 3)
	for i, d := range rec.delays {
		attempt := i + 2
		assert.GreaterOrEqual(t, d, time.Duration(1<<(attempt-1))*time.Second)
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
}

func TestLocalPath_DownloadFailure(t *testing.T) {
	p := &fakeProvider{fail: 1 << 30}
	c, rec := newTestCache(t, p, Options{})

	_, err := c.LocalPath(context.Background(), "t1")

	var failure *DownloadFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, DefaultMaxAttempts, failure.Attempts)
	assert.Equal(t, int32(DefaultMaxAttempts), p.calls.Load())
	assert.Len(t, rec.delays, DefaultMaxAttempts-1)

	var transient *TransientDownloadError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, DefaultMaxAttempts, transient.Attempt)

	entries, err := os.ReadDir(c.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial files may remain")
}

func TestLocalPath_RejectsErrorPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte("<html>expired</html>"))
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	p := &fakeProvider{url: srv.URL}
	c, rec := newTestCache(t, p, Options{MaxAttempts: 3})

	got, err := c.LocalPath(context.Background(), "t1")
	require.NoError(t, err)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Len(t, rec.delays, 1)
}

func TestLocalPath_HTTPStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := newTestCache(t, &fakeProvider{url: srv.URL}, Options{MaxAttempts: 2})

	_, err := c.LocalPath(context.Background(), "t1")
	var failure *DownloadFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 2, failure.Attempts)
}

func TestLocalPath_CanceledDuringBackoff(t *testing.T) {
	p := &fakeProvider{fail: 1 << 30}
	c, _ := newTestCache(t, p, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := c.LocalPath(ctx, "t1")
	assert.ErrorIs(t, err, context.Canceled)
	var failure *DownloadFailure
	assert.False(t, errors.As(err, &failure))
}

func TestLocalPath_ConcurrentCallersShareDownload(t *testing.T) {
	var hits atomic.Int32
	srv := audioServer(t, &hits)
	c, _ := newTestCache(t, &fakeProvider{url: srv.URL}, Options{})

	var wg sync.WaitGroup
	paths := make([]string, 2)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.LocalPath(context.Background(), "t1")
			assert.NoError(t, err)
			paths[i] = p
		}()
	}
	wg.Wait()

	assert.Equal(t, paths[0], paths[1])
	assert.Equal(t, int32(1), hits.Load())
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, 2, c.InUse("t1"))
}

func TestLocalPath_FileURL(t *testing.T) {
	src := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(src, payload, 0o600))
	c, _ := newTestCache(t, &fakeProvider{url: "file://" + src}, Options{})

	got, err := c.LocalPath(context.Background(), "local/1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.dir, "local%2F1.mp3"), got)
}

func TestRelease_RefCounted(t *testing.T) {
	srv := audioServer(t, nil)
	c, _ := newTestCache(t, &fakeProvider{url: srv.URL}, Options{})
	ctx := context.Background()

	p1, err := c.LocalPath(ctx, "t1")
	require.NoError(t, err)
	_, err = c.LocalPath(ctx, "t1")
	require.NoError(t, err)

	c.Release("t1")
	assert.FileExists(t, p1)

	c.Release("t1")
	assert.NoFileExists(t, p1)
	assert.Equal(t, 0, c.InUse("t1"))

	// releasing an unknown track is harmless
	c.Release("unknown")
}

func TestSweep(t *testing.T) {
	mock := clock.NewMock()
	now := time.Now()
	mock.Set(now)

	srv := audioServer(t, nil)
	c, _ := newTestCache(t, &fakeProvider{url: srv.URL}, Options{Clock: mock, MaxAge: 2 * time.Hour})

	held, err := c.LocalPath(context.Background(), "held")
	require.NoError(t, err)

	old := now.Add(-3 * time.Hour)
	stale := filepath.Join(c.dir, "stale.mp3")
	part := filepath.Join(c.dir, "x.1234.part")
	fresh := filepath.Join(c.dir, "fresh.mp3")
	for _, p := range []string{stale, part, fresh} {
		require.NoError(t, os.WriteFile(p, payload, 0o600))
	}
	for _, p := range []string{stale, part, held} {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	res, err := c.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, int64(2*len(payload)), res.Freed)

	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, part)
	assert.FileExists(t, fresh)
	assert.FileExists(t, held, "files in use survive the sweep")

	files, size, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 2, files)
	assert.Equal(t, int64(2*len(payload)), size)
}

func TestRun_SweepsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	now := time.Now()
	mock.Set(now)
	c, _ := newTestCache(t, &fakeProvider{}, Options{Clock: mock, MaxAge: time.Hour, SweepInterval: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	p := filepath.Join(c.dir, "t.mp3")
	require.NoError(t, os.WriteFile(p, payload, 0o600))
	require.NoError(t, os.Chtimes(p, now, now))

	// the file ages past max age, the next tick removes it
	assert.Eventually(t, func() bool {
		mock.Add(time.Hour)
		return func() bool {
			_, err := os.Stat(p)
			return os.IsNotExist(err)
		}()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
