package library

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/llehouerou/wavebot/internal/tags"
)

const numWorkers = 8

// Scan phases.
const (
	PhaseScanning   = "scanning"
	PhaseProcessing = "processing"
	PhaseDone       = "done"
)

// ScanProgress reports the progress of a directory scan.
type ScanProgress struct {
	Phase   string
	Current int
	Total   int
}

// ScanStats holds statistics for a completed scan.
type ScanStats struct {
	Found    int
	Inserted int
	Failed   int
}

// FileURL returns the file:// URL stored for a local track.
func FileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}

// LocalTrackID derives a stable track id from a file path, so rescanning
// the same directory never creates duplicates.
func LocalTrackID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(FileURL(path))).String()
}

// Scan reads tags of every audio file under sources and ingests them as
// tracks. progress may be nil; otherwise it is closed when Scan returns.
func (l *Library) Scan(ctx context.Context, sources []string, progress chan<- ScanProgress) (ScanStats, error) {
	if progress != nil {
		defer close(progress)
	}

	report(progress, ScanProgress{Phase: PhaseScanning})
	files := discoverFiles(sources, progress)

	tracks, failed := l.processFiles(ctx, files, progress)
	if err := ctx.Err(); err != nil {
		return ScanStats{}, err
	}

	inserted, err := l.Ingest(ctx, tracks)
	if err != nil {
		return ScanStats{}, err
	}

	stats := ScanStats{Found: len(files), Inserted: inserted, Failed: failed}
	report(progress, ScanProgress{Phase: PhaseDone, Current: len(files), Total: len(files)})
	l.log.Info().Int("found", stats.Found).Int("inserted", stats.Inserted).Int("failed", stats.Failed).Msg("scan complete")
	return stats, nil
}

// processFiles reads tags in parallel and returns the tracks in discovery order.
func (l *Library) processFiles(ctx context.Context, files []string, progress chan<- ScanProgress) ([]Track, int) {
	total := len(files)
	results := make([]*Track, total)
	var processed, failed atomic.Int64

	workCh := make(chan int)
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Go(func() {
			for i := range workCh {
				path := files[i]
				info, err := tags.Read(path)
				if err != nil {
					l.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable file")
					failed.Add(1)
				} else {
					results[i] = &Track{
						ID:       LocalTrackID(path),
						Title:    info.Title,
						Artist:   info.Artist,
						Duration: info.Duration,
						URL:      FileURL(path),
					}
				}
				if n := processed.Add(1); n%50 == 0 {
					report(progress, ScanProgress{Phase: PhaseProcessing, Current: int(n), Total: total})
				}
			}
		})
	}

send:
	for i := range files {
		select {
		case workCh <- i:
		case <-ctx.Done():
			break send
		}
	}
	close(workCh)
	wg.Wait()

	tracks := make([]Track, 0, total)
	for _, t := range results {
		if t != nil {
			tracks = append(tracks, *t)
		}
	}
	return tracks, int(failed.Load())
}

func report(progress chan<- ScanProgress, p ScanProgress) {
	if progress != nil {
		progress <- p
	}
}
