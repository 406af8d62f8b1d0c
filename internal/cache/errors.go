package cache

import "fmt"

// TransientDownloadError is a failed download attempt that may succeed
// when retried with a fresh stream URL.
type TransientDownloadError struct {
	TrackID string
	Attempt int
	Err     error
}

func (e *TransientDownloadError) Error() string {
	return fmt.Sprintf("download %s (attempt %d): %v", e.TrackID, e.Attempt, e.Err)
}

func (e *TransientDownloadError) Unwrap() error { return e.Err }

// DownloadFailure is returned once every attempt for a track has failed.
// It wraps the last TransientDownloadError.
type DownloadFailure struct {
	TrackID  string
	Attempts int
	Err      error
}

func (e *DownloadFailure) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.TrackID, e.Attempts, e.Err)
}

func (e *DownloadFailure) Unwrap() error { return e.Err }
