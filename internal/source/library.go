package source

import (
	"context"
	"fmt"

	"github.com/llehouerou/wavebot/internal/library"
)

// Tracks looks up stored track metadata.
type Tracks interface {
	TrackByID(ctx context.Context, id string) (*library.Track, error)
}

// Library serves the file:// URLs of tracks scanned from local directories.
type Library struct {
	tracks Tracks
}

// NewLibrary creates a provider over the track repository.
func NewLibrary(tracks Tracks) *Library {
	return &Library{tracks: tracks}
}

func (l *Library) StreamURL(ctx context.Context, trackID string) (string, error) {
	t, err := l.tracks.TrackByID(ctx, trackID)
	if err != nil {
		return "", err
	}
	if !IsFileURL(t.URL) {
		return "", fmt.Errorf("%w: %s is not a local track", ErrNoStream, trackID)
	}
	return t.URL, nil
}
