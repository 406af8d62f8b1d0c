// Package source supplies stream URLs for tracks. URLs may expire, so
// callers ask again before every download attempt.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoStream is returned when a provider cannot serve a track.
var ErrNoStream = errors.New("no stream available")

// Provider returns a fresh stream URL for a track.
type Provider interface {
	StreamURL(ctx context.Context, trackID string) (string, error)
}

// Chain asks each provider in turn and returns the first URL. Providers
// answering ErrNoStream are skipped; other errors stop the chain.
type Chain []Provider

func (c Chain) StreamURL(ctx context.Context, trackID string) (string, error) {
	for _, p := range c {
		u, err := p.StreamURL(ctx, trackID)
		if errors.Is(err, ErrNoStream) {
			continue
		}
		return u, err
	}
	return "", fmt.Errorf("%w: %s", ErrNoStream, trackID)
}

// IsFileURL reports whether u points at the local filesystem.
func IsFileURL(u string) bool {
	return strings.HasPrefix(u, "file://")
}
