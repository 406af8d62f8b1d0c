// Package library is the track repository: durable track metadata keyed by
// id, fronted by an in-memory cache since tracks never change once stored.
package library

import (
	"database/sql"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no track has the requested id.
var ErrNotFound = errors.New("track not found")

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 24 * time.Hour
)

// Track is playable metadata. URL is the stable location handed to the
// library source provider; remote catalogs resolve stream URLs elsewhere.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Duration time.Duration
	CoverURL string
	URL      string
}

// Library is the track repository.
type Library struct {
	db    *sql.DB
	cache *expirable.LRU[string, *Track]
	log   zerolog.Logger
}

// New creates a track repository over a database initialized by state.Open.
func New(db *sql.DB, log zerolog.Logger) *Library {
	return &Library{
		db:    db,
		cache: expirable.NewLRU[string, *Track](defaultCacheSize, nil, defaultCacheTTL),
		log:   log.With().Str("component", "library").Logger(),
	}
}
