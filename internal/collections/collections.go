// Package collections persists named, ordered track collections (playlists)
// that can be embedded in a channel queue as a single item.
package collections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no collection matches.
var ErrNotFound = errors.New("collection not found")

// Collection is a collection's metadata (without tracks).
type Collection struct {
	ID        int64
	Owner     string
	Name      string
	CreatedAt int64
}

// Track is one entry of a collection.
type Track struct {
	TrackID          string
	Position         int
	OriginalPosition int
}

// Collections provides database operations for collections.
type Collections struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates a new Collections instance over a database initialized by state.Open.
func New(db *sql.DB, log zerolog.Logger) *Collections {
	return &Collections{db: db, log: log.With().Str("component", "collections").Logger()}
}

// Create creates a new empty collection.
func (c *Collections) Create(ctx context.Context, owner, name string) (int64, error) {
	result, err := c.db.ExecContext(ctx, `
		INSERT INTO collections (owner, name, created_at)
		VALUES (?, ?, ?)
	`, owner, name, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FindByName returns the collection owned by owner with the given name.
func (c *Collections) FindByName(ctx context.Context, owner, name string) (*Collection, error) {
	var col Collection
	err := c.db.QueryRowContext(ctx, `
		SELECT id, owner, name, created_at FROM collections
		WHERE owner = ? AND name = ?
	`, owner, name).Scan(&col.ID, &col.Owner, &col.Name, &col.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &col, nil
}

// FindOrCreate returns the id of the named collection, creating it if absent.
func (c *Collections) FindOrCreate(ctx context.Context, owner, name string) (int64, error) {
	col, err := c.FindByName(ctx, owner, name)
	if err == nil {
		return col.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return c.Create(ctx, owner, name)
}

// List returns all collections of an owner.
func (c *Collections) List(ctx context.Context, owner string) ([]Collection, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, owner, name, created_at FROM collections
		WHERE owner = ?
		ORDER BY name COLLATE NOCASE
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Collection
	for rows.Next() {
		var col Collection
		if err := rows.Scan(&col.ID, &col.Owner, &col.Name, &col.CreatedAt); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Delete deletes a collection and all its tracks.
func (c *Collections) Delete(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	return err
}
