package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/llehouerou/wavebot/internal/db"
)

// TrackByID returns a track by its ID, or ErrNotFound.
func (l *Library) TrackByID(ctx context.Context, id string) (*Track, error) {
	if t, ok := l.cache.Get(id); ok {
		return t, nil
	}

	row := l.db.QueryRowContext(ctx, `
		SELECT id, title, artist, duration_ms, cover_url, url
		FROM tracks
		WHERE id = ?
	`, id)

	var t Track
	var durationMs int64
	var cover sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Artist, &durationMs, &cover, &t.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	t.Duration = time.Duration(durationMs) * time.Millisecond
	t.CoverURL = dbutil.NullStringValue(cover)

	l.cache.Add(t.ID, &t)
	return &t, nil
}

// Ingest stores tracks, skipping ids that already exist. It returns the
// number of tracks actually inserted.
func (l *Library) Ingest(ctx context.Context, tracks []Track) (int, error) {
	if len(tracks) == 0 {
		return 0, nil
	}

	inserted := 0
	now := time.Now().Unix()
	err := dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO tracks (id, title, artist, duration_ms, cover_url, url, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tracks {
			res, err := stmt.ExecContext(ctx, t.ID, t.Title, t.Artist, t.Duration.Milliseconds(),
				dbutil.NullString(t.CoverURL), t.URL, now)
			if err != nil {
				return fmt.Errorf("insert track %s: %w", t.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.log.Debug().Int("inserted", inserted).Int("skipped", len(tracks)-inserted).Msg("ingested tracks")
	return inserted, nil
}

// TrackCount returns the number of stored tracks.
func (l *Library) TrackCount(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&count)
	return count, err
}

// Search returns up to limit tracks whose title or artist contains query.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	pattern := "%" + query + "%"
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, title, artist, duration_ms, cover_url, url
		FROM tracks
		WHERE title LIKE ? OR artist LIKE ?
		ORDER BY artist COLLATE NOCASE, title COLLATE NOCASE
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		var durationMs int64
		var cover sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &durationMs, &cover, &t.URL); err != nil {
			return nil, err
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		t.CoverURL = dbutil.NullStringValue(cover)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
