package collections

import (
	"context"
	"database/sql"
	"slices"

	dbutil "github.com/llehouerou/wavebot/internal/db"
)

// Tracks returns the entries of a collection in playback order.
// A missing collection has no tracks.
func (c *Collections) Tracks(ctx context.Context, id int64) ([]Track, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT track_id, position, original_position
		FROM collection_tracks
		WHERE collection_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.TrackID, &t.Position, &t.OriginalPosition); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// TrackIDs returns the track ids of a collection in playback order.
func (c *Collections) TrackIDs(ctx context.Context, id int64) ([]string, error) {
	tracks, err := c.Tracks(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.TrackID
	}
	return ids, nil
}

// TrackCount returns the number of tracks in a collection.
func (c *Collections) TrackCount(ctx context.Context, id int64) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM collection_tracks WHERE collection_id = ?
	`, id).Scan(&count)
	return count, err
}

// Sync makes the collection contain exactly trackIDs. Tracks no longer
// listed are removed; new ones are appended after the current tail with a
// fresh original position. Existing entries keep both positions.
// It returns the playback-order indexes of the removed entries, as they
// were before the removal, and the number of tracks added.
func (c *Collections) Sync(ctx context.Context, id int64, trackIDs []string) (removed []int, added int, err error) {
	err = dbutil.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT track_id, position, original_position
			FROM collection_tracks
			WHERE collection_id = ?
			ORDER BY position
		`, id)
		if err != nil {
			return err
		}
		var existing []Track
		for rows.Next() {
			var t Track
			if err := rows.Scan(&t.TrackID, &t.Position, &t.OriginalPosition); err != nil {
				rows.Close()
				return err
			}
			existing = append(existing, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		wanted := make(map[string]bool, len(trackIDs))
		for _, tid := range trackIDs {
			wanted[tid] = true
		}

		next := 0
		have := make(map[string]bool, len(existing))
		for i, t := range existing {
			next = max(next, t.Position+1, t.OriginalPosition+1)
			if wanted[t.TrackID] {
				have[t.TrackID] = true
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM collection_tracks WHERE collection_id = ? AND track_id = ?
			`, id, t.TrackID); err != nil {
				return err
			}
			removed = append(removed, i)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO collection_tracks (collection_id, track_id, position, original_position)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, tid := range trackIDs {
			if have[tid] {
				continue
			}
			have[tid] = true
			if _, err := stmt.ExecContext(ctx, id, tid, next, next); err != nil {
				return err
			}
			next++
			added++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	c.log.Debug().Int64("collection", id).Int("added", added).Int("removed", len(removed)).Msg("synced collection")
	return removed, added, nil
}

// Shuffle permutes the playback order of a collection.
// shuffle follows the rand.Shuffle contract.
func (c *Collections) Shuffle(ctx context.Context, id int64, shuffle func(n int, swap func(i, j int))) error {
	tracks, err := c.Tracks(ctx, id)
	if err != nil || len(tracks) < 2 {
		return err
	}

	positions := make([]int, len(tracks))
	for i, t := range tracks {
		positions[i] = t.Position
	}
	shuffle(len(positions), func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})

	return dbutil.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		// Move every row out of the way first so UNIQUE(position) holds
		// while the new values are written.
		if _, err := tx.ExecContext(ctx, `
			UPDATE collection_tracks SET position = -position - 1 WHERE collection_id = ?
		`, id); err != nil {
			return err
		}
		for i, t := range tracks {
			if _, err := tx.ExecContext(ctx, `
				UPDATE collection_tracks SET position = ? WHERE collection_id = ? AND track_id = ?
			`, positions[i], id, t.TrackID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RestoreOrder copies original positions back into positions.
func (c *Collections) RestoreOrder(ctx context.Context, id int64) error {
	return dbutil.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE collection_tracks SET position = -position - 1 WHERE collection_id = ?
		`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE collection_tracks SET position = original_position WHERE collection_id = ?
		`, id)
		return err
	})
}

// IsShuffled reports whether any entry is out of its original order.
func (c *Collections) IsShuffled(ctx context.Context, id int64) (bool, error) {
	tracks, err := c.Tracks(ctx, id)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(tracks, func(t Track) bool {
		return t.Position != t.OriginalPosition
	}), nil
}
