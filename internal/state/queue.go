package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/llehouerou/wavebot/internal/db"
	"github.com/llehouerou/wavebot/internal/queue"
)

// Verify Manager implements queue.Repository at compile time.
var _ queue.Repository = (*Manager)(nil)

// Load returns the persisted queue of a channel, or nil if there is none.
func (m *Manager) Load(ctx context.Context, channelID string) (*queue.Queue, error) {
	q := queue.New(channelID)

	var loopMode string
	var messageID sql.NullString
	row := m.db.QueryRowContext(ctx, `
		SELECT current_position, loop_mode, volume, player_message_id
		FROM queues WHERE channel_id = ?
	`, channelID)
	err := row.Scan(&q.CurrentPosition, &loopMode, &q.Volume, &messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.LoopMode = queue.ParseLoopMode(loopMode)
	q.PlayerMessageID = dbutil.NullStringValue(messageID)

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, type, position, original_position, track_id, collection_id, current_index
		FROM queue_items
		WHERE channel_id = ?
		ORDER BY position
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it queue.Item
		var typ string
		var trackID sql.NullString
		var collectionID sql.NullInt64

		err := rows.Scan(&it.ID, &typ, &it.Position, &it.OriginalPosition,
			&trackID, &collectionID, &it.CurrentIndex)
		if err != nil {
			return nil, err
		}

		if typ == queue.ItemCollection.String() {
			it.Type = queue.ItemCollection
		}
		it.TrackID = dbutil.NullStringValue(trackID)
		it.CollectionID = dbutil.NullInt64Value(collectionID)
		q.Items = append(q.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return q, nil
}

// Save replaces the persisted queue of q.ChannelID.
func (m *Manager) Save(ctx context.Context, q *queue.Queue) error {
	return dbutil.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO queues (channel_id, current_position, loop_mode, volume, player_message_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(channel_id) DO UPDATE SET
				current_position = excluded.current_position,
				loop_mode = excluded.loop_mode,
				volume = excluded.volume,
				player_message_id = excluded.player_message_id,
				updated_at = excluded.updated_at
		`, q.ChannelID, q.CurrentPosition, q.LoopMode.String(), q.Volume,
			dbutil.NullString(q.PlayerMessageID), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("upsert queue: %w", err)
		}

		// Clear existing items
		_, err = tx.ExecContext(ctx, `DELETE FROM queue_items WHERE channel_id = ?`, q.ChannelID)
		if err != nil {
			return fmt.Errorf("clear queue items: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO queue_items (channel_id, id, type, position, original_position, track_id, collection_id, current_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, it := range q.Items {
			var trackID, collectionID any
			if it.Type == queue.ItemCollection {
				collectionID = it.CollectionID
			} else {
				trackID = it.TrackID
			}
			_, err = stmt.ExecContext(ctx, q.ChannelID, it.ID, it.Type.String(), it.Position,
				it.OriginalPosition, trackID, collectionID, it.CurrentIndex)
			if err != nil {
				return fmt.Errorf("insert queue item: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a channel's queue and its items.
func (m *Manager) Delete(ctx context.Context, channelID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM queues WHERE channel_id = ?`, channelID)
	return err
}

// ChannelsWithCollection lists channels whose queue embeds the collection.
func (m *Manager) ChannelsWithCollection(ctx context.Context, collectionID int64) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT DISTINCT channel_id FROM queue_items
		WHERE type = ? AND collection_id = ?
		ORDER BY channel_id
	`, queue.ItemCollection.String(), collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}
