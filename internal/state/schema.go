package state

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 2

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			cover_url TEXT,
			url TEXT NOT NULL,
			added_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);

		CREATE TABLE IF NOT EXISTS collections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(owner, name)
		);

		CREATE TABLE IF NOT EXISTS collection_tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			track_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			original_position INTEGER NOT NULL,
			UNIQUE(collection_id, position),
			UNIQUE(collection_id, track_id)
		);

		CREATE INDEX IF NOT EXISTS idx_collection_tracks_collection ON collection_tracks(collection_id, position);

		CREATE TABLE IF NOT EXISTS queues (
			channel_id TEXT PRIMARY KEY,
			current_position INTEGER NOT NULL DEFAULT 0,
			loop_mode TEXT NOT NULL DEFAULT 'NONE',
			volume INTEGER NOT NULL DEFAULT 100,
			player_message_id TEXT,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS queue_items (
			channel_id TEXT NOT NULL REFERENCES queues(channel_id) ON DELETE CASCADE,
			id INTEGER NOT NULL,
			type TEXT NOT NULL,
			position INTEGER NOT NULL,
			original_position INTEGER NOT NULL,
			track_id TEXT,
			collection_id INTEGER,
			current_index INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(channel_id, id),
			UNIQUE(channel_id, position)
		);

		CREATE INDEX IF NOT EXISTS idx_queue_items_collection ON queue_items(collection_id);
	`)
	if err != nil {
		return err
	}

	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return err
	}

	// A fresh database was just created at the current version.
	if version == 0 {
		_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
		return err
	}

	if version < 2 {
		if err := migrateV2(db); err != nil {
			return fmt.Errorf("migrate schema to v2: %w", err)
		}
	}
	return nil
}

// migrateV2 adds player message tracking to queues.
func migrateV2(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('queues') WHERE name = 'player_message_id'
	`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Exec(`ALTER TABLE queues ADD COLUMN player_message_id TEXT`); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (2)`)
	return err
}
