package state

import (
	"database/sql"
	"path/filepath"

	"github.com/adrg/xdg"

	dbutil "github.com/llehouerou/wavebot/internal/db"
)

const (
	appName    = "wavebot"
	dbFileName = "wavebot.db"
)

// Manager owns the bot database. It creates the schema used by the
// library and collections packages and persists channel queues.
type Manager struct {
	db *sql.DB
}

// Open opens the database at path, or at the default xdg data location
// when path is empty.
func Open(path string) (*Manager, error) {
	if path == "" {
		p, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	db, err := dbutil.Open(path)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

// DB returns the underlying database for the other repositories.
func (m *Manager) DB() *sql.DB {
	return m.db
}

func (m *Manager) Close() error {
	return m.db.Close()
}

// DefaultDBPath returns the xdg data file used when no path is configured.
func DefaultDBPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}
