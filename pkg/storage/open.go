package storage

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures a storage backend.
type Config struct {
	// Driver is one of "sqlite" (modernc, pure Go), "sqlite3" (mattn, cgo),
	// "mongo" or "memory".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// WALMode enables SQLite write-ahead logging.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MongoURI is the MongoDB connection string.
	MongoURI string `yaml:"mongo_uri"`

	// MongoDatabase is the MongoDB database name.
	MongoDatabase string `yaml:"mongo_database"`
}

// New opens the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3", "":
		driver := cfg.Driver
		if driver == "" {
			driver = "sqlite"
		}
		return NewSQLiteStore(ctx, &SQLiteConfig{
			Path:        cfg.Path,
			Driver:      driver,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
	case "mongo":
		return NewMongoStore(ctx, MongoConfig{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
