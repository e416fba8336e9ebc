package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite" (modernc.org/sqlite,
	// pure Go) or "sqlite3" (github.com/mattn/go-sqlite3, cgo).
	// Default: "sqlite"
	Driver string

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/berth.db",
		Driver:      "sqlite",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStore implements Store using SQLite. Each Session owns one
// dedicated database connection so that pool bounds translate directly
// into connection bounds.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database and initializes the schema.
func NewSQLiteStore(ctx context.Context, config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, NewError("sqlite", "open", errors.New("db path cannot be empty"))
	}
	if config.Driver == "" {
		config.Driver = "sqlite"
	}
	if config.Driver != "sqlite" && config.Driver != "sqlite3" {
		return nil, NewError("sqlite", "open", fmt.Errorf("unsupported driver %q", config.Driver))
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "storage.sqlite")

	db, err := sql.Open(config.Driver, dsn(config.Path))
	if err != nil {
		return nil, NewError("sqlite", "open", err)
	}

	// Idle connections are owned by the session pool, not database/sql.
	db.SetMaxIdleConns(0)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStore) initialize(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return NewError("sqlite", "connect", err)
	}
	defer conn.Close()

	if err := s.configure(ctx, conn); err != nil {
		return err
	}

	if s.config.WALMode {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return NewError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	if _, err := conn.ExecContext(ctx, Schema); err != nil {
		return NewError("sqlite", "create_schema", err)
	}
	if _, err := conn.ExecContext(ctx, InsertSchemaVersion, SchemaVersion); err != nil {
		return NewError("sqlite", "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := conn.QueryRowContext(ctx, GetSchemaVersion).Scan(&version); err != nil {
		return NewError("sqlite", "get_schema_version", err)
	}
	if version.Int64 != SchemaVersion {
		return NewError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}

// configure applies per-connection pragmas.
func (s *SQLiteStore) configure(ctx context.Context, conn *sql.Conn) error {
	pragma := fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())
	if _, err := conn.ExecContext(ctx, pragma); err != nil {
		return NewError("sqlite", "set_busy_timeout", err)
	}
	return nil
}

// Name implements Store.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Open implements Store.
func (s *SQLiteStore) Open(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, NewError("sqlite", "connect", err)
	}
	if err := s.configure(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &sqliteSession{conn: conn}, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteSession struct {
	conn *sql.Conn
}

func (c *sqliteSession) GetSlot(ctx context.Context, key SlotKey) (*TimeSlot, error) {
	slot := &TimeSlot{SlotKey: key}
	var updated string
	err := c.conn.QueryRowContext(ctx, querySelectSlot, key.CaptainID, key.Date, key.Time).
		Scan(&slot.Capacity, &slot.BookedCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, NewError("sqlite", "get_slot", err)
	}
	slot.UpdatedAt = parseTime(updated)
	return slot, nil
}

func (c *sqliteSession) UpsertSlot(ctx context.Context, key SlotKey, capacity int) (*TimeSlot, error) {
	res, err := c.conn.ExecContext(ctx, queryUpsertSlot,
		key.CaptainID, key.Date, key.Time, capacity, formatTime(time.Now()))
	if err != nil {
		return nil, NewError("sqlite", "upsert_slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, NewError("sqlite", "upsert_slot", err)
	}
	if n == 0 {
		return nil, ErrCapacityBelowBooked
	}
	return c.GetSlot(ctx, key)
}

func (c *sqliteSession) CommitReservation(ctx context.Context, expected int, b *Booking) (bool, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, NewError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryReserveUnits,
		b.Units, formatTime(time.Now()),
		b.CaptainID, b.Date, b.Time,
		expected, b.Units)
	if err != nil {
		return false, NewError("sqlite", "reserve_units", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewError("sqlite", "reserve_units", err)
	}
	if n == 0 {
		return false, nil
	}

	var payload sql.NullString
	if len(b.Payload) > 0 {
		payload = sql.NullString{String: string(b.Payload), Valid: true}
	}
	_, err = tx.ExecContext(ctx, queryInsertBooking,
		b.ID, b.CaptainID, b.Date, b.Time, b.Units, b.CustomerID, payload, formatTime(b.CreatedAt))
	if err != nil {
		return false, NewError("sqlite", "insert_booking", err)
	}

	if err := tx.Commit(); err != nil {
		return false, NewError("sqlite", "commit", err)
	}
	return true, nil
}

func (c *sqliteSession) GetBooking(ctx context.Context, id string) (*Booking, error) {
	b := &Booking{ID: id}
	var payload sql.NullString
	var created string
	err := c.conn.QueryRowContext(ctx, querySelectBooking, id).
		Scan(&b.CaptainID, &b.Date, &b.Time, &b.Units, &b.CustomerID, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, NewError("sqlite", "get_booking", err)
	}
	if payload.Valid {
		b.Payload = []byte(payload.String)
	}
	b.CreatedAt = parseTime(created)
	return b, nil
}

func (c *sqliteSession) CancelReservation(ctx context.Context, expected int, b *Booking) (bool, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, NewError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryDeleteBooking, b.ID)
	if err != nil {
		return false, NewError("sqlite", "delete_booking", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, NewError("sqlite", "delete_booking", err)
	} else if n == 0 {
		return false, ErrBookingNotFound
	}

	res, err = tx.ExecContext(ctx, queryReleaseUnits,
		b.Units, formatTime(time.Now()),
		b.CaptainID, b.Date, b.Time,
		expected, b.Units)
	if err != nil {
		return false, NewError("sqlite", "release_units", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewError("sqlite", "release_units", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, NewError("sqlite", "commit", err)
	}
	return true, nil
}

func (c *sqliteSession) PruneBefore(ctx context.Context, date string) (int, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryPruneBookings, date); err != nil {
		return 0, NewError("sqlite", "prune_bookings", err)
	}
	res, err := tx.ExecContext(ctx, queryPruneSlots, date)
	if err != nil {
		return 0, NewError("sqlite", "prune_slots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewError("sqlite", "prune_slots", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, NewError("sqlite", "commit", err)
	}
	return int(n), nil
}

func (c *sqliteSession) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return NewError("sqlite", "ping", err)
	}
	return nil
}

func (c *sqliteSession) Close() error {
	return c.conn.Close()
}

// dsn makes every transaction take the write lock at BEGIN. Both drivers
// understand _txlock.
func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_txlock=immediate"
	}
	return path + "?_txlock=immediate"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
