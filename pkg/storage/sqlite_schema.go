package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the slot database schema.
const Schema = `
-- Bookable time slots
CREATE TABLE IF NOT EXISTS slots (
    captain_id TEXT NOT NULL,
    date TEXT NOT NULL,
    time TEXT NOT NULL,
    capacity INTEGER NOT NULL CHECK (capacity >= 0),
    booked_count INTEGER NOT NULL DEFAULT 0 CHECK (booked_count >= 0),
    updated_at TEXT NOT NULL,
    PRIMARY KEY (captain_id, date, time),
    CHECK (booked_count <= capacity)
);

CREATE INDEX IF NOT EXISTS idx_slots_date ON slots(date);

-- Committed reservations
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    captain_id TEXT NOT NULL,
    date TEXT NOT NULL,
    time TEXT NOT NULL,
    units INTEGER NOT NULL CHECK (units > 0),
    customer_id TEXT NOT NULL,
    payload TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(captain_id, date, time);
CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the highest applied schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`

const (
	querySelectSlot = `
SELECT capacity, booked_count, updated_at
FROM slots
WHERE captain_id = ? AND date = ? AND time = ?`

	queryUpsertSlot = `
INSERT INTO slots (captain_id, date, time, capacity, booked_count, updated_at)
VALUES (?, ?, ?, ?, 0, ?)
ON CONFLICT (captain_id, date, time) DO UPDATE SET
    capacity = excluded.capacity,
    updated_at = excluded.updated_at
WHERE slots.booked_count <= excluded.capacity`

	queryReserveUnits = `
UPDATE slots
SET booked_count = booked_count + ?, updated_at = ?
WHERE captain_id = ? AND date = ? AND time = ?
  AND booked_count = ?
  AND booked_count + ? <= capacity`

	queryReleaseUnits = `
UPDATE slots
SET booked_count = booked_count - ?, updated_at = ?
WHERE captain_id = ? AND date = ? AND time = ?
  AND booked_count = ?
  AND booked_count >= ?`

	queryInsertBooking = `
INSERT INTO bookings (id, captain_id, date, time, units, customer_id, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectBooking = `
SELECT captain_id, date, time, units, customer_id, payload, created_at
FROM bookings
WHERE id = ?`

	queryDeleteBooking = `DELETE FROM bookings WHERE id = ?`

	queryPruneBookings = `DELETE FROM bookings WHERE date < ?`

	queryPruneSlots = `DELETE FROM slots WHERE date < ?`
)
