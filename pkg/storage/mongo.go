package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains configuration for the MongoDB storage backend.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string

	// Database is the database holding the slots and bookings collections.
	// Default: "berth"
	Database string

	// ConnectTimeout bounds the initial connection.
	// Default: 10 seconds
	ConnectTimeout time.Duration
}

// releaseTimeout bounds releasing the units of a claimed cancellation. It
// is detached from the caller's context.
const releaseTimeout = 10 * time.Second

// MongoStore implements Store using MongoDB. The reservation compare-and-
// swap is a filtered UpdateOne on the slot document; a booking insert that
// fails after the update is compensated by reverting the increment.
// Cancellation deletes the booking before touching the slot.
type MongoStore struct {
	client   *mongo.Client
	slots    *mongo.Collection
	bookings *mongo.Collection
	logger   *slog.Logger
}

type slotDoc struct {
	ID          string    `bson:"_id"`
	CaptainID   string    `bson:"captain_id"`
	Date        string    `bson:"date"`
	Time        string    `bson:"time"`
	Capacity    int       `bson:"capacity"`
	BookedCount int       `bson:"booked_count"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type bookingDoc struct {
	ID         string    `bson:"_id"`
	CaptainID  string    `bson:"captain_id"`
	Date       string    `bson:"date"`
	Time       string    `bson:"time"`
	Units      int       `bson:"units"`
	CustomerID string    `bson:"customer_id"`
	Payload    string    `bson:"payload,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

// interpretMongoError maps driver errors onto storage errors.
func interpretMongoError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError("mongo", op, err)
}

// NewMongoStore connects to MongoDB and ensures indexes.
func NewMongoStore(ctx context.Context, config MongoConfig) (*MongoStore, error) {
	if config.URI == "" {
		return nil, NewError("mongo", "connect", errors.New("uri cannot be empty"))
	}
	if config.Database == "" {
		config.Database = "berth"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, interpretMongoError("connect", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, interpretMongoError("ping", err)
	}

	s := newMongoStore(client, client.Database(config.Database))

	_, err = s.bookings.Indexes().CreateMany(cctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "captain_id", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, interpretMongoError("create_indexes", err)
	}
	if _, err := s.slots.Indexes().CreateOne(cctx, mongo.IndexModel{Keys: bson.D{{Key: "date", Value: 1}}}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, interpretMongoError("create_indexes", err)
	}

	s.logger.Info("MongoDB storage initialized", "database", config.Database)
	return s, nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		slots:    db.Collection("slots"),
		bookings: db.Collection("bookings"),
		logger:   slog.Default().With("component", "storage.mongo"),
	}
}

// Name implements Store.
func (s *MongoStore) Name() string { return "mongo" }

// Open implements Store. Each Session carries a causally consistent client
// session.
func (s *MongoStore) Open(_ context.Context) (Session, error) {
	sess, err := s.client.StartSession(options.Session().SetCausalConsistency(true))
	if err != nil {
		return nil, interpretMongoError("start_session", err)
	}
	return &mongoSession{store: s, sess: sess}, nil
}

// Close implements Store.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoSession struct {
	store *MongoStore
	sess  mongo.Session
}

func (m *mongoSession) ctx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, m.sess)
}

func (m *mongoSession) GetSlot(ctx context.Context, key SlotKey) (*TimeSlot, error) {
	var doc slotDoc
	err := m.store.slots.FindOne(m.ctx(ctx), bson.M{"_id": key.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, interpretMongoError("get_slot", err)
	}
	return &TimeSlot{
		SlotKey:     key,
		Capacity:    doc.Capacity,
		BookedCount: doc.BookedCount,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

func (m *mongoSession) UpsertSlot(ctx context.Context, key SlotKey, capacity int) (*TimeSlot, error) {
	filter := bson.M{
		"_id":          key.String(),
		"booked_count": bson.M{"$lte": capacity},
	}
	update := bson.M{
		"$set": bson.M{
			"capacity":   capacity,
			"updated_at": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"captain_id":   key.CaptainID,
			"date":         key.Date,
			"time":         key.Time,
			"booked_count": 0,
		},
	}
	_, err := m.store.slots.UpdateOne(m.ctx(ctx), filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// The slot exists but the filter rejected the new capacity.
		return nil, ErrCapacityBelowBooked
	}
	if err != nil {
		return nil, interpretMongoError("upsert_slot", err)
	}
	return m.GetSlot(ctx, key)
}

func (m *mongoSession) CommitReservation(ctx context.Context, expected int, b *Booking) (bool, error) {
	sctx := m.ctx(ctx)
	filter := bson.M{
		"_id":          b.SlotKey.String(),
		"booked_count": expected,
		"capacity":     bson.M{"$gte": expected + b.Units},
	}
	update := bson.M{
		"$inc": bson.M{"booked_count": b.Units},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := m.store.slots.UpdateOne(sctx, filter, update)
	if err != nil {
		return false, interpretMongoError("reserve_units", err)
	}
	if res.MatchedCount == 0 {
		return false, nil
	}

	doc := bookingDoc{
		ID:         b.ID,
		CaptainID:  b.CaptainID,
		Date:       b.Date,
		Time:       b.Time,
		Units:      b.Units,
		CustomerID: b.CustomerID,
		Payload:    string(b.Payload),
		CreatedAt:  b.CreatedAt.UTC(),
	}
	if _, err := m.store.bookings.InsertOne(sctx, doc); err != nil {
		m.compensate(ctx, b)
		return false, interpretMongoError("insert_booking", err)
	}
	return true, nil
}

// compensate reverts a booked_count increment whose booking was not stored.
func (m *mongoSession) compensate(ctx context.Context, b *Booking) {
	ctx = context.WithoutCancel(ctx)
	_, err := m.store.slots.UpdateOne(m.ctx(ctx),
		bson.M{"_id": b.SlotKey.String()},
		bson.M{"$inc": bson.M{"booked_count": -b.Units}})
	if err != nil {
		m.store.logger.Error("failed to revert reservation after booking insert failure",
			"slot", b.SlotKey.String(),
			"units", b.Units,
			"error", err,
		)
	}
}

func (m *mongoSession) GetBooking(ctx context.Context, id string) (*Booking, error) {
	var doc bookingDoc
	err := m.store.bookings.FindOne(m.ctx(ctx), bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, interpretMongoError("get_booking", err)
	}
	b := &Booking{
		ID:         doc.ID,
		SlotKey:    SlotKey{CaptainID: doc.CaptainID, Date: doc.Date, Time: doc.Time},
		Units:      doc.Units,
		CustomerID: doc.CustomerID,
		CreatedAt:  doc.CreatedAt,
	}
	if doc.Payload != "" {
		b.Payload = []byte(doc.Payload)
	}
	return b, nil
}

// CancelReservation claims b by deleting it, so at most one caller cancels
// a booking, and then releases its units through releaseUnits. Once the
// claim succeeds it never reports false.
func (m *mongoSession) CancelReservation(ctx context.Context, expected int, b *Booking) (bool, error) {
	del, err := m.store.bookings.DeleteOne(m.ctx(ctx), bson.M{"_id": b.ID})
	if err != nil {
		return false, interpretMongoError("delete_booking", err)
	}
	if del.DeletedCount == 0 {
		return false, ErrBookingNotFound
	}

	if err := m.releaseUnits(ctx, expected, b); err != nil {
		m.store.logger.Error("booking deleted but units not released",
			"booking_id", b.ID,
			"slot", b.SlotKey.String(),
			"units", b.Units,
			"error", err,
		)
		return false, err
	}
	return true, nil
}

// releaseUnits subtracts b.Units with a compare-and-swap on the booked
// count, re-reading the count after every lost swap. It never raises the
// count. A pruned slot has nothing left to release.
func (m *mongoSession) releaseUnits(ctx context.Context, observed int, b *Booking) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for {
		filter := bson.M{
			"_id":          b.SlotKey.String(),
			"booked_count": bson.M{"$eq": observed, "$gte": b.Units},
		}
		update := bson.M{
			"$inc": bson.M{"booked_count": -b.Units},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		}
		res, err := m.store.slots.UpdateOne(m.ctx(ctx), filter, update)
		if err != nil {
			return interpretMongoError("release_units", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}

		slot, err := m.GetSlot(ctx, b.SlotKey)
		if errors.Is(err, ErrSlotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if slot.BookedCount < b.Units {
			return NewError("mongo", "release_units",
				fmt.Errorf("booked count %d is below the %d units being released", slot.BookedCount, b.Units))
		}
		observed = slot.BookedCount
	}
}

func (m *mongoSession) PruneBefore(ctx context.Context, date string) (int, error) {
	sctx := m.ctx(ctx)
	filter := bson.M{"date": bson.M{"$lt": date}}
	if _, err := m.store.bookings.DeleteMany(sctx, filter); err != nil {
		return 0, interpretMongoError("prune_bookings", err)
	}
	res, err := m.store.slots.DeleteMany(sctx, filter)
	if err != nil {
		return 0, interpretMongoError("prune_slots", err)
	}
	return int(res.DeletedCount), nil
}

func (m *mongoSession) Ping(ctx context.Context) error {
	if err := m.store.client.Ping(ctx, nil); err != nil {
		return interpretMongoError("ping", err)
	}
	return nil
}

func (m *mongoSession) Close() error {
	m.sess.EndSession(context.Background())
	return nil
}
