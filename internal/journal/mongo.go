package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m3rciful/songbot/core/logger"
)

const mongoCollection = "download_jobs"

// collection is the subset of *mongo.Collection the journal uses.
type collection interface {
	UpdateByID(ctx context.Context, id any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Mongo stores entries as documents keyed by job id.
type Mongo struct {
	client *mongo.Client
	coll   collection
}

// DialMongo connects to uri and verifies the connection with a ping.
func DialMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("journal: mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("journal: mongo ping: %w", err)
	}
	if database == "" {
		database = "songbot"
	}
	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("journal: mongo index: %w", err)
	}
	logger.SVCJournal.Info("mongo connected",
		slog.String("event", "connect"),
		slog.String("database", database),
		slog.String("collection", mongoCollection),
	)
	return &Mongo{client: client, coll: coll}, nil
}

// Record upserts the entry, setting created_at only on insert.
func (m *Mongo) Record(ctx context.Context, e Entry) error {
	update := bson.M{
		"$set": bson.M{
			"user_id":    e.UserID,
			"query":      e.Query,
			"format":     e.Format,
			"state":      e.State,
			"error":      e.Error,
			"size_bytes": e.SizeBytes,
			"updated_at": e.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": e.CreatedAt},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.coll.UpdateByID(ctx, e.JobID, update, opts); err != nil {
		return fmt.Errorf("journal: mongo upsert %s: %w", e.JobID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Mongo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := m.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var out []Entry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("journal: mongo decode: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
