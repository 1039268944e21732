// Package history archives completed stream sessions: when a publish
// started and ended, where its recording landed, and what codec policy
// was in effect. It deliberately does not touch chat or poll state —
// spec.md's non-goals exclude durable persistence for either — this is
// the one piece of this system's state that earns a datastore.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Session is one archived stream: a completed publish from start to end.
type Session struct {
	StreamKey             string    `bson:"stream_key"`
	StartedAt             time.Time `bson:"started_at"`
	EndedAt               time.Time `bson:"ended_at"`
	RecordingPath         string    `bson:"recording_path"`
	SecondaryCodecEnabled bool      `bson:"secondary_codec_enabled"`
	EndReason             string    `bson:"end_reason"`
}

// Store persists Sessions to MongoDB, mirroring the teacher's
// database.Service shape (Health/Close on a single long-lived client)
// narrowed to the one collection this system actually needs.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri and returns a Store backed by dbName's "sessions"
// collection. The teacher's database.New dials once at process start and
// fatals on failure; Connect returns the error instead so the caller
// (cmd/server, which only registers the orchestrator's archive hook once
// Connect succeeds) can decide whether a history outage should
// stop the stream origin from serving video at all — spec.md's
// non-goals never make chat/poll durability required, and a stream
// history outage is no more essential, so the default wiring in
// cmd/server logs and continues rather than failing startup.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, errors.Wrap(err, "ping mongo")
	}

	return &Store{
		client:     client,
		collection: client.Database(dbName).Collection("sessions"),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Health mirrors the teacher's database.Service.Health shape.
func (s *Store) Health(ctx context.Context) map[string]string {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return map[string]string{"message": "history store is unhealthy", "error": err.Error()}
	}
	return map[string]string{"message": "history store is healthy", "status": "connected"}
}

// RecordSession inserts one completed session.
func (s *Store) RecordSession(ctx context.Context, sess Session) error {
	_, err := s.collection.InsertOne(ctx, sess)
	return errors.Wrap(err, "insert session")
}

// RecentSessions returns up to limit sessions for streamKey, most recent
// first.
func (s *Store) RecentSessions(ctx context.Context, streamKey string, limit int64) ([]Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)
	cursor, err := s.collection.Find(ctx, bson.M{"stream_key": streamKey}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find sessions")
	}
	defer cursor.Close(ctx)

	var sessions []Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, errors.Wrap(err, "decode sessions")
	}
	return sessions, nil
}
