package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo persists presence state on the users collection shared with the rest
// of the chat backend. Each user document carries an online flag, a lastSeen
// timestamp (null while online), and a friends array of user object ids.
type Mongo struct {
	users *mongo.Collection
}

// NewMongo builds a store over the given database's users collection.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{users: db.Collection("users")}
}

// Dial connects to MongoDB, verifies the deployment with a ping, and returns
// the client. Callers own the client and must Disconnect it on shutdown.
func Dial(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// SetPresence updates the user's online flag and last-seen timestamp. lastSeen
// must be nil while online; the field is written as null so clients render
// "online" rather than a stale timestamp.
func (m *Mongo) SetPresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	update := bson.M{"$set": bson.M{
		"online":   online,
		"lastSeen": lastSeen,
	}}
	if _, err := m.users.UpdateByID(ctx, oid, update); err != nil {
		return fmt.Errorf("failed to update presence for %s: %w", userID, err)
	}
	return nil
}

// FriendIDs returns the hex ids of the user's friends. A missing user yields
// an empty list, not an error, matching how the rest of the backend treats
// deleted accounts.
func (m *Mongo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	var doc struct {
		Friends []primitive.ObjectID `bson:"friends"`
	}
	opts := options.FindOne().SetProjection(bson.M{"friends": 1})
	err = m.users.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load friends for %s: %w", userID, err)
	}

	ids := make([]string, 0, len(doc.Friends))
	for _, friend := range doc.Friends {
		ids = append(ids, friend.Hex())
	}
	return ids, nil
}
