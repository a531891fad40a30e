package sessions

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository provides session record persistence.
type Repository interface {
	Put(ctx context.Context, r *Record) error
	// Get returns nil (no error) when no record exists.
	Get(ctx context.Context, sessionID, collection string) (*Record, error)
	Delete(ctx context.Context, sessionID, collection string) error
}

// MongoRepository implements Repository on a Mongo collection; used
// when Redis is not configured.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Put(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"sessionId": rec.SessionID, "collection": rec.Collection}
	_, err := r.col.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	return err
}

func (r *MongoRepository) Get(ctx context.Context, sessionID, collection string) (*Record, error) {
	var rec Record
	err := r.col.FindOne(ctx, bson.M{"sessionId": sessionID, "collection": collection}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		_ = r.Delete(ctx, sessionID, collection)
		return nil, nil
	}
	return &rec, nil
}

func (r *MongoRepository) Delete(ctx context.Context, sessionID, collection string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"sessionId": sessionID, "collection": collection})
	return err
}
