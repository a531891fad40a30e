package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository implements Repository on a mongo database handle.
// Collections are addressed dynamically by name; MongoDB creates them
// lazily on first write.
type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db}
}

// EnsureUniqueIndex creates a unique partial index on field, skipping
// documents that lack it. Safe to call repeatedly.
func (r *MongoRepository) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	_, err := r.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{field: bson.M{"$exists": true}}),
	})
	if err != nil {
		return fmt.Errorf("mongo index %s.%s: %w", collection, field, err)
	}
	return nil
}

func (r *MongoRepository) Find(ctx context.Context, collection string, query, projection Document) ([]Document, error) {
	opts := options.Find()
	if projection != nil {
		opts.SetProjection(bson.M(projection))
	}
	cur, err := r.db.Collection(collection).Find(ctx, bson.M(query), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)
	out := []Document{}
	for cur.Next(ctx) {
		var d Document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		out = append(out, d)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return out, nil
}

func (r *MongoRepository) Insert(ctx context.Context, collection string, docs []Document) error {
	payload := make([]any, 0, len(docs))
	for _, d := range docs {
		payload = append(payload, bson.M(d))
	}
	if _, err := r.db.Collection(collection).InsertMany(ctx, payload); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

func (r *MongoRepository) Update(ctx context.Context, collection string, query, patch Document) (int64, int64, error) {
	res, err := r.db.Collection(collection).UpdateMany(ctx, bson.M(query), bson.M(patch))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, 0, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return 0, 0, fmt.Errorf("mongo update: %w", err)
	}
	return res.MatchedCount, res.ModifiedCount, nil
}

func (r *MongoRepository) Delete(ctx context.Context, collection string, query Document) (int64, error) {
	res, err := r.db.Collection(collection).DeleteMany(ctx, bson.M(query))
	if err != nil {
		return 0, fmt.Errorf("mongo delete: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoRepository) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	stages := make(bson.A, 0, len(pipeline))
	for _, s := range pipeline {
		stages = append(stages, bson.M(s))
	}
	cur, err := r.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("mongo aggregate: %w", err)
	}
	defer cur.Close(ctx)
	out := []Document{}
	for cur.Next(ctx) {
		var d Document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		out = append(out, d)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return out, nil
}
