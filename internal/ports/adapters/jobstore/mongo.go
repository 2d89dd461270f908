package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

// Mongo stores one document per job keyed by id. Put is an upserting
// ReplaceOne so documents are never patched field by field.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *logger.Logger
}

func NewMongo(ctx context.Context, uri, database string, log *logger.Logger) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("missing MONGO_URI")
	}
	if database == "" {
		database = "shortify"
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(database).Collection("jobs")
	_, err = coll.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return &Mongo{client: client, coll: coll, log: logger.OrNop(log).With("service", "MongoJobStore")}, nil
}

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }

func (m *Mongo) Put(ctx context.Context, rec types.JobRecord) error {
	if rec.ID == "" {
		return apperr.New(apperr.KindInvalidArgument, "job id is required")
	}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo put job %s: %w", rec.ID, err)
	}
	return nil
}

func (m *Mongo) Get(ctx context.Context, id string) (types.JobRecord, error) {
	var rec types.JobRecord
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.JobRecord{}, apperr.New(apperr.KindNotFound, "job %q", id)
	}
	if err != nil {
		return types.JobRecord{}, fmt.Errorf("mongo get job %s: %w", id, err)
	}
	return rec, nil
}

// Update replaces the document only if it still carries the updated_at
// that fn saw, retrying otherwise. Writers always move updated_at forward.
func (m *Mongo) Update(ctx context.Context, id string, fn func(types.JobRecord) (types.JobRecord, error)) (types.JobRecord, error) {
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cur, err := m.Get(ctx, id)
		if err != nil {
			return types.JobRecord{}, err
		}
		next, err := fn(cur)
		if errors.Is(err, ports.ErrSkipUpdate) {
			return cur, nil
		}
		if err != nil {
			return types.JobRecord{}, err
		}
		next.ID = id
		if !next.UpdatedAt.After(cur.UpdatedAt) {
			next.UpdatedAt = cur.UpdatedAt.Add(time.Millisecond)
		}
		res, err := m.coll.ReplaceOne(ctx, bson.M{"_id": id, "updated_at": cur.UpdatedAt}, next)
		if err != nil {
			return types.JobRecord{}, fmt.Errorf("mongo update job %s: %w", id, err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
		m.log.Debug("job changed during update, retrying", "id", id, "attempt", attempt+1)
	}
	return types.JobRecord{}, fmt.Errorf("mongo update job %s: too much contention", id)
}

func (m *Mongo) List(ctx context.Context, limit int) ([]types.JobRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list jobs: %w", err)
	}
	defer cur.Close(ctx)

	out := []types.JobRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo decode jobs: %w", err)
	}
	return out, nil
}
