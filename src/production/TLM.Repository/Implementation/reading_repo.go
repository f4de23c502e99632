package implementation

import (
	"context"
	"fmt"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoReadingRepository stores the time-series log in a single collection
type MongoReadingRepository struct {
	coll *mongo.Collection
}

func NewMongoReadingRepository(coll *mongo.Collection) *MongoReadingRepository {
	return &MongoReadingRepository{coll: coll}
}

// EnsureIndexes creates the query index and the TTL index that enforces retention
func (r *MongoReadingRepository) EnsureIndexes(ctx context.Context, retention time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "device_id", Value: 1}, {Key: "pin", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("device_pin_ts"),
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("reading_ttl").SetExpireAfterSeconds(int32(retention / time.Second)),
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create reading indexes: %w", err)
	}
	return nil
}

func (r *MongoReadingRepository) Append(ctx context.Context, rd *telemetry_models.SensorReading) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, rd)
	return err
}

func (r *MongoReadingRepository) Query(ctx context.Context, q telemetry_models.ReadingQuery) ([]telemetry_models.SensorReading, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"device_id": q.DeviceID}
	if q.Pin != "" {
		filter["pin"] = q.Pin
	}
	window := bson.M{}
	if !q.From.IsZero() {
		window["$gte"] = q.From
	}
	if !q.To.IsZero() {
		window["$lte"] = q.To
	}
	if len(window) > 0 {
		filter["timestamp"] = window
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer cursor.Close(ctx)

	readings := make([]telemetry_models.SensorReading, 0)
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	return readings, nil
}

// PurgeBefore complements the TTL index, whose monitor only runs once a minute
func (r *MongoReadingRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := r.coll.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
