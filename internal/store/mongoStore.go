package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/404minds/obd-receiver/internal/types"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo dials uri and returns the named collection.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*mongo.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}
	return client.Database(database).Collection(collection), nil
}

type MongoStore struct {
	queue
	collection *mongo.Collection
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{queue: newQueue(), collection: collection}
}

func (s *MongoStore) Process(ctx context.Context) {
	s.drain(ctx, "mongo", s.save)
}

func (s *MongoStore) save(ctx context.Context, status types.DeviceStatus) error {
	doc, err := toBson(status)
	if err != nil {
		return err
	}
	_, err = s.collection.InsertOne(ctx, doc)
	return err
}

// toBson keeps the JSON field names and formatting, and stores received_at as
// a BSON date so the collection can be range-queried.
func toBson(status types.DeviceStatus) (bson.M, error) {
	b, err := json.Marshal(status)
	if err != nil {
		return nil, errors.Wrap(err, "marshal device status")
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(b, false, &doc); err != nil {
		return nil, errors.Wrap(err, "convert device status to bson")
	}
	doc["received_at"] = status.ReceivedAt.UTC()
	return doc, nil
}
