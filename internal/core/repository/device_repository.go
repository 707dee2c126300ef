package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gt06gateway/internal/core/model"
)

// DeviceRepository keeps a summary of every device seen, online or not.
type DeviceRepository interface {
	Touch(s model.DeviceSighting) error
	FindByIMEI(imei string) (*model.DeviceRecord, error)
	FindAll() ([]*model.DeviceRecord, error)
}

type MongoDeviceRepository struct {
	collection *mongo.Collection
}

func NewMongoDeviceRepository(db *mongo.Database) *MongoDeviceRepository {
	return &MongoDeviceRepository{
		collection: db.Collection("devices"),
	}
}

func (r *MongoDeviceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "imei", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Touch upserts the record, counting the frame and keeping the first-seen time of an existing one.
func (r *MongoDeviceRepository) Touch(s model.DeviceSighting) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	set := bson.M{"lastSeen": s.At, "lastPeer": s.Peer}
	if s.Status != nil {
		set["status"] = s.Status
	}
	if s.Position != nil {
		set["position"] = s.Position
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"firstSeen": s.At},
		"$inc":         bson.M{"frames": 1},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"imei": s.IMEI}, update, options.Update().SetUpsert(true))
	return err
}

func (r *MongoDeviceRepository) FindByIMEI(imei string) (*model.DeviceRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rec model.DeviceRecord
	err := r.collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MongoDeviceRepository) FindAll() ([]*model.DeviceRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "imei", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []*model.DeviceRecord
	if err = cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
