package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gt06gateway/internal/core/model"
)

// CommandRepository keeps the single pending command per IMEI across restarts.
type CommandRepository interface {
	Save(cmd *model.PendingCommand) error
	Delete(imei string) error
	FindByIMEI(imei string) (*model.PendingCommand, error)
	FindAll() ([]*model.PendingCommand, error)
}

type MongoCommandRepository struct {
	collection *mongo.Collection
}

func NewMongoCommandRepository(db *mongo.Database) *MongoCommandRepository {
	return &MongoCommandRepository{
		collection: db.Collection("pending_commands"),
	}
}

// EnsureIndexes creates the unique IMEI index.
func (r *MongoCommandRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "imei", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Save replaces the pending command of the device.
func (r *MongoCommandRepository) Save(cmd *model.PendingCommand) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx, bson.M{"imei": cmd.IMEI}, cmd, options.Replace().SetUpsert(true))
	return err
}

func (r *MongoCommandRepository) Delete(imei string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"imei": imei})
	return err
}

func (r *MongoCommandRepository) FindByIMEI(imei string) (*model.PendingCommand, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cmd model.PendingCommand
	err := r.collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&cmd)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (r *MongoCommandRepository) FindAll() ([]*model.PendingCommand, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var cmds []*model.PendingCommand
	if err = cursor.All(ctx, &cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}
