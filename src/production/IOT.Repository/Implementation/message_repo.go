package implementation

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

type MongoMessageRepository struct {
	collection *mongo.Collection
}

func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{collection: db.Collection(MessageCollection)}
}

func (r *MongoMessageRepository) Insert(ctx context.Context, message *iotmodels.Message) error {
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, message)
	return err
}

func (r *MongoMessageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*iotmodels.Message, error) {
	var message iotmodels.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// FindPageByDeviceID returns one page of a device's messages ordered by
// timestamp, plus the total count across all pages.
func (r *MongoMessageRepository) FindPageByDeviceID(ctx context.Context, deviceID primitive.ObjectID, pageNum, pageSize int64, timeAsc bool) ([]iotmodels.Message, int64, error) {
	filter := bson.M{"deviceID": deviceID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	order := -1
	if timeAsc {
		order = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: order}}).
		SetSkip(pageNum * pageSize).
		SetLimit(pageSize)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var messages []iotmodels.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *MongoMessageRepository) DeleteAllByDeviceID(ctx context.Context, deviceID primitive.ObjectID) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"deviceID": deviceID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *MongoMessageRepository) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
