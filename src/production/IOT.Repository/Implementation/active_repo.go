package implementation

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

type MongoActiveRepository struct {
	collection *mongo.Collection
}

func NewMongoActiveRepository(db *mongo.Database) *MongoActiveRepository {
	return &MongoActiveRepository{collection: db.Collection(ActiveCollection)}
}

// AddActive adds the device to the (user, hour) bucket with a single upsert:
// $addToSet keeps the set semantics and $setOnInsert stamps the expiry only
// when the bucket is created. The hour-end date feeds the TTL index.
func (r *MongoActiveRepository) AddActive(ctx context.Context, userID primitive.ObjectID, hour int64, deviceID primitive.ObjectID) error {
	expire := primitive.NewDateTimeFromTime(time.UnixMilli((hour + 1) * 3600000).UTC())
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"userID": userID, "timestamp": hour},
		bson.M{
			"$addToSet":    bson.M{"activeDevice": deviceID},
			"$setOnInsert": bson.M{"expire": expire},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoActiveRepository) FindByUserAndHour(ctx context.Context, userID primitive.ObjectID, hour int64) (*iotmodels.ActiveDevice, error) {
	var bucket iotmodels.ActiveDevice
	err := r.collection.FindOne(ctx, bson.M{"userID": userID, "timestamp": hour}).Decode(&bucket)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &bucket, nil
}

func (r *MongoActiveRepository) FindAllByUser(ctx context.Context, userID primitive.ObjectID) ([]iotmodels.ActiveDevice, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userID": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var buckets []iotmodels.ActiveDevice
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (r *MongoActiveRepository) PullDeviceFromAll(ctx context.Context, userID, deviceID primitive.ObjectID) error {
	_, err := r.collection.UpdateMany(ctx, bson.M{"userID": userID}, bson.M{
		"$pull": bson.M{"activeDevice": deviceID},
	})
	return err
}

func (r *MongoActiveRepository) DeleteAllByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"userID": userID})
	return err
}
