package implementation

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

type MongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{collection: db.Collection(UserCollection)}
}

// Insert creates a user. Username/email collisions surface as duplicate-key
// errors from the unique indexes.
func (r *MongoUserRepository) Insert(ctx context.Context, user *iotmodels.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Devices == nil {
		user.Devices = []iotmodels.Device{}
	}
	_, err := r.collection.InsertOne(ctx, user)
	return err
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*iotmodels.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*iotmodels.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*iotmodels.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByDeviceID resolves the owning user of an embedded device.
func (r *MongoUserRepository) FindByDeviceID(ctx context.Context, deviceID primitive.ObjectID) (*iotmodels.User, error) {
	return r.findOne(ctx, bson.M{"devices._id": deviceID})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*iotmodels.User, error) {
	var user iotmodels.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, username, email string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"username": username, "email": email},
	})
	return err
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"password": passwordHash},
	})
	return err
}

func (r *MongoUserRepository) PushDevice(ctx context.Context, userID primitive.ObjectID, device iotmodels.Device) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$push": bson.M{"devices": device},
	})
	return err
}

// UpdateDevice sets name, type and description of an embedded device in place.
func (r *MongoUserRepository) UpdateDevice(ctx context.Context, userID primitive.ObjectID, device iotmodels.Device) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID, "devices._id": device.ID},
		bson.M{"$set": bson.M{
			"devices.$.name":        device.Name,
			"devices.$.type":        device.Type,
			"devices.$.description": device.Description,
		}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *MongoUserRepository) PullDevice(ctx context.Context, userID, deviceID primitive.ObjectID) (bool, error) {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$pull": bson.M{"devices": bson.M{"_id": deviceID}},
	})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// PushMessageID appends a message id to the embedded device's list and returns
// the device as it was before the append. The findAndModify pre-image lets the
// caller read the previous last message without a separate racy query.
func (r *MongoUserRepository) PushMessageID(ctx context.Context, userID, deviceID, messageID primitive.ObjectID) (*iotmodels.Device, error) {
	var before iotmodels.User
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "devices._id": deviceID},
		bson.M{"$push": bson.M{"devices.$.messages": messageID}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return before.FindDevice(deviceID), nil
}

func (r *MongoUserRepository) SetDeviceMessages(ctx context.Context, userID, deviceID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error) {
	if messageIDs == nil {
		messageIDs = []primitive.ObjectID{}
	}
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID, "devices._id": deviceID},
		bson.M{"$set": bson.M{"devices.$.messages": messageIDs}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *MongoUserRepository) PullMessageIDs(ctx context.Context, userID, deviceID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID, "devices._id": deviceID},
		bson.M{"$pull": bson.M{"devices.$.messages": bson.M{"$in": messageIDs}}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *MongoUserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
