package interfaces

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

type UserRepository interface {
	// Create user. A username or email collision surfaces as a duplicate-key
	// error from the store's unique indexes.
	Insert(ctx context.Context, user *iotmodels.User) error

	// Read users. All lookups return (nil, nil) when no document matches.
	FindByID(ctx context.Context, id primitive.ObjectID) (*iotmodels.User, error)
	FindByUsername(ctx context.Context, username string) (*iotmodels.User, error)
	FindByEmail(ctx context.Context, email string) (*iotmodels.User, error)
	FindByDeviceID(ctx context.Context, deviceID primitive.ObjectID) (*iotmodels.User, error)

	// Update user
	UpdateProfile(ctx context.Context, id primitive.ObjectID, username, email string) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error

	// Device list mutations. All of them are single-document conditional
	// updates; the bool result reports whether the device matched.
	PushDevice(ctx context.Context, userID primitive.ObjectID, device iotmodels.Device) error
	UpdateDevice(ctx context.Context, userID primitive.ObjectID, device iotmodels.Device) (bool, error)
	PullDevice(ctx context.Context, userID, deviceID primitive.ObjectID) (bool, error)

	// Message-id list mutations on an embedded device. PushMessageID returns
	// the device state as it was before the append, so the caller can inspect
	// the previous message without racing a concurrent writer.
	PushMessageID(ctx context.Context, userID, deviceID, messageID primitive.ObjectID) (*iotmodels.Device, error)
	SetDeviceMessages(ctx context.Context, userID, deviceID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error)
	PullMessageIDs(ctx context.Context, userID, deviceID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error)

	// Delete user
	Delete(ctx context.Context, id primitive.ObjectID) error
}
