package interfaces

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

type ActiveRepository interface {
	// AddActive adds the device to the (user, hour) bucket, creating the
	// bucket with its expiry when absent. Idempotent for a given device.
	AddActive(ctx context.Context, userID primitive.ObjectID, hour int64, deviceID primitive.ObjectID) error

	// FindByUserAndHour returns (nil, nil) when no bucket exists.
	FindByUserAndHour(ctx context.Context, userID primitive.ObjectID, hour int64) (*iotmodels.ActiveDevice, error)
	FindAllByUser(ctx context.Context, userID primitive.ObjectID) ([]iotmodels.ActiveDevice, error)

	// PullDeviceFromAll removes the device from every bucket of the user.
	PullDeviceFromAll(ctx context.Context, userID, deviceID primitive.ObjectID) error

	DeleteAllByUser(ctx context.Context, userID primitive.ObjectID) error
}
