package interfaces

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

type MessageRepository interface {
	Insert(ctx context.Context, message *iotmodels.Message) error

	// FindByID returns (nil, nil) when no document matches.
	FindByID(ctx context.Context, id primitive.ObjectID) (*iotmodels.Message, error)

	// FindPageByDeviceID returns one page of a device's messages ordered by
	// timestamp, plus the total count across all pages.
	FindPageByDeviceID(ctx context.Context, deviceID primitive.ObjectID, pageNum, pageSize int64, timeAsc bool) ([]iotmodels.Message, int64, error)

	DeleteAllByDeviceID(ctx context.Context, deviceID primitive.ObjectID) (int64, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}
