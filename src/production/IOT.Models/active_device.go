package iotmodels

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActiveDevice is one hour bucket of distinct active devices for a user.
// At most one bucket exists per (user, hour); a TTL index on Expire removes
// buckets about a day after their hour ends.
type ActiveDevice struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       primitive.ObjectID   `bson:"userID" json:"userID"`
	Hour         int64                `bson:"timestamp" json:"timestamp"`
	ActiveDevice []primitive.ObjectID `bson:"activeDevice" json:"activeDevice"`
	Expire       primitive.DateTime   `bson:"expire" json:"expire"`
}
