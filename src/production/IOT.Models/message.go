package iotmodels

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a device-reported event. Immutable once created except for deletion.
// Ownership is derived through the device: the record carries no user id.
type Message struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DeviceID primitive.ObjectID `bson:"deviceID" json:"deviceID"`
	Info     string             `bson:"info" json:"info"`
	Value    int64              `bson:"value" json:"value"`
	Alert    bool               `bson:"alert" json:"alert"`
	Lng      float64            `bson:"lng" json:"lng"`
	Lat      float64            `bson:"lat" json:"lat"`
	Time     int64              `bson:"timestamp" json:"time"`
}
