package iotmodels

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the root aggregate: a user exclusively owns its embedded devices,
// and each device references its messages by id.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email" json:"email"`
	Password string             `bson:"password" json:"-"`
	Devices  []Device           `bson:"devices" json:"devices"`
}

// Device is embedded in its owning User document.
type Device struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	Name        string               `bson:"name" json:"name"`
	Type        DeviceType           `bson:"type" json:"type"`
	Description string               `bson:"description" json:"description"`
	Messages    []primitive.ObjectID `bson:"messages" json:"messages"`
}

// FindDevice returns the embedded device with the given id, or nil.
func (u *User) FindDevice(deviceID primitive.ObjectID) *Device {
	for i := range u.Devices {
		if u.Devices[i].ID == deviceID {
			return &u.Devices[i]
		}
	}
	return nil
}
