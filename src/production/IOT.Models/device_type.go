package iotmodels

// DeviceType is the closed enumeration of device kinds.
type DeviceType int16

const (
	DeviceTypeSensor DeviceType = iota
	DeviceTypeSmartHome
	DeviceTypeActuator
	DeviceTypeController
	DeviceTypeGateway
	DeviceTypeTerminal
	DeviceTypeEmbedded
	DeviceTypeOther
)

// Valid reports whether t is one of the defined device kinds.
func (t DeviceType) Valid() bool {
	return t >= DeviceTypeSensor && t <= DeviceTypeOther
}

// String returns the device kind name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeSensor:
		return "sensor"
	case DeviceTypeSmartHome:
		return "smart-home"
	case DeviceTypeActuator:
		return "actuator"
	case DeviceTypeController:
		return "controller"
	case DeviceTypeGateway:
		return "gateway"
	case DeviceTypeTerminal:
		return "terminal"
	case DeviceTypeEmbedded:
		return "embedded"
	case DeviceTypeOther:
		return "other"
	default:
		return "unknown"
	}
}
