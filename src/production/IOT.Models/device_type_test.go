package iotmodels

import "testing"

func TestDeviceTypeValid(t *testing.T) {
	for v := DeviceTypeSensor; v <= DeviceTypeOther; v++ {
		if !v.Valid() {
			t.Fatalf("type %d should be valid", v)
		}
	}
	if DeviceType(-1).Valid() {
		t.Fatal("negative type should be invalid")
	}
	if DeviceType(8).Valid() {
		t.Fatal("type 8 should be invalid")
	}
}

func TestDeviceTypeString(t *testing.T) {
	tests := []struct {
		value DeviceType
		name  string
	}{
		{DeviceTypeSensor, "sensor"},
		{DeviceTypeSmartHome, "smart-home"},
		{DeviceTypeOther, "other"},
		{DeviceType(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.value.String(); got != tc.name {
			t.Fatalf("DeviceType(%d).String() = %q, want %q", tc.value, got, tc.name)
		}
	}
}
