package active

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

func TestHourBucket(t *testing.T) {
	tests := []struct {
		name   string
		millis int64
		bucket int64
	}{
		{name: "zero", millis: 0, bucket: 0},
		{name: "just under an hour", millis: MillisPerHour - 1, bucket: 0},
		{name: "exactly one hour", millis: MillisPerHour, bucket: 1},
		{name: "mid hour", millis: 3*MillisPerHour + 1234, bucket: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HourBucket(tc.millis); got != tc.bucket {
				t.Fatalf("expected bucket %d, got %d", tc.bucket, got)
			}
		})
	}
}

func TestSameHour(t *testing.T) {
	base := int64(100 * MillisPerHour)
	if !SameHour(base, base+MillisPerHour-1) {
		t.Fatal("timestamps within one hour should share a bucket")
	}
	if SameHour(base, base+MillisPerHour) {
		t.Fatal("timestamps an hour apart should not share a bucket")
	}
}

func TestSeriesZeroFilled(t *testing.T) {
	now := int64(1000*MillisPerHour + 42)
	points := Series(nil, now)
	if len(points) != SeriesLength {
		t.Fatalf("expected %d points, got %d", SeriesLength, len(points))
	}
	if points[SeriesLength-1].Time != 1000*MillisPerHour {
		t.Fatalf("last point should be the current hour, got %d", points[SeriesLength-1].Time)
	}
	if points[0].Time != (1000-23)*MillisPerHour {
		t.Fatalf("first point should be 23 hours back, got %d", points[0].Time)
	}
	for i, p := range points {
		if p.ActiveNum != 0 {
			t.Fatalf("point %d should be zero-filled, got %d", i, p.ActiveNum)
		}
	}
}

func TestSeriesPlacesBuckets(t *testing.T) {
	now := int64(1000 * MillisPerHour)
	device := primitive.NewObjectID()
	buckets := []iotmodels.ActiveDevice{
		{Hour: 1000, ActiveDevice: []primitive.ObjectID{device}},
		{Hour: 999, ActiveDevice: []primitive.ObjectID{device, primitive.NewObjectID()}},
		{Hour: 977, ActiveDevice: []primitive.ObjectID{device}},
		// Outside the window: both too old and in the future.
		{Hour: 976, ActiveDevice: []primitive.ObjectID{device}},
		{Hour: 1001, ActiveDevice: []primitive.ObjectID{device}},
	}
	points := Series(buckets, now)
	if points[23].ActiveNum != 1 {
		t.Fatalf("current hour should have 1 active device, got %d", points[23].ActiveNum)
	}
	if points[22].ActiveNum != 2 {
		t.Fatalf("previous hour should have 2 active devices, got %d", points[22].ActiveNum)
	}
	if points[0].ActiveNum != 1 {
		t.Fatalf("oldest hour should have 1 active device, got %d", points[0].ActiveNum)
	}
	total := int64(0)
	for _, p := range points {
		total += p.ActiveNum
	}
	if total != 4 {
		t.Fatalf("out-of-window buckets must be ignored, series total %d", total)
	}
}

func TestHistogram(t *testing.T) {
	devices := []iotmodels.Device{
		{Type: iotmodels.DeviceTypeSensor},
		{Type: iotmodels.DeviceTypeGateway},
		{Type: iotmodels.DeviceTypeSensor},
	}
	hist := Histogram(devices)
	if len(hist) != 2 {
		t.Fatalf("expected 2 histogram entries, got %d", len(hist))
	}
	if hist[0].Type != iotmodels.DeviceTypeSensor || hist[0].Num != 2 {
		t.Fatalf("unexpected first entry: %+v", hist[0])
	}
	if hist[1].Type != iotmodels.DeviceTypeGateway || hist[1].Num != 1 {
		t.Fatalf("unexpected second entry: %+v", hist[1])
	}
}

func TestMessageCount(t *testing.T) {
	devices := []iotmodels.Device{
		{Messages: []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()}},
		{},
		{Messages: []primitive.ObjectID{primitive.NewObjectID()}},
	}
	if got := MessageCount(devices); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}
