package active

import (
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

// MillisPerHour is the width of one activity bucket.
const MillisPerHour = 3600000

// SeriesLength is the number of hour points in the rolling activity series.
const SeriesLength = 24

// HourBucket maps an epoch-millisecond timestamp to its hour bucket.
func HourBucket(millis int64) int64 {
	return millis / MillisPerHour
}

// SameHour reports whether two timestamps fall into the same bucket. A
// message starts a new active hour for its device when it is the device's
// first message or when the previous message fails this check.
func SameHour(a, b int64) bool {
	return HourBucket(a) == HourBucket(b)
}

// Point is one hour of the activity series.
type Point struct {
	Time      int64 `json:"time"`
	ActiveNum int64 `json:"activeNum"`
}

// Series builds the 24-point hourly active-count series ending at the hour
// containing nowMillis, oldest point first and zero-filled for hours without
// a bucket. Buckets outside the window are ignored.
func Series(buckets []iotmodels.ActiveDevice, nowMillis int64) []Point {
	currentHour := HourBucket(nowMillis)
	currentTime := currentHour * MillisPerHour

	points := make([]Point, SeriesLength)
	for i := range points {
		points[i].Time = currentTime - MillisPerHour*int64(SeriesLength-1-i)
	}
	for _, bucket := range buckets {
		offset := bucket.Hour - currentHour + SeriesLength - 1
		if offset >= 0 && offset < SeriesLength {
			points[offset].ActiveNum = int64(len(bucket.ActiveDevice))
		}
	}
	return points
}

// TypeCount is one bar of the device-type histogram.
type TypeCount struct {
	Type iotmodels.DeviceType `json:"type"`
	Num  int                  `json:"num"`
}

// Histogram groups a user's devices by type. Only types that occur are
// reported, in first-seen order.
func Histogram(devices []iotmodels.Device) []TypeCount {
	counts := make(map[iotmodels.DeviceType]int)
	var order []iotmodels.DeviceType
	for _, device := range devices {
		if _, seen := counts[device.Type]; !seen {
			order = append(order, device.Type)
		}
		counts[device.Type]++
	}

	result := make([]TypeCount, 0, len(order))
	for _, t := range order {
		result = append(result, TypeCount{Type: t, Num: counts[t]})
	}
	return result
}

// MessageCount sums the message references across a user's devices.
func MessageCount(devices []iotmodels.Device) int {
	total := 0
	for _, device := range devices {
		total += len(device.Messages)
	}
	return total
}
