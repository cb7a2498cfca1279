package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/active"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/lock"
	config "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Config"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
)

// fakeUserRepo keeps a single user in memory and mirrors the conditional
// array updates of the Mongo implementation, including the pre-image
// semantics of PushMessageID.
type fakeUserRepo struct {
	mu   sync.Mutex
	user *iotmodels.User
}

func (r *fakeUserRepo) copyUser() *iotmodels.User {
	u := *r.user
	u.Devices = make([]iotmodels.Device, len(r.user.Devices))
	for i, d := range r.user.Devices {
		u.Devices[i] = d
		u.Devices[i].Messages = append([]primitive.ObjectID(nil), d.Messages...)
	}
	return &u
}

func (r *fakeUserRepo) Insert(_ context.Context, user *iotmodels.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = user
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id primitive.ObjectID) (*iotmodels.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.user == nil || r.user.ID != id {
		return nil, nil
	}
	return r.copyUser(), nil
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, _ string) (*iotmodels.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, _ string) (*iotmodels.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) FindByDeviceID(_ context.Context, deviceID primitive.ObjectID) (*iotmodels.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.user == nil || r.user.FindDevice(deviceID) == nil {
		return nil, nil
	}
	return r.copyUser(), nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, _ primitive.ObjectID, _, _ string) error {
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, _ primitive.ObjectID, _ string) error {
	return nil
}

func (r *fakeUserRepo) PushDevice(_ context.Context, _ primitive.ObjectID, device iotmodels.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user.Devices = append(r.user.Devices, device)
	return nil
}

func (r *fakeUserRepo) UpdateDevice(_ context.Context, _ primitive.ObjectID, device iotmodels.Device) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.user.FindDevice(device.ID)
	if d == nil {
		return false, nil
	}
	d.Name, d.Type, d.Description = device.Name, device.Type, device.Description
	return true, nil
}

func (r *fakeUserRepo) PullDevice(_ context.Context, _ primitive.ObjectID, deviceID primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.user.Devices {
		if d.ID == deviceID {
			r.user.Devices = append(r.user.Devices[:i], r.user.Devices[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepo) PushMessageID(_ context.Context, userID, deviceID, messageID primitive.ObjectID) (*iotmodels.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.user == nil || r.user.ID != userID {
		return nil, nil
	}
	d := r.user.FindDevice(deviceID)
	if d == nil {
		return nil, nil
	}
	before := *d
	before.Messages = append([]primitive.ObjectID(nil), d.Messages...)
	d.Messages = append(d.Messages, messageID)
	return &before, nil
}

func (r *fakeUserRepo) SetDeviceMessages(_ context.Context, _ primitive.ObjectID, deviceID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.user.FindDevice(deviceID)
	if d == nil {
		return false, nil
	}
	d.Messages = append([]primitive.ObjectID(nil), messageIDs...)
	return true, nil
}

func (r *fakeUserRepo) PullMessageIDs(_ context.Context, _ primitive.ObjectID, deviceID primitive.ObjectID, messageIDs []primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.user.FindDevice(deviceID)
	if d == nil {
		return false, nil
	}
	remove := make(map[primitive.ObjectID]bool, len(messageIDs))
	for _, id := range messageIDs {
		remove[id] = true
	}
	kept := d.Messages[:0]
	for _, id := range d.Messages {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	d.Messages = kept
	return true, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, _ primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = nil
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[primitive.ObjectID]*iotmodels.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[primitive.ObjectID]*iotmodels.Message)}
}

func (r *fakeMessageRepo) Insert(_ context.Context, message *iotmodels.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := *message
	r.messages[m.ID] = &m
	return nil
}

func (r *fakeMessageRepo) FindByID(_ context.Context, id primitive.ObjectID) (*iotmodels.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMessageRepo) FindPageByDeviceID(_ context.Context, deviceID primitive.ObjectID, _, _ int64, _ bool) ([]iotmodels.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []iotmodels.Message
	for _, m := range r.messages {
		if m.DeviceID == deviceID {
			result = append(result, *m)
		}
	}
	return result, int64(len(result)), nil
}

func (r *fakeMessageRepo) DeleteAllByDeviceID(_ context.Context, deviceID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := int64(0)
	for id, m := range r.messages {
		if m.DeviceID == deviceID {
			delete(r.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeMessageRepo) DeleteByIDs(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := int64(0)
	for _, id := range ids {
		if _, ok := r.messages[id]; ok {
			delete(r.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *fakeMessageRepo) remove(id primitive.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
}

// fakeActiveRepo mirrors the $addToSet upsert: one bucket per hour, each
// device at most once per bucket.
type fakeActiveRepo struct {
	mu      sync.Mutex
	buckets map[int64][]primitive.ObjectID
}

func newFakeActiveRepo() *fakeActiveRepo {
	return &fakeActiveRepo{buckets: make(map[int64][]primitive.ObjectID)}
}

func (r *fakeActiveRepo) AddActive(_ context.Context, _ primitive.ObjectID, hour int64, deviceID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.buckets[hour] {
		if id == deviceID {
			return nil
		}
	}
	r.buckets[hour] = append(r.buckets[hour], deviceID)
	return nil
}

func (r *fakeActiveRepo) FindByUserAndHour(_ context.Context, userID primitive.ObjectID, hour int64) (*iotmodels.ActiveDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	devices, ok := r.buckets[hour]
	if !ok {
		return nil, nil
	}
	return &iotmodels.ActiveDevice{
		UserID:       userID,
		Hour:         hour,
		ActiveDevice: append([]primitive.ObjectID(nil), devices...),
	}, nil
}

func (r *fakeActiveRepo) FindAllByUser(_ context.Context, userID primitive.ObjectID) ([]iotmodels.ActiveDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []iotmodels.ActiveDevice
	for hour, devices := range r.buckets {
		result = append(result, iotmodels.ActiveDevice{
			UserID:       userID,
			Hour:         hour,
			ActiveDevice: append([]primitive.ObjectID(nil), devices...),
		})
	}
	return result, nil
}

func (r *fakeActiveRepo) PullDeviceFromAll(_ context.Context, _ primitive.ObjectID, deviceID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hour, devices := range r.buckets {
		kept := devices[:0]
		for _, id := range devices {
			if id != deviceID {
				kept = append(kept, id)
			}
		}
		r.buckets[hour] = kept
	}
	return nil
}

func (r *fakeActiveRepo) DeleteAllByUser(_ context.Context, _ primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[int64][]primitive.ObjectID)
	return nil
}

func (r *fakeActiveRepo) snapshot() map[int64][]primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64][]primitive.ObjectID, len(r.buckets))
	for hour, devices := range r.buckets {
		out[hour] = append([]primitive.ObjectID(nil), devices...)
	}
	return out
}

func newMessageTestFixture() (*fakeUserRepo, *fakeMessageRepo, *fakeActiveRepo, *iotmodels.User, primitive.ObjectID, *gin.Engine, *lock.KeyedMutex) {
	gin.SetMode(gin.TestMode)

	deviceID := primitive.NewObjectID()
	user := &iotmodels.User{
		ID:       primitive.NewObjectID(),
		Username: "sensor-owner",
		Email:    "owner@example.com",
		Devices: []iotmodels.Device{
			{ID: deviceID, Name: "greenhouse", Type: iotmodels.DeviceTypeSensor, Messages: []primitive.ObjectID{}},
		},
	}
	userRepo := &fakeUserRepo{user: user}
	messageRepo := newFakeMessageRepo()
	activeRepo := newFakeActiveRepo()
	locks := lock.NewKeyedMutex()
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})

	controller := NewMessageController(userRepo, messageRepo, activeRepo, nil, locks, log)

	router := gin.New()
	router.POST("/api/message/create", controller.Create)
	router.DELETE("/api/message/delete/all",
		func(ctx *gin.Context) { ctx.Set("current_user", user) },
		controller.DeleteAll)

	return userRepo, messageRepo, activeRepo, user, deviceID, router, locks
}

func postMessage(t *testing.T, router *gin.Engine, deviceID string, ts int64) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"deviceID":%q,"info":"temperature","value":21,"time":%d}`, deviceID, ts)
	req := httptest.NewRequest(http.MethodPost, "/api/message/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateMessageActiveHourBuckets(t *testing.T) {
	userRepo, messageRepo, activeRepo, _, deviceID, router, _ := newMessageTestFixture()

	base := int64(500 * active.MillisPerHour)

	// Three messages inside hour 500, one in hour 501.
	timestamps := []int64{base, base + 1000, base + 2000, base + active.MillisPerHour}
	for _, ts := range timestamps {
		if w := postMessage(t, router, deviceID.Hex(), ts); w.Code != http.StatusCreated {
			t.Fatalf("create at %d: expected 201, got %d (%s)", ts, w.Code, w.Body.String())
		}
	}

	buckets := activeRepo.snapshot()
	if len(buckets) != 2 {
		t.Fatalf("expected buckets for hours 500 and 501, got %v", buckets)
	}
	for _, hour := range []int64{500, 501} {
		devices, ok := buckets[hour]
		if !ok {
			t.Fatalf("missing bucket for hour %d", hour)
		}
		if len(devices) != 1 || devices[0] != deviceID {
			t.Fatalf("hour %d: expected the device exactly once, got %v", hour, devices)
		}
	}

	if got := messageRepo.count(); got != 4 {
		t.Fatalf("expected 4 stored messages, got %d", got)
	}
	device := userRepo.user.FindDevice(deviceID)
	if len(device.Messages) != 4 {
		t.Fatalf("expected 4 message refs on the device, got %d", len(device.Messages))
	}
}

func TestCreateMessagePrunedPreviousStartsActiveHour(t *testing.T) {
	userRepo, messageRepo, activeRepo, _, deviceID, router, _ := newMessageTestFixture()

	base := int64(500 * active.MillisPerHour)
	if w := postMessage(t, router, deviceID.Hex(), base); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	// Expire the bucket and prune the stored message, as the TTL index and a
	// bulk delete would. The device's message list still references it.
	activeRepo.mu.Lock()
	delete(activeRepo.buckets, 500)
	activeRepo.mu.Unlock()
	previousID := userRepo.user.FindDevice(deviceID).Messages[0]
	messageRepo.remove(previousID)

	if w := postMessage(t, router, deviceID.Hex(), base+1000); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	buckets := activeRepo.snapshot()
	if len(buckets[500]) != 1 || buckets[500][0] != deviceID {
		t.Fatalf("pruned previous message should count the device for the hour, got %v", buckets)
	}
}

func TestCreateMessageUnknownDevice(t *testing.T) {
	_, messageRepo, activeRepo, _, _, router, _ := newMessageTestFixture()

	w := postMessage(t, router, primitive.NewObjectID().Hex(), 1000)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown device, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Device not found.") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if messageRepo.count() != 0 || len(activeRepo.snapshot()) != 0 {
		t.Fatal("rejected message must not leave records behind")
	}
}

func TestDeleteAllSerializesOnUserLock(t *testing.T) {
	userRepo, messageRepo, _, user, deviceID, router, locks := newMessageTestFixture()

	base := int64(500 * active.MillisPerHour)
	if w := postMessage(t, router, deviceID.Hex(), base); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	locks.Lock(user.ID.Hex())
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodDelete, "/api/message/delete/all?deviceID="+deviceID.Hex(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		done <- w
	}()

	select {
	case <-done:
		t.Fatal("delete-all must wait for the user lock")
	case <-time.After(50 * time.Millisecond):
	}

	locks.Unlock(user.ID.Hex())
	w := <-done
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if messageRepo.count() != 0 {
		t.Fatalf("expected all messages deleted, got %d", messageRepo.count())
	}
	if got := len(userRepo.user.FindDevice(deviceID).Messages); got != 0 {
		t.Fatalf("expected the device message list reset, got %d refs", got)
	}
}
