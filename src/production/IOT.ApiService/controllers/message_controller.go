package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/active"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/lock"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/middleware"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
	interfaces "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Interfaces"
)

// MessageController handles message ingest and the activity aggregation it
// feeds.
type MessageController struct {
	userRepo       interfaces.UserRepository
	messageRepo    interfaces.MessageRepository
	activeRepo     interfaces.ActiveRepository
	authMiddleware *middleware.AuthMiddleware
	userLocks      *lock.KeyedMutex
	logger         *logger.Logger
}

// NewMessageController creates a new message controller. userLocks is shared
// with the device and user controllers so every multi-collection sequence for
// one user serializes on the same key.
func NewMessageController(
	userRepo interfaces.UserRepository,
	messageRepo interfaces.MessageRepository,
	activeRepo interfaces.ActiveRepository,
	authMiddleware *middleware.AuthMiddleware,
	userLocks *lock.KeyedMutex,
	logger *logger.Logger,
) *MessageController {
	return &MessageController{
		userRepo:       userRepo,
		messageRepo:    messageRepo,
		activeRepo:     activeRepo,
		authMiddleware: authMiddleware,
		userLocks:      userLocks,
		logger:         logger,
	}
}

// RegisterRoutes registers the message routes with Gin. Create is
// device-scoped and deliberately unauthenticated: devices report without a
// user session.
func (c *MessageController) RegisterRoutes(router *gin.Engine) {
	messages := router.Group("/api/message")
	{
		messages.POST("/create", c.Create)
		messages.GET("/list", c.authMiddleware.Authenticate(), c.List)
		messages.DELETE("/delete/all", c.authMiddleware.Authenticate(), c.DeleteAll)
		messages.DELETE("/delete/bulk", c.authMiddleware.Authenticate(), c.DeleteBulk)
	}
}

type CreateMessageRequest struct {
	DeviceID string  `json:"deviceID"`
	Info     string  `json:"info"`
	Value    int64   `json:"value"`
	Alert    bool    `json:"alert"`
	Lng      float64 `json:"lng"`
	Lat      float64 `json:"lat"`
	Time     *int64  `json:"time"`
}

// Create records a device-reported message and maintains the hourly
// active-device bucket. A device counts as active for an hour exactly once:
// the message starts a new active hour when it is the device's first message
// or when the previous message fell into a different hour bucket. The
// previous message comes from the device's own message list, read atomically
// as the pre-image of the append.
func (c *MessageController) Create(ctx *gin.Context) {
	var req CreateMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}

	deviceID, err := primitive.ObjectIDFromHex(req.DeviceID)
	if err != nil {
		c.logger.WithField("device_id", req.DeviceID).Warn("Create message error: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	user, err := c.userRepo.FindByDeviceID(ctx.Request.Context(), deviceID)
	if err != nil {
		c.internalError(ctx, err, "Create message failed")
		return
	}
	if user == nil {
		c.logger.WithField("device_id", req.DeviceID).Warn("Create message error: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	timestamp := time.Now().UnixMilli()
	if req.Time != nil {
		timestamp = *req.Time
	}
	message := &iotmodels.Message{
		ID:       primitive.NewObjectID(),
		DeviceID: deviceID,
		Info:     req.Info,
		Value:    req.Value,
		Alert:    req.Alert,
		Lng:      req.Lng,
		Lat:      req.Lat,
		Time:     timestamp,
	}

	// The append, the insert and the bucket update span three documents;
	// serialize them per user aggregate.
	key := user.ID.Hex()
	c.userLocks.Lock(key)
	defer c.userLocks.Unlock(key)

	deviceBefore, err := c.userRepo.PushMessageID(ctx.Request.Context(), user.ID, deviceID, message.ID)
	if err != nil {
		c.internalError(ctx, err, "Create message failed")
		return
	}
	if deviceBefore == nil {
		c.logger.WithField("device_id", req.DeviceID).Warn("Create message error: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	if err := c.messageRepo.Insert(ctx.Request.Context(), message); err != nil {
		c.internalError(ctx, err, "Create message failed")
		return
	}

	newActiveHour := len(deviceBefore.Messages) == 0
	if !newActiveHour {
		previousID := deviceBefore.Messages[len(deviceBefore.Messages)-1]
		previous, err := c.messageRepo.FindByID(ctx.Request.Context(), previousID)
		if err != nil {
			c.internalError(ctx, err, "Create message failed")
			return
		}
		// A pruned previous message means its hour is unknown; count the
		// device for this hour, the bucket's set semantics absorb repeats.
		newActiveHour = previous == nil || !active.SameHour(previous.Time, message.Time)
	}
	if newActiveHour {
		hour := active.HourBucket(message.Time)
		if err := c.activeRepo.AddActive(ctx.Request.Context(), user.ID, hour, deviceID); err != nil {
			c.internalError(ctx, err, "Create message failed")
			return
		}
	}

	c.logger.WithField("device_id", req.DeviceID).Debug("Create message success")
	ctx.JSON(http.StatusCreated, iotmodels.OK(http.StatusCreated, nil))
}

type MessageListData struct {
	ID    string  `json:"id"`
	Info  string  `json:"info"`
	Value int64   `json:"value"`
	Alert bool    `json:"alert"`
	Lng   float64 `json:"lng"`
	Lat   float64 `json:"lat"`
	Time  int64   `json:"time"`
}

type MessageList struct {
	Messages []MessageListData `json:"messages"`
	Total    int64             `json:"total"`
}

// List returns one page of a device's messages with the total count.
func (c *MessageController) List(ctx *gin.Context) {
	deviceID, err := primitive.ObjectIDFromHex(ctx.Query("deviceID"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}
	pageNum, err := strconv.ParseInt(ctx.Query("pageNum"), 10, 64)
	if err != nil || pageNum < 0 {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid page number."))
		return
	}
	pageSize, err := strconv.ParseInt(ctx.Query("pageSize"), 10, 64)
	if err != nil || pageSize <= 0 {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid page size."))
		return
	}
	timeAsc, err := strconv.ParseBool(ctx.DefaultQuery("timeAsc", "false"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid timeAsc value."))
		return
	}

	messages, total, err := c.messageRepo.FindPageByDeviceID(ctx.Request.Context(), deviceID, pageNum, pageSize, timeAsc)
	if err != nil {
		c.internalError(ctx, err, "Get message list failed")
		return
	}

	data := make([]MessageListData, 0, len(messages))
	for _, m := range messages {
		data = append(data, MessageListData{
			ID:    m.ID.Hex(),
			Info:  m.Info,
			Value: m.Value,
			Alert: m.Alert,
			Lng:   m.Lng,
			Lat:   m.Lat,
			Time:  m.Time,
		})
	}

	c.logger.WithField("device_id", deviceID.Hex()).Debug("Get message list success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, MessageList{Messages: data, Total: total}))
}

// DeleteAll removes every message of one of the user's devices and resets
// the device's message list.
func (c *MessageController) DeleteAll(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	deviceID, err := primitive.ObjectIDFromHex(ctx.Query("deviceID"))
	if err != nil || user.FindDevice(deviceID) == nil {
		c.logger.WithField("device_id", ctx.Query("deviceID")).Warn("Delete messages failed: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	// Serialize with Create: a message inserted between the collection
	// delete and the list reset would be orphaned.
	key := user.ID.Hex()
	c.userLocks.Lock(key)
	defer c.userLocks.Unlock(key)

	if _, err := c.messageRepo.DeleteAllByDeviceID(ctx.Request.Context(), deviceID); err != nil {
		c.internalError(ctx, err, "Delete messages failed")
		return
	}
	if _, err := c.userRepo.SetDeviceMessages(ctx.Request.Context(), user.ID, deviceID, nil); err != nil {
		c.internalError(ctx, err, "Delete messages failed")
		return
	}

	c.logger.WithField("device_id", deviceID.Hex()).Debug("Delete messages success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

// DeleteBulk removes the named messages and prunes them from the device's
// message list.
func (c *MessageController) DeleteBulk(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	deviceID, err := primitive.ObjectIDFromHex(ctx.Query("deviceID"))
	if err != nil || user.FindDevice(deviceID) == nil {
		c.logger.WithField("device_id", ctx.Query("deviceID")).Warn("Delete messages failed: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	rawIDs := ctx.QueryArray("messageID")
	messageIDs := make([]primitive.ObjectID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid message id."))
			return
		}
		messageIDs = append(messageIDs, id)
	}

	key := user.ID.Hex()
	c.userLocks.Lock(key)
	defer c.userLocks.Unlock(key)

	if _, err := c.userRepo.PullMessageIDs(ctx.Request.Context(), user.ID, deviceID, messageIDs); err != nil {
		c.internalError(ctx, err, "Delete messages failed")
		return
	}
	if _, err := c.messageRepo.DeleteByIDs(ctx.Request.Context(), messageIDs); err != nil {
		c.internalError(ctx, err, "Delete messages failed")
		return
	}

	c.logger.WithField("device_id", deviceID.Hex()).Debug("Delete messages success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

func (c *MessageController) internalError(ctx *gin.Context, err error, msg string) {
	c.logger.ErrorWithError(err, msg)
	ctx.JSON(http.StatusInternalServerError,
		iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
}
