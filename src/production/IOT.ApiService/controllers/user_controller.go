package controllers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/lock"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/password"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/rememberme"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/middleware"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
	implementation "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Implementation"
	interfaces "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Interfaces"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+@[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)+$`)

func validateUsername(username string) bool {
	return len(username) >= 6 && len(username) <= 20
}

func validateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func validatePassword(pw string) bool {
	return len(pw) >= 6 && len(pw) <= 20
}

// UserController handles account management requests
type UserController struct {
	userRepo       interfaces.UserRepository
	messageRepo    interfaces.MessageRepository
	activeRepo     interfaces.ActiveRepository
	rememberMe     *rememberme.Service
	encoder        *password.Encoder
	authMiddleware *middleware.AuthMiddleware
	userLocks      *lock.KeyedMutex
	logger         *logger.Logger
}

// NewUserController creates a new user controller
func NewUserController(
	userRepo interfaces.UserRepository,
	messageRepo interfaces.MessageRepository,
	activeRepo interfaces.ActiveRepository,
	rememberMe *rememberme.Service,
	encoder *password.Encoder,
	authMiddleware *middleware.AuthMiddleware,
	userLocks *lock.KeyedMutex,
	logger *logger.Logger,
) *UserController {
	return &UserController{
		userRepo:       userRepo,
		messageRepo:    messageRepo,
		activeRepo:     activeRepo,
		rememberMe:     rememberMe,
		encoder:        encoder,
		authMiddleware: authMiddleware,
		userLocks:      userLocks,
		logger:         logger,
	}
}

// RegisterRoutes registers the user routes with Gin
func (c *UserController) RegisterRoutes(router *gin.Engine) {
	users := router.Group("/api/user")
	{
		users.POST("/create", c.Create)
		users.POST("/login", c.Login)
		users.GET("/logout", c.authMiddleware.Authenticate(), c.Logout)
		users.GET("/current", c.authMiddleware.Authenticate(), c.Current)
		users.PUT("/modify", c.authMiddleware.Authenticate(), c.Modify)
		users.PUT("/modifyPassword", c.authMiddleware.Authenticate(), c.ModifyPassword)
		users.DELETE("/delete", c.authMiddleware.Authenticate(), c.Delete)
	}
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Create registers a new account.
func (c *UserController) Create(ctx *gin.Context) {
	var req CreateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}

	if !validateUsername(req.Username) {
		c.logger.Warn("Create user failed: username length should be between 6 and 20")
		ctx.JSON(http.StatusBadRequest,
			iotmodels.Error(http.StatusBadRequest, "Username length should be between 6 and 20."))
		return
	}
	if !validateEmail(req.Email) {
		c.logger.WithField("email", req.Email).Warn("Create user failed: invalid email format")
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid email format."))
		return
	}
	if !validatePassword(req.Password) {
		c.logger.Warn("Create user failed: password length should be between 6 and 20")
		ctx.JSON(http.StatusBadRequest,
			iotmodels.Error(http.StatusBadRequest, "Password length should be between 6 and 20."))
		return
	}

	hash, err := c.encoder.Encode(req.Password)
	if err != nil {
		c.logger.ErrorWithError(err, "Create user failed")
		ctx.JSON(http.StatusInternalServerError,
			iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
		return
	}

	user := &iotmodels.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hash,
		Devices:  []iotmodels.Device{},
	}
	if err := c.userRepo.Insert(ctx.Request.Context(), user); err != nil {
		if implementation.IsDuplicateKey(err) {
			message := "Email already exists."
			if existing, lookupErr := c.userRepo.FindByUsername(ctx.Request.Context(), req.Username); lookupErr == nil && existing != nil {
				message = "Username already exists."
			}
			c.logger.WithField("username", req.Username).Warn("Create user failed: duplicate key")
			ctx.JSON(http.StatusConflict, iotmodels.Error(http.StatusConflict, message))
			return
		}
		c.logger.ErrorWithError(err, "Create user failed")
		ctx.JSON(http.StatusInternalServerError,
			iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
		return
	}

	c.logger.WithField("username", req.Username).Info("Create user success")
	ctx.JSON(http.StatusCreated, iotmodels.OK(http.StatusCreated, nil))
}

type LoginRequest struct {
	Username   *string `json:"username"`
	Password   *string `json:"password"`
	RememberMe bool    `json:"rememberMe"`
}

// Login verifies credentials and issues the remember-me cookie. The token is
// valid for 7 days when rememberMe is set, otherwise it is bound to the
// session.
func (c *UserController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}
	if req.Username == nil {
		c.logger.Warn("Authentication failure: Username is null")
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Username is null"))
		return
	}
	if req.Password == nil {
		c.logger.Warn("Authentication failure: Password is null")
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Password is null"))
		return
	}

	user, err := c.userRepo.FindByUsername(ctx.Request.Context(), *req.Username)
	if err != nil {
		c.logger.ErrorWithError(err, "Login failed")
		ctx.JSON(http.StatusInternalServerError,
			iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
		return
	}
	if user == nil {
		c.logger.WithField("username", *req.Username).Warn("Authentication failure: User not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "User not found"))
		return
	}
	if !c.encoder.Matches(*req.Password, user.Password) {
		c.logger.WithField("username", *req.Username).Warn("Authentication failure: Wrong password")
		ctx.JSON(http.StatusUnauthorized, iotmodels.Error(http.StatusUnauthorized, "Wrong password"))
		return
	}

	if err := c.rememberMe.LoginSuccess(ctx.Writer, user.ID.Hex(), req.RememberMe); err != nil {
		c.logger.ErrorWithError(err, "Login failed")
		ctx.JSON(http.StatusInternalServerError,
			iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
		return
	}

	c.logger.WithField("user_id", user.ID.Hex()).Info("Login success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

// Logout clears the remember-me cookie.
func (c *UserController) Logout(ctx *gin.Context) {
	c.rememberMe.Logout(ctx.Writer)
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

type UserInfo struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Current returns the authenticated user's profile.
func (c *UserController) Current(ctx *gin.Context) {
	user, ok := middleware.GetCurrentUser(ctx)
	if !ok {
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "User not found."))
		return
	}
	info := UserInfo{UserID: user.ID.Hex(), Username: user.Username, Email: user.Email}
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, info))
}

type ModifyUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Modify updates username and email, re-checking uniqueness against other
// users.
func (c *UserController) Modify(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	var req ModifyUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}

	if !validateUsername(req.Username) {
		c.logger.Warn("Modify user info failed: username length should be between 6 and 20")
		ctx.JSON(http.StatusBadRequest,
			iotmodels.Error(http.StatusBadRequest, "Username length should be between 6 and 20."))
		return
	}
	if !validateEmail(req.Email) {
		c.logger.WithField("email", req.Email).Warn("Modify user info failed: invalid email format")
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid email format."))
		return
	}

	sameUsername, err := c.userRepo.FindByUsername(ctx.Request.Context(), req.Username)
	if err != nil {
		c.internalError(ctx, err, "Modify user info failed")
		return
	}
	if sameUsername != nil && sameUsername.ID != user.ID {
		c.logger.WithField("username", req.Username).Warn("Modify user info failed: username already exists")
		ctx.JSON(http.StatusConflict, iotmodels.Error(http.StatusConflict, "Username already exists."))
		return
	}
	sameEmail, err := c.userRepo.FindByEmail(ctx.Request.Context(), req.Email)
	if err != nil {
		c.internalError(ctx, err, "Modify user info failed")
		return
	}
	if sameEmail != nil && sameEmail.ID != user.ID {
		c.logger.WithField("email", req.Email).Warn("Modify user info failed: email already exists")
		ctx.JSON(http.StatusConflict, iotmodels.Error(http.StatusConflict, "Email already exists."))
		return
	}

	if err := c.userRepo.UpdateProfile(ctx.Request.Context(), user.ID, req.Username, req.Email); err != nil {
		c.internalError(ctx, err, "Modify user info failed")
		return
	}

	c.logger.WithField("user_id", user.ID.Hex()).Info("Modify user info success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

type ModifyPasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ModifyPassword re-verifies the old password, stores the new hash and
// invalidates the remember-me cookie.
func (c *UserController) ModifyPassword(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	var req ModifyPasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}

	if !validatePassword(req.NewPassword) {
		c.logger.Warn("Modify password failed: password length should be between 6 and 20")
		ctx.JSON(http.StatusBadRequest,
			iotmodels.Error(http.StatusBadRequest, "Password length should be between 6 and 20."))
		return
	}
	if !c.encoder.Matches(req.OldPassword, user.Password) {
		c.logger.WithField("user_id", user.ID.Hex()).Warn("Modify password failed: wrong password")
		ctx.JSON(http.StatusUnauthorized, iotmodels.Error(http.StatusUnauthorized, "Wrong password."))
		return
	}

	hash, err := c.encoder.Encode(req.NewPassword)
	if err != nil {
		c.internalError(ctx, err, "Modify password failed")
		return
	}

	// The old token must not survive a password change.
	c.rememberMe.Logout(ctx.Writer)

	if err := c.userRepo.UpdatePassword(ctx.Request.Context(), user.ID, hash); err != nil {
		c.internalError(ctx, err, "Modify password failed")
		return
	}

	c.logger.WithField("user_id", user.ID.Hex()).Info("Modify password success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

// Delete removes the account together with its messages and activity
// buckets, so no record outlives its owner.
func (c *UserController) Delete(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	// Serialize the cascade with message create for this user.
	key := user.ID.Hex()
	c.userLocks.Lock(key)
	defer c.userLocks.Unlock(key)

	for _, device := range user.Devices {
		if _, err := c.messageRepo.DeleteAllByDeviceID(ctx.Request.Context(), device.ID); err != nil {
			c.internalError(ctx, err, "Delete user failed")
			return
		}
	}
	if err := c.activeRepo.DeleteAllByUser(ctx.Request.Context(), user.ID); err != nil {
		c.internalError(ctx, err, "Delete user failed")
		return
	}

	c.rememberMe.Logout(ctx.Writer)

	if err := c.userRepo.Delete(ctx.Request.Context(), user.ID); err != nil {
		c.internalError(ctx, err, "Delete user failed")
		return
	}

	c.logger.WithField("user_id", user.ID.Hex()).Info("Delete user success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

func (c *UserController) internalError(ctx *gin.Context, err error, msg string) {
	c.logger.ErrorWithError(err, msg)
	ctx.JSON(http.StatusInternalServerError,
		iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
}
