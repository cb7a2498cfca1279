package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	rememberme "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/rememberme"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
	interfaces "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Interfaces"
)

const currentUserContextKey = "current_user"

// AuthMiddleware resolves the current user from the remember-me cookie.
type AuthMiddleware struct {
	rememberMe *rememberme.Service
	userRepo   interfaces.UserRepository
	logger     *logger.Logger
}

func NewAuthMiddleware(rememberMe *rememberme.Service, userRepo interfaces.UserRepository, logger *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		rememberMe: rememberMe,
		userRepo:   userRepo,
		logger:     logger,
	}
}

// ResolveUser loads the authenticated user for a request. Every failure mode
// (missing or invalid token, user deleted since issuance) is reported
// uniformly as ErrNotAuthenticated.
func (m *AuthMiddleware) ResolveUser(c *gin.Context) (*iotmodels.User, error) {
	userID, err := m.rememberMe.AutoLogin(c.Request)
	if err != nil {
		return nil, rememberme.ErrNotAuthenticated
	}
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, rememberme.ErrNotAuthenticated
	}
	user, err := m.userRepo.FindByID(c.Request.Context(), id)
	if err != nil || user == nil {
		return nil, rememberme.ErrNotAuthenticated
	}
	return user, nil
}

// Authenticate rejects unauthenticated requests with the uniform envelope and
// stores the resolved user in the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := m.ResolveUser(c)
		if err != nil {
			m.logger.WithField("path", c.Request.URL.Path).Warn("Request not authenticated")
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				iotmodels.Error(http.StatusUnauthorized, "User not logged in"))
			return
		}
		c.Set(currentUserContextKey, user)
		c.Next()
	}
}

// GetCurrentUser returns the user stored by Authenticate.
func GetCurrentUser(c *gin.Context) (*iotmodels.User, bool) {
	value, ok := c.Get(currentUserContextKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*iotmodels.User)
	return user, ok
}
