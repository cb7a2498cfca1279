package rememberme

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	config "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Config"
)

// ErrNotAuthenticated is returned for every token failure: missing cookie,
// expired or tampered token, wrong signing method. Callers must not be able
// to distinguish the cases.
var ErrNotAuthenticated = errors.New("not authenticated")

// Claims carried by the remember-me token. Subject is the user's id.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and validates the signed remember-me token and manages its
// cookie. A persistent login is valid for the configured remember-me
// duration (7 days); a session-only login gets a token bounded by the
// session duration in a cookie that dies with the browser session.
type Service struct {
	config config.AuthConfig
}

func NewService(cfg config.AuthConfig) *Service {
	return &Service{config: cfg}
}

// Issue signs a token for the identity with the given validity.
func (s *Service) Issue(userID string, validity time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SecretKey))
}

// Verify validates a token and returns the identity it carries.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrNotAuthenticated
		}
		return []byte(s.config.SecretKey), nil
	})
	if err != nil {
		return "", ErrNotAuthenticated
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrNotAuthenticated
	}
	return claims.Subject, nil
}

// LoginSuccess issues the token and sets the cookie on the response. When
// rememberMe is false the cookie has no Max-Age, so it does not outlive the
// browser session.
func (s *Service) LoginSuccess(w http.ResponseWriter, userID string, rememberMe bool) error {
	validity := s.config.SessionTokenDuration
	maxAge := 0
	if rememberMe {
		validity = s.config.RememberMeDuration
		maxAge = int(validity / time.Second)
	}

	token, err := s.Issue(userID, validity)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   maxAge,
		Secure:   s.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// AutoLogin resolves the identity from the request's cookie.
func (s *Service) AutoLogin(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNotAuthenticated
	}
	return s.Verify(cookie.Value)
}

// Logout clears the cookie.
func (s *Service) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   -1,
		Secure:   s.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
