// Package auth signs users in (demo or Azure AD) and guards the API with a
// session cookie.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"invoicedash/internal"
	"invoicedash/internal/logger"
)

const (
	CookieName = "invoicedash_session"
	userKey    = "auth.user"
	stateTTL   = 10 * time.Minute
)

var ErrNoSession = errors.New("no active session")

type Service struct {
	provider Provider
	sessions *Sessions
	pending  *expirable.LRU[string, struct{}]
	ttl      time.Duration
	secure   bool
}

func NewService(provider Provider, ttl time.Duration, secureCookie bool) *Service {
	return &Service{
		provider: provider,
		sessions: NewSessions(ttl),
		pending:  expirable.NewLRU[string, struct{}](1024, nil, stateTTL),
		ttl:      ttl,
		secure:   secureCookie,
	}
}

// Login starts a sign-in and redirects to the provider.
func (s *Service) Login(c *gin.Context) {
	state := uuid.NewString()
	s.pending.Add(state, struct{}{})
	c.Redirect(http.StatusFound, s.provider.LoginURL(state))
}

// Callback completes a sign-in started by Login.
func (s *Service) Callback(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())
	state := c.Query("state")
	if state == "" || !s.pending.Remove(state) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid or expired login state"})
		return
	}
	if msg := c.Query("error"); msg != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": msg})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing authorization code"})
		return
	}

	user, err := s.provider.Exchange(c.Request.Context(), code)
	if err != nil {
		log.Error("login failed", "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "login failed"})
		return
	}

	id := s.sessions.Create(user)
	s.setCookie(c, id, int(s.ttl.Seconds()))
	log.Info("user signed in", "user", user.Email)
	c.Redirect(http.StatusFound, "/")
}

func (s *Service) Logout(c *gin.Context) {
	if id, err := c.Cookie(CookieName); err == nil {
		s.sessions.Delete(id)
	}
	s.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RequireUser rejects requests without a live session and stores the user for
// downstream handlers.
func (s *Service) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.userFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func (s *Service) Me(c *gin.Context) {
	user, ok := UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": ErrNoSession.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

func UserFromContext(c *gin.Context) (internal.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return internal.User{}, false
	}
	user, ok := v.(internal.User)
	return user, ok
}

func (s *Service) userFromRequest(c *gin.Context) (internal.User, error) {
	id, err := c.Cookie(CookieName)
	if err != nil {
		return internal.User{}, ErrNoSession
	}
	user, ok := s.sessions.Get(id)
	if !ok {
		return internal.User{}, ErrNoSession
	}
	return user, nil
}

func (s *Service) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", s.secure, true)
}
