package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

const (
	sessionKey = "session"
	userIDKey  = "user_id"
)

// AuthMiddleware resolves the caller's session. Requests without credentials
// continue anonymously; invalid credentials are rejected.
func AuthMiddleware(authenticator auth.Authenticator, logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "auth").Logger()
	return func(c *gin.Context) {
		session, err := authenticator.GetSession(c.Request)
		if err != nil {
			logger.Warn().Err(err).Str("path", c.FullPath()).Msg("token validation failed")
			responses.HandleNewError(c, platformerrors.ErrorTypeUnauthorized, "invalid credentials", "5c1e7a3f-9b2d-4e68-a4f0-b8d6c2e9a174")
			return
		}
		if session != nil {
			c.Set(sessionKey, session)
			c.Set(userIDKey, session.UserID)
			c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), session))
		}
		c.Next()
	}
}

// RequireSession rejects anonymous requests.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := SessionFromContext(c); !ok {
			responses.HandleNewError(c, platformerrors.ErrorTypeUnauthorized, "authentication required", "8a4d2f6c-3e1b-4c97-b5a0-e9f7d3c1b628")
			return
		}
		c.Next()
	}
}

// SessionFromContext returns the authenticated session, if any.
func SessionFromContext(c *gin.Context) (*auth.Session, bool) {
	val, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := val.(*auth.Session)
	return session, ok && session != nil
}
