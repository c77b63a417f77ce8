package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/butterfly-api/internal/store"
)

const realm = `Basic realm="Butterfly Classifier", charset="UTF-8"`

// Authenticator checks a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) error
}

// BasicAuth rejects requests without valid credentials and stores the
// username under gin.AuthUserKey.
func BasicAuth(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			challenge(c)
			return
		}

		err := auth.Authenticate(c.Request.Context(), user, pass)
		switch {
		case err == nil:
			c.Set(gin.AuthUserKey, user)
			c.Next()
		case errors.Is(err, store.ErrInvalidCredentials):
			logger.Info("login failed", "user", user, "ip", c.ClientIP())
			challenge(c)
		default:
			logger.Error("authenticate", "user", user, "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	}
}

func challenge(c *gin.Context) {
	c.Header("WWW-Authenticate", realm)
	c.AbortWithStatus(http.StatusUnauthorized)
}
