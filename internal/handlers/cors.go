package handlers

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const preflightMaxAge = time.Hour

// CORS allows browser uploads from origins; "*" or an empty list allows any.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodOptions, http.MethodPost, http.MethodGet},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        preflightMaxAge,
	}
	if !anyOrigin(origins) {
		cfg.AllowOrigins = origins
		return cors.New(cfg)
	}

	cfg.AllowAllOrigins = true
	mw := cors.New(cfg)
	return func(c *gin.Context) {
		// the middleware only decorates requests that name an Origin
		if c.GetHeader("Origin") == "" {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		mw(c)
	}
}

// Preflight answers OPTIONS requests that carry no Origin header and so pass
// through the CORS middleware. Wildcard headers are only sent when every
// origin is allowed.
func Preflight(origins []string) gin.HandlerFunc {
	wildcard := anyOrigin(origins)
	return func(c *gin.Context) {
		h := c.Writer.Header()
		if wildcard {
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", "OPTIONS, POST")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "3600")
		} else {
			h.Set("Allow", "OPTIONS, POST")
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func anyOrigin(origins []string) bool {
	return len(origins) == 0 || slices.Contains(origins, "*")
}

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 64 << 10

// LimitBody caps the request body at limit plus multipart framing, so
// oversized uploads fail while the form is parsed instead of being spooled to
// disk. limit <= 0 leaves the body alone.
func LimitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
		}
		c.Next()
	}
}

// BodyTooLarge reports whether err came from a LimitBody cap.
func BodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
