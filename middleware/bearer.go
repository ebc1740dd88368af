package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerConfig is the static-token auth middleware's configuration.
type BearerConfig struct {
	// Key is the single live API key every request must present.
	Key string

	// Skipper exempts paths from the check (notify callbacks, which
	// authenticate via channel signature instead of a bearer token).
	Skipper func(*gin.Context) bool

	// ErrorHandler renders the 401 response for a missing or wrong token.
	ErrorHandler func(*gin.Context, error)
}

// DefaultBearerConfig returns the default bearer-auth configuration.
func DefaultBearerConfig() BearerConfig {
	return BearerConfig{
		Skipper: func(c *gin.Context) bool { return false },
		ErrorHandler: func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		},
	}
}

// Bearer returns a gin.HandlerFunc gating every request behind a static
// "Authorization: Bearer <key>" header, the way the basic/live API key
// model authenticates merchant requests.
func Bearer(key string) gin.HandlerFunc {
	config := DefaultBearerConfig()
	config.Key = key
	return BearerWithConfig(config)
}

// BearerWithConfig returns a gin.HandlerFunc using the given configuration.
func BearerWithConfig(config BearerConfig) gin.HandlerFunc {
	if config.Skipper == nil {
		config.Skipper = func(c *gin.Context) bool { return false }
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = DefaultBearerConfig().ErrorHandler
	}

	return func(c *gin.Context) {
		if config.Skipper(c) {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			config.ErrorHandler(c, errMissingBearerToken)
			return
		}
		token := strings.TrimPrefix(header, prefix)
		if token == "" || token != config.Key {
			config.ErrorHandler(c, errInvalidBearerToken)
			return
		}

		c.Next()
	}
}

var (
	errMissingBearerToken = bearerError("missing bearer token")
	errInvalidBearerToken = bearerError("invalid bearer token")
)

type bearerError string

func (e bearerError) Error() string { return string(e) }
