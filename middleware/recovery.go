package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RecoveryConfig is the panic-recovery middleware's configuration.
type RecoveryConfig struct {
	// DisableStackAll limits the captured stack to the panicking goroutine.
	DisableStackAll bool

	// DisablePrintStack suppresses logging the stack trace.
	DisablePrintStack bool

	// MaxStackSize bounds the captured stack trace size.
	MaxStackSize int
}

// RecoveryDefaultConfig returns the default panic-recovery configuration.
func RecoveryDefaultConfig() RecoveryConfig {
	return RecoveryConfig{
		DisableStackAll:   false,
		DisablePrintStack: false,
		MaxStackSize:      4096,
	}
}

// Recovery returns a gin.HandlerFunc that turns a panic into a 500 JSON
// response instead of killing the process.
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(RecoveryDefaultConfig())
}

// RecoveryWithConfig returns a gin.HandlerFunc using the given configuration.
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				if c.Writer.Written() {
					return
				}

				stack := make([]byte, config.MaxStackSize)
				stackSize := runtime.Stack(stack, !config.DisableStackAll)
				stack = stack[:stackSize]

				if !config.DisablePrintStack {
					logrus.Errorf("panic recovered: %v\n%s", err, stack)
				}

				c.Error(fmt.Errorf("%v", err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": fmt.Sprintf("%v", err),
				})
			}
		}()

		c.Next()
	}
}
