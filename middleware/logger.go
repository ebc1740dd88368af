package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggerConfig is the logging middleware's configuration.
type LoggerConfig struct {
	// SkipPaths are request paths not worth logging (health checks).
	SkipPaths []string

	// Output is the logger every request line is written through.
	Output logrus.FieldLogger
}

// LoggerDefaultConfig returns the default logging middleware configuration.
func LoggerDefaultConfig() LoggerConfig {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})

	return LoggerConfig{
		SkipPaths: []string{},
		Output:    logger,
	}
}

// Logger returns a gin.HandlerFunc that logs one structured line per
// request, with the gateway-specific fields (channel, charge_id) a
// handler may have stashed on the context.
func Logger() gin.HandlerFunc {
	return LoggerWithConfig(LoggerDefaultConfig())
}

// LoggerWithConfig returns a gin.HandlerFunc using the given configuration.
func LoggerWithConfig(config LoggerConfig) gin.HandlerFunc {
	if config.Output == nil {
		config.Output = logrus.StandardLogger()
	}

	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		entry := config.Output.WithFields(logrus.Fields{
			"status":     statusCode,
			"latency":    latency,
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
		})
		for _, key := range []string{"channel", "charge_id", "refund_id", "order_id"} {
			if v, ok := c.Get(key); ok {
				entry = entry.WithField(key, v)
			}
		}

		switch {
		case statusCode >= 500:
			entry.Error("request")
		case statusCode >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}

		for _, e := range c.Errors {
			config.Output.Errorf("request error: %v", e.Err)
		}
	}
}
