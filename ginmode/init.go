// Package ginmode ensures GIN_MODE is set before gin's package init runs,
// so the framework never prints its debug-mode warning banner.
package ginmode

import (
	"os"
)

func init() {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode != "" {
		return
	}

	switch os.Getenv("PINGXX_GIN_MODE") {
	case "release", "production":
		os.Setenv("GIN_MODE", "release")
	case "test":
		os.Setenv("GIN_MODE", "test")
	case "debug", "development":
		os.Setenv("GIN_MODE", "debug")
	default:
		os.Setenv("GIN_MODE", "release")
	}
}
