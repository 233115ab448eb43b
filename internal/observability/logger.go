package observability

import "github.com/tphakala/sensorrec/internal/logger"

// getLogger returns the package logger, resolved lazily so SetGlobal at startup takes effect.
func getLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
