//go:build !linux

package session

import "go.uber.org/zap"

// pinThread is a no-op where thread affinity is unavailable.
func pinThread(opts Options, logger *zap.SugaredLogger) func() {
	if opts.PinCPU {
		logger.Warnf("cpu pinning is only supported on linux")
	}
	return func() {}
}
