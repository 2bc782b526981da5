//go:build linux

package session

import (
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pinThread binds the calling goroutine's OS thread to opts.CPU so the busy
// loop saturates one core instead of migrating. The returned func restores
// the previous affinity.
func pinThread(opts Options, logger *zap.SugaredLogger) func() {
	if !opts.PinCPU {
		return func() {}
	}

	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		logger.Warnf("read cpu affinity: %v", err)
		return runtime.UnlockOSThread
	}

	var set unix.CPUSet
	set.Set(opts.CPU)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		logger.Warnf("pin session loop to cpu %d: %v", opts.CPU, err)
		return runtime.UnlockOSThread
	}
	logger.Debugf("session loop pinned to cpu %d", opts.CPU)

	return func() {
		if err := unix.SchedSetaffinity(0, &prev); err != nil {
			logger.Warnf("restore cpu affinity: %v", err)
		}
		runtime.UnlockOSThread()
	}
}
