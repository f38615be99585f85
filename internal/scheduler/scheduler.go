package scheduler

import "time"

// Handle is a pending delayed call.
type Handle interface {
	// Cancel stops the call if it has not run yet and reports whether it did.
	// It is safe to call after the call fired and to call more than once.
	Cancel() bool
}

// Scheduler runs fn once after d elapses.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Handle
}

// Runtime schedules on the process clock.
type Runtime struct{}

func (Runtime) AfterFunc(d time.Duration, fn func()) Handle {
	return runtimeHandle{timer: time.AfterFunc(d, fn)}
}

type runtimeHandle struct {
	timer *time.Timer
}

func (h runtimeHandle) Cancel() bool {
	return h.timer.Stop()
}
