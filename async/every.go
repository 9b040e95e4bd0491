// Package async includes helpers for scheduling runnable, periodic functions
// backing the platform's long-running workers (fleet risk loop, promotion
// worker, sweepers).
package async

import (
	"context"
	"reflect"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunEvery runs the provided command periodically.
// It runs in a goroutine, and can be cancelled by finishing the supplied context.
func RunEvery(ctx context.Context, period time.Duration, f func()) {
	funcName := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
	ticker := time.NewTicker(period)
	go func() {
		for {
			select {
			case <-ticker.C:
				log.WithField("function", funcName).Trace("running")
				f()
			case <-ctx.Done():
				log.WithField("function", funcName).Debug("context is closed, exiting")
				ticker.Stop()
				return
			}
		}
	}()
}

// RunAfter executes the provided function once after the given delay unless
// the context is cancelled first. Used for deferred one-shot actions such as
// the stage engine's boot-time catch-up assessment.
func RunAfter(ctx context.Context, delay time.Duration, f func()) {
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			f()
		case <-ctx.Done():
		}
	}()
}
