// Package safego runs fire-and-forget work (audit persistence, background jobs) on
// goroutines that cannot take the process down.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on a new goroutine. A panic inside fn is recovered and logged under task
// together with its stack; deferred calls in fn still run.
func Go(task string, fn func()) {
	go Run(task, fn)
}

// Run is the synchronous form of Go. It reports whether fn completed without panicking.
func Run(task string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			slog.Error("recovered panic in background task",
				"task", task,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
	return true
}
