// Package monitoring holds the diagnostic log hooks shared by the scanner
// packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger used for lifecycle events
// (activation, rotation, persistence). It defaults to log.Printf but may be
// replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug enables per-tick diagnostics through Debugf.
func SetDebug(on bool) {
	debug.Store(on)
}

// Debugf logs through Logf only when debug output is enabled. Per-tick
// messages go here so steady-state scanning stays quiet.
func Debugf(format string, v ...interface{}) {
	if debug.Load() {
		Logf(format, v...)
	}
}
