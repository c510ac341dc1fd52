// Package monitoring holds the process-wide logging seam. Library
// packages log through Logf so binaries can route output to whatever
// writer they prefer (console, structured logger, test capture) without
// the libraries importing a logging framework.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// but may be replaced by SetLogger. Tests or production code can redirect
// or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, muting all library output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Mute silences the package logger and returns a function that restores
// the previous one. Intended for tests:
//
//	defer monitoring.Mute()()
func Mute() func() {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}
