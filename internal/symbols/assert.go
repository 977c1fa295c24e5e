package symbols

import "log/slog"

// debugAssert escalates graph invariant violations to a panic at the
// violation site. Off by default: release behavior logs the violation
// and degrades to refusing the operation. Tests flip it on through
// SetDebugAsserts to catch misuse close to its cause.
var debugAssert = false

// SetDebugAsserts toggles assertion panics and returns the previous
// setting, so tests can restore it.
func SetDebugAsserts(on bool) bool {
	prev := debugAssert
	debugAssert = on
	return prev
}

// violation reports a broken graph invariant.
func violation(msg string, args ...any) {
	slog.Error(msg, args...)
	if debugAssert {
		panic("symbols: " + msg)
	}
}
