package logging

import (
	"os"
	"sync/atomic"
)

var global atomic.Pointer[Logger]

func init() {
	global.Store(DefaultLogger())
}

// SetGlobal replaces the process-wide logger. A nil l is ignored.
func SetGlobal(l *Logger) {
	if l != nil {
		global.Store(l)
	}
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global.Load()
}

// Configure builds a stderr logger from textual settings, as found in
// configuration files, and installs it as the global logger. Caller
// information is included at debug level.
func Configure(level, format string) *Logger {
	lvl := ParseLevel(level)
	l := New(Config{
		Level:     lvl,
		Format:    ParseFormat(format),
		Output:    os.Stderr,
		AddCaller: lvl == LevelDebug,
	})
	SetGlobal(l)
	return l
}

// Or returns l, or the global logger when l is nil.
func Or(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Global()
}
