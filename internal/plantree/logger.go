package plantree

import "sync"

// pkgLogger is the package-level debug logging function.
var pkgLogger func(format string, args ...interface{})
var pkgLoggerMu sync.RWMutex

// SetDebugLog sets the package-level debug logging function. The
// conductor wires its own logger in here at startup.
func SetDebugLog(fn func(format string, args ...interface{})) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = fn
}

// debugLog writes a message using the package-level logger, if set.
func debugLog(format string, args ...interface{}) {
	pkgLoggerMu.RLock()
	fn := pkgLogger
	pkgLoggerMu.RUnlock()

	if fn != nil {
		fn(format, args...)
	}
}
