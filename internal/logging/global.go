package logging

import (
	"io"
	"sync"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

func init() {
	globalLogger = DefaultLogger()
}

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the global logger.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// ConfigureOutput creates a logger on out from config values and sets it as
// the global logger. Unknown values fall back to info and JSON; config
// validation rejects them before this is reached. Caller info is added at
// debug level.
func ConfigureOutput(level, format string, out io.Writer) *Logger {
	lvl, _ := LookupLevel(level)
	f, _ := LookupFormat(format)
	l := New(Config{
		Level:     lvl,
		Format:    f,
		Output:    out,
		AddCaller: lvl == LevelDebug,
	})
	SetGlobal(l)
	return l
}
