package report

import (
	"fmt"
	"os"
	"sync"
)

// Enumeration of the different possible log levels.
const (
	LogLevelSilent  = iota // Displays no output.
	LogLevelError          // Displays only errors to the user.
	LogLevelWarn           // Displays warnings and errors to the user.
	LogLevelVerbose        // Displays all compilation messages to the user (default).
)

// reporter is responsible for writing messages to the user while respecting
// the selected log level.  Its methods are synchronized so they can be called
// from multiple goroutines.
type reporter struct {
	m        *sync.Mutex
	logLevel int
}

// rep is the global reporter instance.
var rep = reporter{m: &sync.Mutex{}, logLevel: LogLevelVerbose}

// InitReporter initializes the global reporter with the provided log level.
func InitReporter(logLevel int) {
	rep.m.Lock()
	rep.logLevel = logLevel
	rep.m.Unlock()
}

// Errorf displays an error message.
func Errorf(format string, args ...any) {
	rep.m.Lock()
	defer rep.m.Unlock()

	if rep.logLevel >= LogLevelError {
		displayError(fmt.Sprintf(format, args...))
	}
}

// Warnf displays a warning message.
func Warnf(format string, args ...any) {
	rep.m.Lock()
	defer rep.m.Unlock()

	if rep.logLevel >= LogLevelWarn {
		displayWarning(fmt.Sprintf(format, args...))
	}
}

// Infof displays an informational message.
func Infof(format string, args ...any) {
	rep.m.Lock()
	defer rep.m.Unlock()

	if rep.logLevel >= LogLevelVerbose {
		displayInfo(fmt.Sprintf(format, args...))
	}
}

// Fatalf displays a fatal error message and exits the program.  It is
// reserved for unrecoverable conditions such as I/O failures on compiler
// internals -- ordinary compilation failures travel in Results instead.
func Fatalf(format string, args ...any) {
	rep.m.Lock()
	displayFatal(fmt.Sprintf(format, args...))
	rep.m.Unlock()

	os.Exit(1)
}

// DisplayResult prints all entries of a result in order, respecting the log
// level, and returns whether the result holds any error-severity entry.
func DisplayResult(res *Result) bool {
	rep.m.Lock()
	defer rep.m.Unlock()

	hadError := false
	for _, ent := range res.Entries {
		if ent.IsError() {
			hadError = true
			if rep.logLevel >= LogLevelError {
				displayEntry(ent, true)
			}
		} else if rep.logLevel >= LogLevelWarn {
			displayEntry(ent, false)
		}
	}

	return hadError
}
