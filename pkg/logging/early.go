package logging

import (
	"fmt"
	"os"
	"time"
)

// EarlyLog covers the window before config is loaded and the real logger
// exists. Lines go to stderr with a timestamp so startup failures in a
// container are still attributable.
type EarlyLog struct{}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.emit("error", msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.emit("warn", msg, args...)
}

func (l *EarlyLog) emit(level, msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339), level, fmt.Sprintf(msg, args...))
}
