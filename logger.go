package routed

import (
	"fmt"
)

// Logger is a log.Print-compatible function.
type Logger func(...interface{})

var logger Logger = nil

// SetLogger enables logging with the provided Logger. The default logger is
// nil, i.e. silent.
func SetLogger(l Logger) {
	logger = l
}

func log(v ...interface{}) {
	if logger != nil {
		logger(v...)
	}
}

func logf(format string, v ...interface{}) {
	log(fmt.Sprintf(format, v...))
}
