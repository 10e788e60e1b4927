package logging

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Logger provides leveled logging. Components receive a *Logger by
// injection; there is no package-level instance.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger

	debugEnabled bool
}

// New creates a Logger writing to stdout/stderr.
func New() *Logger {
	return &Logger{
		info:         log.New(os.Stdout, "", 0),
		warn:         log.New(os.Stdout, "", 0),
		err:          log.New(os.Stderr, "", 0),
		debug:        log.New(os.Stdout, "", 0),
		debugEnabled: os.Getenv("FIGTRACKER_DEBUG") != "",
	}
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(fmt.Sprintf("%s [INFO] %s", l.timestamp(), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.warn.Printf(fmt.Sprintf("%s [WARN] %s", l.timestamp(), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(fmt.Sprintf("%s [ERROR] %s", l.timestamp(), format), args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.debugEnabled {
		return
	}
	l.debug.Printf(fmt.Sprintf("%s [DEBUG] %s", l.timestamp(), format), args...)
}
