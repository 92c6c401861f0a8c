// Package logging builds the component loggers used across the sync engine.
//
// Each component logs through a stdlib *log.Logger with a bracketed prefix
// (e.g. "[monitor] "). When a log file is configured, output goes to both
// stderr and a size-rotated file so the dashboard's history survives
// restarts without the file growing unbounded.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFile is the monitor's persistent log file.
const DefaultLogFile = "db_sync_monitor.log"

// New returns a logger for the named component. If file is empty the
// logger writes to stderr only.
func New(component, file string) *log.Logger {
	var w io.Writer = os.Stderr
	if file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
