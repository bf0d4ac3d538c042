package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// runLogNameFormat matches spec.md's per-run log file convention:
// sweeps_<YYYYMMDD_HHMMSS>.log.
const runLogNameFormat = "sweeps_20060102_150405.log"

// OpenRunLog creates a new per-run log file under logsDir, named with the
// current time, and installs it as an additional destination for
// log.Default()'s output via io.MultiWriter — so a run's transitions land
// both on the file and wherever output already went (stderr, normally).
// The caller must Close the returned file once the run ends.
func OpenRunLog(logsDir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("monitoring: create logs dir: %w", err)
	}
	path := filepath.Join(logsDir, now.Format(runLogNameFormat))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("monitoring: open run log %s: %w", path, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
