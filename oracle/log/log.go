package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu       sync.RWMutex
	root     = newLogger(os.Stdout, hclog.Info)
	logLevel = hclog.Info
)

func newLogger(w io.Writer, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            "oracled",
		Level:           level,
		Output:          w,
		IncludeLocation: true,
		// Debugf and friends add one frame on top of hclog.
		AdditionalLocationOffset: 1,
	})
}

// InitLogger resets the logger to stdout at the given level ("debug", "info", "error", ...).
// Unknown levels fall back to info.
func InitLogger(level ...string) {
	mu.Lock()
	defer mu.Unlock()

	logLevel = hclog.Info
	if len(level) > 0 {
		if l := hclog.LevelFromString(level[0]); l != hclog.NoLevel {
			logLevel = l
		}
	}
	root = newLogger(os.Stdout, logLevel)
}

// ResetLogger redirects every subsequent log line to a file under <oracleHome>/logs.
func ResetLogger(oracleHome string) {
	if oracleHome == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			Fatalf("Failed to get user home directory: %v", err)
		}
		oracleHome = filepath.Join(osHome, ".oracled")
	}

	dir := filepath.Join(oracleHome, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		Fatalf("Failed to create log directory %s: %v", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		Fatalf("Failed to create log file: %v", err)
	}

	Infof("From now on, all logs will be written to %s", path)

	mu.Lock()
	root = newLogger(file, logLevel)
	mu.Unlock()
}

func current() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// With returns a component logger carrying the given key/value pairs.
func With(name string, args ...any) hclog.Logger {
	return current().Named(name).With(args...)
}

// Logger returns the process logger.
func Logger() hclog.Logger {
	return current()
}

func Debug(v ...any) {
	current().Debug(fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	current().Debug(fmt.Sprintf(format, v...))
}

func Info(v ...any) {
	current().Info(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	current().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	current().Warn(fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	current().Error(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	current().Error(fmt.Sprintf(format, v...))
}

func Fatal(v ...any) {
	current().Error(fmt.Sprint(v...))
	os.Exit(1)
}

func Fatalf(format string, v ...any) {
	current().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
