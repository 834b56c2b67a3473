// Package logger provides the fleet's process-wide logger. It fans every line out to
// any number of writers (stdout, the interactive log buffer, a file).
// Init must be called early in the application lifecycle before using AddOutput or SetEnabled.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is a configurable logger that can write to multiple outputs
type Logger struct {
	mu         sync.Mutex
	outputs    []io.Writer
	prefix     string
	enabled    bool
	timestamps bool
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// ErrNotInitialized is returned by the mutators when Init has not run yet.
var ErrNotInitialized = errors.New("logger not initialized: call logger.Init() first")

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// Init initializes the global logger. Lines written to stdout carry a timestamp;
// buffer outputs add their own.
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStdout {
			outputs = append(outputs, os.Stdout)
		}
		globalLogger = &Logger{
			outputs:    outputs,
			prefix:     prefix,
			enabled:    true,
			timestamps: writeToStdout,
		}
	})
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.outputs = append(globalLogger.outputs, w)
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	kept := globalLogger.outputs[:0]
	for _, output := range globalLogger.outputs {
		if output != w {
			kept = append(kept, output)
		}
	}
	globalLogger.outputs = kept
	return nil
}

// SetEnabled enables or disables logging.
// Returns an error if called before Init.
func SetEnabled(enabled bool) error {
	if globalLogger == nil {
		return ErrNotInitialized
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.enabled = enabled
	return nil
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	if globalLogger == nil {
		// Fallback to standard log if not initialized
		log.Printf(format, v...)
		return
	}

	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	if !globalLogger.enabled || len(globalLogger.outputs) == 0 {
		return
	}

	msg := strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")
	if globalLogger.prefix != "" {
		msg = fmt.Sprintf("[%s] %s", globalLogger.prefix, msg)
	}

	line := []byte(msg + "\n")
	stamped := line
	if globalLogger.timestamps {
		stamped = []byte(time.Now().Format("2006/01/02 15:04:05 ") + msg + "\n")
	}
	for _, output := range globalLogger.outputs {
		if output == os.Stdout || output == os.Stderr {
			output.Write(stamped)
			continue
		}
		output.Write(line)
	}
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	Printf("[INFO] "+format, v...)
}

// Info logs an info-level message
func Info(v ...interface{}) {
	Printf("[INFO] %s", fmt.Sprint(v...))
}

// Warnf logs a warning-level formatted message
func Warnf(format string, v ...interface{}) {
	Printf("[WARN] "+format, v...)
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	Printf("[ERROR] "+format, v...)
}

// Error logs an error-level message
func Error(v ...interface{}) {
	Printf("[ERROR] %s", fmt.Sprint(v...))
}

// Scope is a logger bound to one source (a robot, the registry, the broker).
// Every line is written as "[source] message" so LogBufferWriter can attribute it.
type Scope struct {
	source string
}

// Named returns a Scope writing under the given source name.
func Named(source string) *Scope {
	return &Scope{source: source}
}

// Source returns the name lines are attributed to.
func (s *Scope) Source() string {
	return s.source
}

func (s *Scope) Printf(format string, v ...interface{}) {
	Printf("[%s] %s", s.source, fmt.Sprintf(format, v...))
}

func (s *Scope) Infof(format string, v ...interface{}) {
	Printf("[%s] [INFO] %s", s.source, fmt.Sprintf(format, v...))
}

func (s *Scope) Warnf(format string, v ...interface{}) {
	Printf("[%s] [WARN] %s", s.source, fmt.Sprintf(format, v...))
}

func (s *Scope) Errorf(format string, v ...interface{}) {
	Printf("[%s] [ERROR] %s", s.source, fmt.Sprintf(format, v...))
}

// GetGlobalLogger returns the global logger instance (for testing/debugging)
func GetGlobalLogger() *Logger {
	return globalLogger
}
