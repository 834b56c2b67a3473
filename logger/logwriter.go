package logger

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
)

// LogBufferWriter is an io.Writer that feeds complete lines into a LogBuffer.
// Lines shaped "[source] [LEVEL] message" are split into their parts; anything
// else is attributed to "system".
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var (
	sourceRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
	levelRegex  = regexp.MustCompile(`^\[(INFO|WARN|ERROR)\]\s*(.*)$`)
)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next Write
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}
		source, level, message := splitLine(line)
		lw.buffer.Add(source, level, message)
	}

	return len(p), nil
}

func splitLine(line string) (source, level, message string) {
	source, message = "system", line

	if m := levelRegex.FindStringSubmatch(message); len(m) == 3 {
		return source, m[1], m[2]
	}
	if m := sourceRegex.FindStringSubmatch(line); len(m) == 3 {
		source, message = m[1], m[2]
	}
	if m := levelRegex.FindStringSubmatch(message); len(m) == 3 {
		level, message = m[1], m[2]
	}
	return source, level, message
}
