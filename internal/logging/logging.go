// Package logging provides the dual file+console logger every other
// component writes through: a plain-text line to the log file for every
// message, and a color-coded line to stderr for warnings and above.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timeFormat = "2006-01-02 15:04:05"

// Logger writes INFO+ lines to a file and WARNING+ lines to both the file
// and stderr (colored). A nil *Logger is valid and discards everything,
// matching components that are given no logger in tests.
type Logger struct {
	mu   sync.Mutex
	file io.WriteCloser

	warn *color.Color
}

// New opens (truncating) name and returns a Logger writing to it.
func New(name string) (*Logger, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", name, err)
	}
	return &Logger{
		file: f,
		warn: color.New(color.FgYellow, color.Bold),
	}, nil
}

// Infof writes a timestamped line to the log file only.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.writeFile(format, args...)
}

// Warnf writes a timestamped line to the log file and a colored line to
// stderr.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.writeFile(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warn.Fprintln(os.Stderr, fmt.Sprintf(format, args...))
}

func (l *Logger) writeFile(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s: %s\n", time.Now().Format(timeFormat), fmt.Sprintf(format, args...))
	_, _ = io.WriteString(l.file, line)
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
