package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLogger writes log messages to a file.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	file   *os.File
	mu     sync.Mutex
	closed bool
}

// NewFileLogger creates a new file logger that writes to the specified path.
// The file is created if it doesn't exist, or appended to if it does.
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileLogger{
		file: file,
	}, nil
}

// Log writes a formatted message to the log file with a timestamp.
// This method is safe to call from any goroutine.
func (l *FileLogger) Log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "%s %s\n", timestamp, msg)
}

// Info, Warn and Fatal are the level-tagged entry points the gateway's
// process lifecycle wrapper uses in place of Log's bare format string,
// so a line always carries the severity a fleet operator greps for
// ("fatal: load catalog: ...") instead of leaving it to
// the caller to remember to spell it out.
func (l *FileLogger) Info(format string, args ...interface{}) {
	l.Log("info: "+format, args...)
}

func (l *FileLogger) Warn(format string, args ...interface{}) {
	l.Log("warning: "+format, args...)
}

func (l *FileLogger) Fatal(format string, args ...interface{}) {
	l.Log("fatal: "+format, args...)
}

// PLC scopes a message to one device, prefixing it with its id so a
// fleet-wide log file can be grepped per PLC the way a gateway
// operator actually reads it.
func (l *FileLogger) PLC(plcID, format string, args ...interface{}) {
	l.Info("PLC %s: %s", plcID, fmt.Sprintf(format, args...))
}

// Close closes the log file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.file.Close()
}

