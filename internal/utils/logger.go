package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger writes leveled progress lines. Info and Debug lines are dropped when
// quiet; Notice and Error lines are always written.
type Logger struct {
	file   *os.File
	logger *log.Logger
	quiet  bool
}

func NewLogger(w io.Writer, quiet bool) *Logger {
	return &Logger{
		logger: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		quiet:  quiet,
	}
}

// NewRunLogger logs to stdout and, when logsDir is set, to a timestamped file
// under logsDir/<domain>.
func NewRunLogger(domain, logsDir string, quiet bool) (*Logger, error) {
	if logsDir == "" {
		return NewLogger(os.Stdout, quiet), nil
	}

	// Sanitize domain for file system
	sanitized := strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(strings.ToLower(domain))
	sanitized = strings.Trim(sanitized, "_")

	domainDir := filepath.Join(logsDir, sanitized)
	if err := os.MkdirAll(domainDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(domainDir, fmt.Sprintf("sitemap_%s_%s.log", sanitized, timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	l := NewLogger(io.MultiWriter(os.Stdout, file), quiet)
	l.file = file
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return NewLogger(io.Discard, true)
}

func (l *Logger) LogInfo(format string, v ...interface{}) {
	if l.quiet {
		return
	}
	l.log("INFO", format, v...)
}

func (l *Logger) LogNotice(format string, v ...interface{}) {
	l.log("NOTICE", format, v...)
}

func (l *Logger) LogError(format string, v ...interface{}) {
	l.log("ERROR", format, v...)
}

func (l *Logger) LogDebug(format string, v ...interface{}) {
	if l.quiet {
		return
	}
	l.log("DEBUG", format, v...)
}

func (l *Logger) log(level string, format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	l.logger.Printf("[%s] %s", level, message)
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
