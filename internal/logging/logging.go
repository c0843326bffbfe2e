// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// Setup applies the level and format from cfg and, when errorLogPath is set, duplicates error entries into
// that file. The returned closer releases the file.
func Setup(cfg config.LogConfig, errorLogPath string) (io.Closer, error) {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	log.SetFormatter(newFormatter(cfg.Format))

	if errorLogPath == "" {
		return io.NopCloser(nil), nil
	}

	hook, err := NewErrorFileHook(errorLogPath)
	if err != nil {
		return nil, err
	}
	log.AddHook(hook)

	return hook, nil
}

func newFormatter(format string) log.Formatter {
	if strings.EqualFold(format, "json") {
		return &log.JSONFormatter{TimestampFormat: timestampFormat}
	}
	return &log.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat}
}

// ErrorFileHook appends error, fatal and panic entries to a file.
type ErrorFileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter log.Formatter
}

func NewErrorFileHook(path string) (*ErrorFileHook, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create error log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log %s: %w", path, err)
	}

	return &ErrorFileHook{
		file:      f,
		formatter: &log.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: timestampFormat},
	}, nil
}

func (h *ErrorFileHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel}
}

func (h *ErrorFileHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.file.Write(line)
	return err
}

func (h *ErrorFileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}
