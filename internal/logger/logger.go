package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"galleryview/internal/config"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level
// files and stdout/stderr.
type Logger struct {
	debugLog   *slog.Logger
	infoLog    *slog.Logger
	warningLog *slog.Logger
	errorLog   *slog.Logger
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// New creates a Logger writing under cfg.LogDirectory. An empty directory
// disables the log files and keeps console output only.
func New(cfg *config.Config) (*Logger, error) {
	l := &Logger{logDir: cfg.LogDirectory}
	level := parseLevel(cfg.LogLevel)

	var infoW, warnW, errW io.Writer = os.Stdout, os.Stdout, os.Stderr
	if l.logDir != "" {
		if err := os.MkdirAll(l.logDir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		infoF, err := l.openLogFile("info.log")
		if err != nil {
			return nil, err
		}
		warnF, err := l.openLogFile("warning.log")
		if err != nil {
			return nil, err
		}
		errF, err := l.openLogFile("error.log")
		if err != nil {
			return nil, err
		}
		infoW = io.MultiWriter(os.Stdout, infoF)
		warnW = io.MultiWriter(os.Stdout, warnF)
		errW = io.MultiWriter(os.Stderr, errF)
	}

	l.debugLog = slog.New(newHandler(os.Stdout, level, cfg.LogJSON))
	l.infoLog = slog.New(newHandler(infoW, level, cfg.LogJSON))
	l.warningLog = slog.New(newHandler(warnW, level, cfg.LogJSON))
	l.errorLog = slog.New(newHandler(errW, level, cfg.LogJSON))
	slog.SetDefault(l.infoLog)
	return l, nil
}

// Discard returns a Logger that drops everything. Used by tests.
func Discard() *Logger {
	h := slog.NewTextHandler(io.Discard, nil)
	lg := slog.New(h)
	return &Logger{debugLog: lg, infoLog: lg, warningLog: lg, errorLog: lg}
}

func newHandler(w io.Writer, level slog.Level, useJSON bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if useJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) openLogFile(name string) (*os.File, error) {
	path := filepath.Join(l.logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

func (l *Logger) write(lg *slog.Logger, level slog.Level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lg.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(l.debugLog, slog.LevelDebug, format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(l.infoLog, slog.LevelInfo, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(l.warningLog, slog.LevelWarn, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(l.errorLog, slog.LevelError, format, v...)
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	if err := os.Truncate(filePath, 0); err != nil {
		l.Error("Error truncating %s: %v", filePath, err)
		return err
	}
	l.Info("Log file %s has been cleared", fileName)
	return nil
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string {
	return l.logDir
}

// Close closes the underlying log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
