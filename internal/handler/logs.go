package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"galleryview/internal/httperr"
	"galleryview/internal/logger"

	"github.com/go-chi/chi/v5"
)

var logFiles = map[string]string{
	"info":    "info.log",
	"warning": "warning.log",
	"error":   "error.log",
}

func logFile(r *http.Request) (string, bool) {
	name, ok := logFiles[chi.URLParam(r, "level")]
	return name, ok
}

// ShowLogsHandler serves the log file of the {level} URL parameter as
// text/plain.
func ShowLogsHandler(logDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := logFile(r)
		if !ok || logDir == "" {
			http.NotFound(w, r)
			return
		}
		serveLogFile(w, r, logDir, name)
	}
}

func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates the log file of the {level} URL parameter.
func ClearLogsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := logFile(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if err := logger.CleanLogs(name); err != nil {
			httperr.Write(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
