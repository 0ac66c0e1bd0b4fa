// Package handler serves the viewer shell: the page, its script and styles,
// health and the log files.
package handler

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"galleryview/internal/logger"
)

//go:embed web
var webFS embed.FS

var pageTemplate = template.Must(template.ParseFS(webFS, "web/index.html"))

// PageData fills the shell template.
type PageData struct {
	Title      string
	SocketPath string
}

// IndexHandler renders the shell page. Everything inside #app is drawn by the
// session over the socket at SocketPath.
func IndexHandler(data PageData, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := pageTemplate.Execute(w, data); err != nil {
			logger.Error("Error rendering page: %v", err)
		}
	}
}

// StaticHandler serves the embedded script and styles. Mount it with the
// /static/ prefix stripped.
func StaticHandler() http.Handler {
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(static))
}
