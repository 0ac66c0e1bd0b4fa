package routes

import (
	"net/http"

	"galleryview/internal/config"
	"galleryview/internal/handler"
	"galleryview/internal/logger"
	"galleryview/internal/metrics"
	"galleryview/internal/middleware"
	"galleryview/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SocketPath is where the shell opens its session socket.
const SocketPath = "/ws"

const contentSecurityPolicy = "default-src 'self'; " +
	"style-src 'self' https://cdn.jsdelivr.net; " +
	"img-src * data: blob:; " +
	"connect-src 'self' ws: wss:"

// SetupRoutes registers the shell page, its static files, the session
// socket, health, metrics and (with an admin token configured) the log
// endpoints.
func SetupRoutes(cfg *config.Config, hub *session.Hub, deps session.Deps, logger *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(middleware.SecurityHeaders(contentSecurityPolicy))

	r.Get("/", handler.IndexHandler(handler.PageData{Title: "Image Gallery", SocketPath: SocketPath}, logger))
	r.Handle("/static/*", http.StripPrefix("/static/", handler.StaticHandler()))
	r.Get(SocketPath, session.Handler(hub, deps))

	r.Get("/healthz", handler.HealthHandler(hub, cfg.LiveURL != "", logger))
	r.Handle("/metrics", promhttp.Handler())

	if cfg.AdminToken != "" {
		r.Route("/logs/{level}", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.AdminToken))
			r.Get("/", handler.ShowLogsHandler(cfg.LogDirectory))
			r.Post("/clear", handler.ClearLogsHandler(logger))
		})
	}
	return r
}
