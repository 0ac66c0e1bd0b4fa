package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"galleryview/internal/apiclient"
	"galleryview/internal/config"
	"galleryview/internal/gallery"
	"galleryview/internal/live"
	"galleryview/internal/logger"
	"galleryview/internal/metrics"
	"galleryview/internal/routes"
	"galleryview/internal/session"
)

const shutdownTimeout = 5 * time.Second

// App is the gallery viewer: the session hub, the optional live channel and
// the HTTP server in front of them.
type App struct {
	config     *config.Config
	logger     *logger.Logger
	hub        *session.Hub
	subscriber *live.Subscriber
	handler    http.Handler
}

func NewApp(cfg *config.Config, logger *logger.Logger) *App {
	hub := session.NewHub(logger)
	hub.Dropped = metrics.LiveOverflow()
	deps := session.Deps{
		Client: apiclient.New(cfg.BackendURL, cfg.RequestTimeout),
		Options: gallery.Options{
			SkeletonCount: cfg.SkeletonCount,
			ShowAllEntry:  cfg.ShowAllEntry,
		},
		ProximityMargin: cfg.ProximityMargin,
		LoaderMetrics:   metrics.LoaderMetrics(),
		GalleryMetrics:  metrics.GalleryMetrics(),
		Logger:          logger,
	}

	var sub *live.Subscriber
	if cfg.LiveURL != "" {
		sub = live.NewSubscriber(cfg.LiveURL, cfg.LiveReconnectDelay, hub, logger)
		sub.Received = metrics.LiveReceived()
		sub.Dropped = metrics.LiveDropped()
	}

	return &App{
		config:     cfg,
		logger:     logger,
		hub:        hub,
		subscriber: sub,
		handler:    routes.SetupRoutes(cfg, hub, deps, logger),
	}
}

// Run listens on the configured port and serves until ctx ends.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the background services and the HTTP server on ln until ctx
// ends.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)
	if a.subscriber != nil {
		go a.subscriber.Run(ctx)
	}
	if err := metrics.RegisterGaugeFunc("gallery_sessions_open", "Open viewer sessions", func() float64 {
		return float64(a.hub.Count())
	}); err != nil {
		a.logger.Warning("Failed to register session gauge: %v", err)
	}

	a.logger.Info("Gallery viewer listening on %s", ln.Addr())
	a.logger.Info("Backend: %s", a.config.BackendURL)
	if a.subscriber != nil {
		a.logger.Info("Live updates: %s", a.config.LiveURL)
	} else {
		a.logger.Info("Live updates disabled")
	}

	return serve(ctx, ln, a.handler, a.logger)
}

// serve runs an HTTP server on ln and shuts it down gracefully when ctx
// ends. Request contexts derive from ctx so hijacked websocket connections
// end with it.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *logger.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down %s", ln.Addr())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
