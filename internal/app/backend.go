package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"galleryview/internal/backend"
	"galleryview/internal/config"
	"galleryview/internal/logger"
	"galleryview/internal/metrics"
)

// Backend is the reference image service the viewer reads from.
type Backend struct {
	config  config.Backend
	logger  *logger.Logger
	store   *backend.Store
	push    *backend.PushHub
	handler http.Handler
}

// NewBackend opens the image index and prepares the upload directory.
func NewBackend(cfg config.Backend, logger *logger.Logger) (*Backend, error) {
	if err := os.MkdirAll(cfg.UploadDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	store, err := backend.OpenStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	push := backend.NewPushHub(logger)
	intake := backend.NewIntake(cfg.UploadDirectory, cfg.PublicPrefix, store, push, logger)

	return &Backend{
		config:  cfg,
		logger:  logger,
		store:   store,
		push:    push,
		handler: backend.NewRouter(cfg, store, intake, push, logger),
	}, nil
}

// Run listens on the configured port and serves until ctx ends.
func (b *Backend) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", b.config.Port))
	if err != nil {
		b.store.Close()
		return fmt.Errorf("failed to listen: %w", err)
	}
	return b.Serve(ctx, ln)
}

// Serve runs the push hub and the HTTP server on ln until ctx ends, then
// closes the store.
func (b *Backend) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer b.store.Close()

	go b.push.Run(ctx)
	if err := metrics.RegisterGaugeFunc("backend_push_subscribers", "Connected push subscribers", func() float64 {
		return float64(b.push.GetClientCount())
	}); err != nil {
		b.logger.Warning("Failed to register push gauge: %v", err)
	}

	b.logger.Info("Image backend listening on %s", ln.Addr())
	b.logger.Info("Uploads: %s (served under %s)", b.config.UploadDirectory, b.config.PublicPrefix)
	b.logger.Info("Database: %s", b.config.DatabasePath)

	return serve(ctx, ln, b.handler, b.logger)
}
