// Package backend is a small reference image service: it receives JPEG
// uploads, indexes them by day in SQLite and serves the listings and push
// socket the viewer consumes.
package backend

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"galleryview/internal/config"
	"galleryview/internal/httperr"
	"galleryview/internal/logger"
	"galleryview/internal/metrics"
	"galleryview/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReceiveResponse is the body returned for a stored upload.
type ReceiveResponse struct {
	Message  string         `json:"message"`
	Filename string         `json:"filename"`
	URL      string         `json:"url"`
	Subdir   string         `json:"subdir"`
	Metadata map[string]any `json:"metadata"`
}

func records(images []Image) []model.ImageRecord {
	out := make([]model.ImageRecord, 0, len(images))
	for _, img := range images {
		out = append(out, img.Record())
	}
	return out
}

// DaysHandler lists the day buckets, newest first.
func DaysHandler(store *Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := store.ListDays()
		if err != nil {
			httperr.Write(w, err, logger)
			return
		}
		httperr.WriteJSON(w, http.StatusOK, days, logger)
	}
}

// ImagesByDayHandler lists the images of the day given by ?day=.
func ImagesByDayHandler(store *Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day := r.URL.Query().Get("day")
		if day == "" {
			httperr.Write(w, httperr.New(http.StatusBadRequest, "day is required"), logger)
			return
		}
		images, err := store.ListByDay(day)
		if err != nil {
			httperr.Write(w, err, logger)
			return
		}
		httperr.WriteJSON(w, http.StatusOK, records(images), logger)
	}
}

// AllImagesHandler lists every image, newest first.
func AllImagesHandler(store *Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		images, err := store.ListAll()
		if err != nil {
			httperr.Write(w, err, logger)
			return
		}
		httperr.WriteJSON(w, http.StatusOK, records(images), logger)
	}
}

// ReceiveHandler accepts a multipart upload in the "image" field.
func ReceiveHandler(intake *Intake, maxBytes int64, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		img, err := receive(r, intake)
		if err != nil {
			metrics.Uploads.WithLabelValues("rejected").Inc()
			httperr.Write(w, err, logger)
			return
		}
		metrics.Uploads.WithLabelValues("stored").Inc()

		rec := img.Record()
		httperr.WriteJSON(w, http.StatusOK, ReceiveResponse{
			Message:  "Image received",
			Filename: rec.Filename,
			URL:      rec.URL,
			Subdir:   img.Day,
			Metadata: rec.Metadata,
		}, logger)
	}
}

func receive(r *http.Request, intake *Intake) (*Image, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, httperr.New(http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, httperr.New(http.StatusBadRequest, "No image part")
		}
		return nil, httperr.New(http.StatusBadRequest, "Malformed upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return intake.Receive(r.Context(), header.Filename, data)
}

// NewRouter mounts the backend API, the uploaded files and the push socket.
func NewRouter(cfg config.Backend, store *Store, intake *Intake, push *PushHub, logger *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/get-days", DaysHandler(store, logger))
	r.Get("/get-images-by-day", ImagesByDayHandler(store, logger))
	r.Get("/get-images", AllImagesHandler(store, logger))
	r.Get("/uploaded_images", AllImagesHandler(store, logger))
	r.Post("/receive", ReceiveHandler(intake, cfg.MaxUploadMB<<20, logger))
	r.Get("/ws", PushHandler(push, logger))
	r.Handle("/metrics", promhttp.Handler())

	prefix := "/" + strings.Trim(cfg.PublicPrefix, "/")
	r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.UploadDirectory))))
	return r
}
