package handler

import (
	"net/http"

	"galleryview/internal/httperr"
	"galleryview/internal/logger"
)

// Counter reports a live count, such as connected sessions.
type Counter interface {
	Count() int
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Live     bool   `json:"live"`
}

// HealthHandler reports that the viewer is up, how many sessions are open
// and whether live updates are configured.
func HealthHandler(sessions Counter, live bool, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httperr.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Sessions: sessions.Count(),
			Live:     live,
		}, logger)
	}
}
