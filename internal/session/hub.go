package session

import (
	"context"
	"sync"

	"galleryview/internal/gallery"
	"galleryview/internal/logger"
	"galleryview/internal/model"
)

type nopCounter struct{}

func (nopCounter) Inc() {}

// Hub tracks the live sessions and fans live uploads out to them. A session
// whose event queue is full misses the upload and Dropped is incremented.
type Hub struct {
	Dropped gallery.Counter

	sessions   map[*Session]bool
	broadcast  chan model.ImageRecord
	register   chan *Session
	unregister chan *Session
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		Dropped:    nopCounter{},
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan model.ImageRecord, 16),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.mutex.Lock()
			h.sessions[s] = true
			n := len(h.sessions)
			h.mutex.Unlock()
			h.logger.Info("Session %s connected. Total: %d", s.ID(), n)

		case s := <-h.unregister:
			h.mutex.Lock()
			delete(h.sessions, s)
			n := len(h.sessions)
			h.mutex.Unlock()
			h.logger.Info("Session %s disconnected. Total: %d", s.ID(), n)

		case rec := <-h.broadcast:
			for _, s := range h.snapshot() {
				if !s.PushLive(rec) {
					h.Dropped.Inc()
					h.logger.Warning("Session %s missed live update %s", s.ID(), rec.Filename)
				}
			}
		}
	}
}

func (h *Hub) snapshot() []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.done:
	}
}

func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast queues rec for every connected session. It is a no-op once the
// hub has stopped.
func (h *Hub) Broadcast(rec model.ImageRecord) {
	select {
	case h.broadcast <- rec:
	case <-h.done:
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}
