package backend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"galleryview/internal/live"
	"galleryview/internal/logger"
	"galleryview/internal/model"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pushWriteWait   = 10 * time.Second
	pushQueueLength = 16
)

// PushHub keeps the push subscribers and sends every new upload to them.
// A subscriber whose write does not finish within WriteWait is dropped.
type PushHub struct {
	WriteWait time.Duration

	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewPushHub(logger *logger.Logger) *PushHub {
	return &PushHub{
		WriteWait:  pushWriteWait,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, pushQueueLength),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *PushHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Push subscriber connected. Total: %d", n)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Push subscriber disconnected. Total: %d", n)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(h.WriteWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Dropping push subscriber: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *PushHub) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *PushHub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues rec for every subscriber as a new_image event. It never
// blocks: when the queue is full the event is dropped.
func (h *PushHub) Publish(rec model.ImageRecord) {
	message, err := live.Encode(rec)
	if err != nil {
		h.logger.Error("Error encoding push message: %v", err)
		return
	}
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.logger.Warning("Push queue full, dropped new_image %s", rec.Filename)
	}
}

func (h *PushHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// PushHandler accepts push subscribers. Incoming frames are ignored; the
// read loop only detects disconnects.
func PushHandler(hub *PushHub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Push subscriber disconnected normally")
				} else {
					logger.Error("Push subscriber disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
