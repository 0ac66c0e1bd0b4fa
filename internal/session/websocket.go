package session

import (
	"context"
	"net/http"
	"time"

	"galleryview/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades a viewer connection, starts its session and registers it
// with the hub for live updates.
func Handler(hub *Hub, deps Deps) http.HandlerFunc {
	log := deps.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		s := New(deps)
		hub.Register(s)
		defer hub.Unregister(s)

		Serve(r.Context(), conn, s, log)
	}
}

// Serve runs s over conn until either side ends.
func Serve(ctx context.Context, conn *websocket.Conn, s *Session, log *logger.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := s.Run(ctx); err != nil {
			log.Error("Session %s: %v", s.ID(), err)
		}
	}()
	go func() {
		defer conn.Close()
		defer cancel()
		writePump(ctx, conn, s, log)
	}()

	readPump(conn, s, log)
	cancel()
	<-s.Done()
}

func readPump(conn *websocket.Conn, s *Session, log *logger.Logger) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("Session %s: viewer disconnected normally", s.ID())
			} else {
				log.Error("Session %s: viewer disconnected with error: %v", s.ID(), err)
			}
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			log.Warning("Session %s: dropped message: %v", s.ID(), err)
			continue
		}
		if !s.Post(func() { s.Apply(msg) }) {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, s *Session, log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.Frames():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error("Session %s: write frame: %v", s.ID(), err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
