// Package live carries new-image notifications from the backend push socket
// to the viewer sessions.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"galleryview/internal/logger"
	"galleryview/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// EventNewImage is the only event the viewer acts on.
const EventNewImage = "new_image"

// Envelope is one push message.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

// Sink receives decoded records.
type Sink interface {
	Broadcast(rec model.ImageRecord)
}

// Counter is satisfied by prometheus counters.
type Counter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

var validate = validator.New()

// ErrMalformed is returned for push messages that cannot be used.
var ErrMalformed = errors.New("malformed push message")

// Encode wraps rec in a new_image envelope.
func Encode(rec model.ImageRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return json.Marshal(Envelope{Event: EventNewImage, Data: data})
}

// Decode parses a push message. ok is false for events other than
// new_image.
func Decode(msg []byte) (rec model.ImageRecord, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return rec, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(env); err != nil {
		return rec, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event != EventNewImage {
		return rec, false, nil
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return rec, false, fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	if err := validate.Struct(rec); err != nil {
		return rec, false, fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	return rec, true, nil
}

// Subscriber keeps a websocket subscription to the backend push URL and
// hands every new image to its sink.
type Subscriber struct {
	URL            string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Received       Counter
	Dropped        Counter

	sink   Sink
	logger *logger.Logger
}

func NewSubscriber(url string, reconnectDelay time.Duration, sink Sink, logger *logger.Logger) *Subscriber {
	return &Subscriber{
		URL:            url,
		ReconnectDelay: reconnectDelay,
		Dialer:         websocket.DefaultDialer,
		Received:       nopCounter{},
		Dropped:        nopCounter{},
		sink:           sink,
		logger:         logger,
	}
}

// Run subscribes until ctx ends, reconnecting after ReconnectDelay whenever
// the connection fails.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warning("Live channel %s: %v; reconnecting in %s", s.URL, err, s.ReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.ReconnectDelay):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	s.logger.Info("Live channel connected to %s", s.URL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by backend")
			}
			return fmt.Errorf("read failed: %w", err)
		}

		rec, ok, err := Decode(msg)
		if err != nil {
			s.Dropped.Inc()
			s.logger.Warning("Live channel dropped message: %v", err)
			continue
		}
		if !ok {
			continue
		}
		s.Received.Inc()
		s.sink.Broadcast(rec)
	}
}
