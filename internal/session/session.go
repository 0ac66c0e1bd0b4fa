// Package session runs one viewer page per websocket connection. Each
// Session owns a retained document and serializes every event touching it on
// a single goroutine.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"galleryview/internal/dom"
	"galleryview/internal/gallery"
	"galleryview/internal/lazyload"
	"galleryview/internal/logger"
	"galleryview/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	eventBuffer = 64
	frameBuffer = 16
)

// Frame is one batch of patches written to the browser.
type Frame struct {
	Patches []dom.Patch `json:"patches"`
}

// ClientMessage is an event sent by the browser shell.
type ClientMessage struct {
	Type string `json:"type" validate:"required,oneof=select_day back proximity loaded open close"`
	Day  string `json:"day" validate:"omitempty,max=64"`
	ID   string `json:"id" validate:"omitempty,max=128"`
}

var validate = validator.New()

// ErrInvalidMessage is returned for browser messages that fail validation.
var ErrInvalidMessage = errors.New("invalid client message")

// ParseMessage decodes and validates a browser message.
func ParseMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch msg.Type {
	case "proximity", "loaded", "open":
		if msg.ID == "" {
			return msg, fmt.Errorf("%w: %s requires an id", ErrInvalidMessage, msg.Type)
		}
	}
	return msg, nil
}

// Deps holds what every session is built from.
type Deps struct {
	Client          gallery.DataClient
	Options         gallery.Options
	ProximityMargin int
	LoaderMetrics   lazyload.Metrics
	GalleryMetrics  gallery.Metrics
	Logger          *logger.Logger
}

// Session is one live viewer page.
type Session struct {
	id     string
	doc    *dom.Document
	ctrl   *gallery.Controller
	events chan func()
	out    chan []byte
	done   chan struct{}
	ctx    context.Context
	log    *logger.Logger
}

// New builds a session. Run must be called to start it.
func New(deps Deps) *Session {
	doc := dom.NewDocument()
	s := &Session{
		id:     uuid.NewString(),
		doc:    doc,
		events: make(chan func(), eventBuffer),
		out:    make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
		ctx:    context.Background(),
		log:    deps.Logger,
	}
	loader := lazyload.New(doc, deps.ProximityMargin, deps.LoaderMetrics)
	s.ctrl = gallery.NewController(doc, loader, deps.Client, s, deps.Options, deps.GalleryMetrics, deps.Logger)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Frames delivers encoded frames for the writer.
func (s *Session) Frames() <-chan []byte { return s.out }

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Post queues fn to run on the session loop. It reports false once the
// session has ended.
func (s *Session) Post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Go runs work on its own goroutine and posts then back to the loop.
func (s *Session) Go(work func(ctx context.Context), then func()) {
	ctx := s.ctx
	go func() {
		work(ctx)
		s.Post(then)
	}()
}

// TryPost queues fn without waiting. It reports false when the session has
// ended or its event queue is full.
func (s *Session) TryPost(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	default:
		return false
	}
}

// PushLive queues a live upload for the page without waiting. It reports
// false when the upload could not be queued.
func (s *Session) PushLive(rec model.ImageRecord) bool {
	return s.TryPost(func() { s.ctrl.PushLive(rec) })
}

// Apply performs a browser message. It must run on the session loop.
func (s *Session) Apply(msg ClientMessage) {
	switch msg.Type {
	case "select_day":
		s.ctrl.SelectDay(msg.Day)
	case "back":
		s.ctrl.GoBack()
	case "proximity":
		s.ctrl.Proximity(msg.ID)
	case "loaded":
		s.ctrl.Loaded(msg.ID)
	case "open":
		if !s.ctrl.OpenDetail(msg.ID) {
			s.log.Debug("Session %s: open for unknown card %s", s.id, msg.ID)
		}
	case "close":
		s.ctrl.CloseDetail()
	}
}

// Run starts the page and processes events until ctx ends. The first frame
// replaces the whole app container.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)

	s.ctrl.Start()
	s.doc.Drain()
	s.send(ctx, Frame{Patches: []dom.Patch{{
		Op:     dom.OpReplace,
		Target: dom.AppID,
		HTML:   dom.InnerHTML(s.doc.Root()),
	}}})

	for {
		select {
		case <-ctx.Done():
			s.ctrl.Teardown()
			s.doc.Drain()
			return nil
		case fn := <-s.events:
			fn()
			if patches := s.doc.Drain(); len(patches) > 0 {
				s.send(ctx, Frame{Patches: patches})
			}
		}
	}
}

func (s *Session) send(ctx context.Context, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.log.Error("Session %s: encode frame: %v", s.id, err)
		return
	}
	select {
	case s.out <- data:
	case <-ctx.Done():
	}
}
