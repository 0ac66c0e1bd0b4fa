package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"galleryview/internal/dom"
	"galleryview/internal/gallery"
	"galleryview/internal/logger"
	"galleryview/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	days   []model.DaySummary
	images map[string][]model.ImageRecord
}

func (c *stubClient) ListDays(ctx context.Context) ([]model.DaySummary, error) {
	return c.days, nil
}

func (c *stubClient) ListImages(ctx context.Context, day string) ([]model.ImageRecord, error) {
	return c.images[day], nil
}

func (c *stubClient) ListAll(ctx context.Context) ([]model.ImageRecord, error) {
	var all []model.ImageRecord
	for _, recs := range c.images {
		all = append(all, recs...)
	}
	return all, nil
}

func testDeps() Deps {
	return Deps{
		Client: &stubClient{
			days: []model.DaySummary{{Day: "20240105", Count: 1, LatestUploadTime: "2024-01-05 10:00:00"}},
			images: map[string][]model.ImageRecord{
				"20240105": {{Filename: "a.jpg", URL: "/static/uploads/20240105/a.jpg", UploadTime: "2024-01-05 10:00:00"}},
			},
		},
		Options:         gallery.Options{SkeletonCount: 2, ShowAllEntry: true},
		ProximityMargin: 150,
		Logger:          logger.Discard(),
	}
}

func nextFrame(t *testing.T, s *Session) Frame {
	t.Helper()
	select {
	case data := <-s.Frames():
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

func startSession(t *testing.T) *Session {
	t.Helper()
	s := New(testDeps())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	go s.Run(ctx)
	return s
}

func hasPatch(f Frame, op dom.Op, target, fragment string) bool {
	for _, p := range f.Patches {
		if p.Op == op && p.Target == target && strings.Contains(p.HTML, fragment) {
			return true
		}
	}
	return false
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ClientMessage
		wantErr bool
	}{
		{name: "select day", input: `{"type":"select_day","day":"20240105"}`, want: ClientMessage{Type: "select_day", Day: "20240105"}},
		{name: "select all days", input: `{"type":"select_day","day":""}`, want: ClientMessage{Type: "select_day"}},
		{name: "back", input: `{"type":"back"}`, want: ClientMessage{Type: "back"}},
		{name: "proximity", input: `{"type":"proximity","id":"img-3"}`, want: ClientMessage{Type: "proximity", ID: "img-3"}},
		{name: "proximity without id", input: `{"type":"proximity"}`, wantErr: true},
		{name: "unknown type", input: `{"type":"delete_all"}`, wantErr: true},
		{name: "missing type", input: `{}`, wantErr: true},
		{name: "oversized day", input: `{"type":"select_day","day":"` + strings.Repeat("9", 65) + `"}`, wantErr: true},
		{name: "not json", input: `select_day`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage([]byte(tt.input))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidMessage), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_FirstFrameThenDays(t *testing.T) {
	s := startSession(t)

	first := nextFrame(t, s)
	require.Len(t, first.Patches, 1)
	assert.Equal(t, dom.OpReplace, first.Patches[0].Op)
	assert.Equal(t, dom.AppID, first.Patches[0].Target)
	assert.Contains(t, first.Patches[0].HTML, `id="days-list"`)
	assert.Contains(t, first.Patches[0].HTML, "Loading…")

	days := nextFrame(t, s)
	assert.True(t, hasPatch(days, dom.OpReplace, dom.DaysListID, `data-day="20240105"`))
	assert.True(t, hasPatch(days, dom.OpReplace, dom.DaysListID, "All images"))
}

func TestSession_SelectDayStreamsCards(t *testing.T) {
	s := startSession(t)
	nextFrame(t, s)
	nextFrame(t, s)

	require.True(t, s.Post(func() { s.Apply(ClientMessage{Type: "select_day", Day: "20240105"}) }))

	loading := nextFrame(t, s)
	assert.True(t, hasPatch(loading, dom.OpReplace, dom.GalleryID, "skeleton"))

	cards := nextFrame(t, s)
	appendAt, observeAt := -1, -1
	for i, p := range cards.Patches {
		switch {
		case p.Op == dom.OpAppend && strings.Contains(p.HTML, "a.jpg"):
			appendAt = i
		case p.Op == dom.OpObserve:
			observeAt = i
			assert.Equal(t, "150", p.Value)
		}
	}
	require.NotEqual(t, -1, appendAt)
	require.NotEqual(t, -1, observeAt)
	assert.Less(t, appendAt, observeAt)
}

func TestSession_PostAfterEnd(t *testing.T) {
	s := New(testDeps())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	nextFrame(t, s)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.False(t, s.Post(func() {}))
	assert.False(t, s.PushLive(model.ImageRecord{Filename: "x.jpg"}))
}

func TestHub_BroadcastReachesSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(logger.Discard())
	go hub.Run(ctx)

	s := startSession(t)
	nextFrame(t, s)
	nextFrame(t, s)

	hub.Register(s)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(model.ImageRecord{
		Filename:   "b.jpg",
		URL:        "/static/uploads/20240106/b.jpg",
		UploadTime: "2024-01-06 08:00:00",
	})

	f := nextFrame(t, s)
	assert.True(t, hasPatch(f, dom.OpPrepend, dom.DaysListID, `data-day="20240106"`))

	hub.Unregister(s)
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

type countingCounter struct{ n atomic.Int64 }

func (c *countingCounter) Inc() { c.n.Add(1) }

func TestHub_BusySessionDoesNotStallOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(logger.Discard())
	dropped := &countingCounter{}
	hub.Dropped = dropped
	go hub.Run(ctx)

	stuck := New(testDeps()) // never run, so its event queue fills up
	hub.Register(stuck)

	const pushes = eventBuffer + 10
	for i := 0; i < pushes; i++ {
		hub.Broadcast(model.ImageRecord{Filename: fmt.Sprintf("%d.jpg", i), URL: fmt.Sprintf("/static/uploads/20240106/%d.jpg", i)})
	}
	require.Eventually(t, func() bool { return dropped.n.Load() == pushes-eventBuffer }, 2*time.Second, 10*time.Millisecond)

	s := startSession(t)
	nextFrame(t, s)
	nextFrame(t, s)

	registered := make(chan struct{})
	go func() {
		hub.Register(s)
		close(registered)
	}()
	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("Register blocked behind a busy session")
	}
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(model.ImageRecord{Filename: "c.jpg", URL: "/static/uploads/20240107/c.jpg", UploadTime: "2024-01-07 08:00:00"})
	f := nextFrame(t, s)
	assert.True(t, hasPatch(f, dom.OpPrepend, dom.DaysListID, `data-day="20240107"`))
}

func TestHandler_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(logger.Discard())
	go hub.Run(ctx)

	srv := httptest.NewServer(Handler(hub, testDeps()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Frame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	first := read()
	require.Len(t, first.Patches, 1)
	assert.Equal(t, dom.AppID, first.Patches[0].Target)
	read()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "select_day", Day: "20240105"}))

	var sawCard bool
	for i := 0; i < 3 && !sawCard; i++ {
		sawCard = hasPatch(read(), dom.OpAppend, dom.GalleryID, "a.jpg")
	}
	assert.True(t, sawCard)
	assert.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
}
