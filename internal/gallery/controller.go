// Package gallery renders image records into a retained page and drives the
// two-view navigation between the day list and a day's images.
package gallery

import (
	"context"
	"fmt"

	"galleryview/internal/dom"
	"galleryview/internal/lazyload"
	"galleryview/internal/logger"
	"galleryview/internal/model"

	"golang.org/x/net/html"
)

// DataClient fetches listings from the backend.
type DataClient interface {
	ListDays(ctx context.Context) ([]model.DaySummary, error)
	ListImages(ctx context.Context, day string) ([]model.ImageRecord, error)
	ListAll(ctx context.Context) ([]model.ImageRecord, error)
}

// Dispatcher runs blocking work off the event loop. then must be invoked on
// the event loop after work returns; a dispatcher that is shutting down may
// drop it.
type Dispatcher interface {
	Go(work func(ctx context.Context), then func())
}

// View is the visible half of the page.
type View int

const (
	DaysView View = iota
	ImagesView
)

func (v View) String() string {
	switch v {
	case DaysView:
		return "days"
	case ImagesView:
		return "images"
	default:
		return fmt.Sprintf("View(%d)", int(v))
	}
}

// Counter is satisfied by prometheus counters.
type Counter = lazyload.Counter

type nopCounter struct{}

func (nopCounter) Inc() {}

// Metrics are optional counters updated by a Controller.
type Metrics struct {
	StaleDiscarded Counter
	FetchFailed    Counter
	LiveApplied    Counter
	LiveSuppressed Counter
}

func (m *Metrics) fill() {
	for _, c := range []*Counter{&m.StaleDiscarded, &m.FetchFailed, &m.LiveApplied, &m.LiveSuppressed} {
		if *c == nil {
			*c = nopCounter{}
		}
	}
}

// Options tune a Controller.
type Options struct {
	SkeletonCount int
	ShowAllEntry  bool
}

// Controller owns the navigation state of one page. All methods must be
// called from the owning event loop.
type Controller struct {
	doc      *dom.Document
	render   *Renderer
	loader   *lazyload.Loader
	client   DataClient
	dispatch Dispatcher
	opts     Options
	metrics  Metrics
	log      *logger.Logger

	view View
	day  string

	imagesToken uint64
	daysToken   uint64

	cards    []*CardHandle
	byKey    map[string]*CardHandle
	byCardID map[string]*CardHandle
	fillers  []*html.Node // skeletons and messages in the gallery
	detail   *CardHandle

	daysLoaded bool
	dayRows    map[string]*dayRow
	liveCount  int
	liveSeen   map[string]struct{} // live uploads already applied, by URL
}

// NewController builds a controller over doc. Start must be called to load
// the day list.
func NewController(doc *dom.Document, loader *lazyload.Loader, client DataClient, dispatch Dispatcher, opts Options, metrics Metrics, log *logger.Logger) *Controller {
	if opts.SkeletonCount <= 0 {
		opts.SkeletonCount = 8
	}
	metrics.fill()
	return &Controller{
		doc:      doc,
		render:   NewRenderer(doc, loader),
		loader:   loader,
		client:   client,
		dispatch: dispatch,
		opts:     opts,
		metrics:  metrics,
		log:      log,
		byKey:    make(map[string]*CardHandle),
		byCardID: make(map[string]*CardHandle),
		dayRows:  make(map[string]*dayRow),
		liveSeen: make(map[string]struct{}),
	}
}

// State returns the current view and, in ImagesView, the selected day.
func (c *Controller) State() (View, string) {
	return c.view, c.day
}

// Cards returns the rendered cards in page order.
func (c *Controller) Cards() []*CardHandle {
	out := make([]*CardHandle, 0, len(c.cards))
	for _, n := range dom.Children(c.render.Gallery()) {
		if h, ok := c.byCardID[dom.ID(n)]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Start shows the day list and fetches it.
func (c *Controller) Start() {
	c.showDays()
	c.loadDays()
}

func (c *Controller) loadDays() {
	list := c.doc.ByID(dom.DaysListID)
	c.doc.SetChildren(list, Message(msgLoading, "list-group-item", "Loading…"))

	c.daysToken++
	token := c.daysToken
	var (
		days []model.DaySummary
		err  error
	)
	c.dispatch.Go(func(ctx context.Context) {
		days, err = c.client.ListDays(ctx)
	}, func() {
		c.applyDays(token, days, err)
	})
}

func (c *Controller) applyDays(token uint64, days []model.DaySummary, err error) {
	if token != c.daysToken {
		c.metrics.StaleDiscarded.Inc()
		return
	}
	list := c.doc.ByID(dom.DaysListID)
	c.dayRows = make(map[string]*dayRow)

	if err != nil {
		c.metrics.FetchFailed.Inc()
		c.log.Error("Failed to load days: %v", err)
		c.doc.SetChildren(list, Message(msgError, "list-group-item", "Error loading days: "+err.Error()))
		return
	}
	c.daysLoaded = true
	if len(days) == 0 {
		c.doc.SetChildren(list, Message(msgEmpty, "list-group-item", "No images yet."))
		return
	}

	rows := make([]*html.Node, 0, len(days)+1)
	for _, d := range days {
		row := c.render.dayRow(d)
		c.dayRows[d.Day] = row
		rows = append(rows, row.node)
	}
	if c.opts.ShowAllEntry {
		rows = append(rows, c.render.allImagesRow())
	}
	c.doc.SetChildren(list, rows...)
	c.log.Debug("Rendered %d days", len(days))
}

// SelectDay switches to the images of day and fetches them. model.AllDays
// selects the flat listing of every image.
func (c *Controller) SelectDay(day string) {
	c.CloseDetail()
	c.clearGallery()
	c.view = ImagesView
	c.day = day
	c.resetLiveIndicator()

	title := "Day " + day
	if day == model.AllDays {
		title = "All images"
	}
	c.doc.SetText(c.doc.ByID(dom.CurrentDayID), title)

	c.fillers = c.render.Skeletons(c.opts.SkeletonCount)
	c.doc.SetChildren(c.render.Gallery(), c.fillers...)
	c.showImages()

	c.imagesToken++
	token := c.imagesToken
	var (
		images []model.ImageRecord
		err    error
	)
	c.dispatch.Go(func(ctx context.Context) {
		if day == model.AllDays {
			images, err = c.client.ListAll(ctx)
			return
		}
		images, err = c.client.ListImages(ctx, day)
	}, func() {
		c.applyImages(token, day, images, err)
	})
}

func (c *Controller) applyImages(token uint64, day string, images []model.ImageRecord, err error) {
	if token != c.imagesToken || c.view != ImagesView || c.day != day {
		c.metrics.StaleDiscarded.Inc()
		c.log.Debug("Discarded stale listing for day %q", day)
		return
	}
	c.clearFillers()

	switch {
	case err != nil:
		c.metrics.FetchFailed.Inc()
		c.log.Error("Failed to load images for day %q: %v", day, err)
		c.addFiller(Message(msgError, "gallery-message", "Error loading images: "+err.Error()))
	case len(images) == 0 && len(c.cards) == 0:
		c.addFiller(Message(msgEmpty, "gallery-message", c.emptyText()))
	default:
		for _, rec := range images {
			if _, dup := c.byKey[c.cardKey(rec)]; dup {
				continue
			}
			c.addCard(rec, Append, false)
		}
		c.log.Debug("Rendered %d images for day %q", len(images), day)
	}
}

func (c *Controller) emptyText() string {
	if c.day == model.AllDays {
		return "No images yet."
	}
	return "No images found for this day."
}

// GoBack returns to the day list without refetching it.
func (c *Controller) GoBack() {
	if c.view == DaysView {
		return
	}
	c.CloseDetail()
	c.imagesToken++
	c.clearGallery()
	c.resetLiveIndicator()
	c.view = DaysView
	c.day = ""
	c.showDays()
}

// OpenDetail shows the detail modal for the card with the given element id.
// It reports whether such a card exists.
func (c *Controller) OpenDetail(cardID string) bool {
	h, ok := c.byCardID[cardID]
	if !ok {
		return false
	}
	c.detail = h
	c.render.ShowDetail(h.Record)
	return true
}

// CloseDetail hides the detail modal.
func (c *Controller) CloseDetail() {
	if c.detail == nil {
		return
	}
	c.detail = nil
	c.render.HideDetail()
}

// Proximity forwards the browser's proximity signal to the lazy loader.
func (c *Controller) Proximity(id string) bool { return c.loader.Proximity(id) }

// Loaded forwards the browser's load-complete signal to the lazy loader.
func (c *Controller) Loaded(id string) bool { return c.loader.Loaded(id) }

// PushLive applies a record announced by the backend. Cards are only added
// to a gallery that shows the record's day; otherwise the day list is
// updated and, in ImagesView, the live indicator is bumped.
func (c *Controller) PushLive(rec model.ImageRecord) {
	day := rec.DayKey()
	seenKey := liveKey(day, rec)
	if _, seen := c.liveSeen[seenKey]; seen {
		c.log.Debug("Ignoring repeated live upload %s", seenKey)
		return
	}
	shown := c.view == ImagesView && (c.day == model.AllDays || c.day == day)
	if _, dup := c.byKey[c.cardKey(rec)]; shown && dup {
		return
	}
	c.liveSeen[seenKey] = struct{}{}
	c.noteUpload(day, rec.UploadTime)

	if shown {
		c.clearMessages()
		c.addCard(rec, Prepend, true)
		c.metrics.LiveApplied.Inc()
		return
	}

	c.metrics.LiveSuppressed.Inc()
	if c.view == ImagesView {
		c.liveCount++
		indicator := c.doc.ByID(dom.LiveIndicatorID)
		c.doc.SetText(indicator, fmt.Sprintf("%d new on other days", c.liveCount))
		c.doc.RemoveClass(indicator, dom.HiddenClass)
	}
}

// noteUpload keeps the day list in step with a live upload.
func (c *Controller) noteUpload(day, uploaded string) {
	if day == "" || !c.daysLoaded {
		return
	}
	if row, ok := c.dayRows[day]; ok {
		row.summary.Count++
		if uploaded != "" {
			row.summary.LatestUploadTime = uploaded
		}
		c.render.updateDayRow(row)
		return
	}

	list := c.doc.ByID(dom.DaysListID)
	row := c.render.dayRow(model.DaySummary{Day: day, Count: 1, LatestUploadTime: uploaded})
	if len(c.dayRows) == 0 {
		rows := []*html.Node{row.node}
		if c.opts.ShowAllEntry {
			rows = append(rows, c.render.allImagesRow())
		}
		c.doc.SetChildren(list, rows...)
	} else {
		c.doc.Prepend(list, row.node)
	}
	c.dayRows[day] = row
}

// Teardown releases every observer and invalidates in-flight fetches.
func (c *Controller) Teardown() {
	c.imagesToken++
	c.daysToken++
	c.loader.DisposeAll()
}

func liveKey(day string, rec model.ImageRecord) string {
	if rec.URL != "" {
		return rec.URL
	}
	return day + "/" + rec.Filename
}

func (c *Controller) cardKey(rec model.ImageRecord) string {
	if c.day == model.AllDays {
		return rec.URL
	}
	return rec.Filename
}

func (c *Controller) addCard(rec model.ImageRecord, mode InsertMode, live bool) {
	h := c.render.RenderCard(rec, mode, live)
	c.cards = append(c.cards, h)
	c.byKey[c.cardKey(rec)] = h
	c.byCardID[h.ID()] = h
}

func (c *Controller) addFiller(n *html.Node) {
	if dom.ID(n) == "" {
		c.doc.SetAttr(n, "id", c.doc.NewID("msg"))
	}
	c.fillers = append(c.fillers, n)
	c.doc.Append(c.render.Gallery(), n)
}

func (c *Controller) clearFillers() {
	for _, n := range c.fillers {
		c.doc.Remove(n)
	}
	c.fillers = nil
}

// clearMessages removes empty and error messages but keeps skeletons.
func (c *Controller) clearMessages() {
	kept := c.fillers[:0]
	for _, n := range c.fillers {
		if dom.HasAttr(n, "data-message") {
			c.doc.Remove(n)
			continue
		}
		kept = append(kept, n)
	}
	c.fillers = kept
}

func (c *Controller) clearGallery() {
	for _, h := range c.cards {
		h.Dispose()
	}
	c.cards = nil
	c.fillers = nil
	clear(c.byKey)
	clear(c.byCardID)
	if len(dom.Children(c.render.Gallery())) > 0 {
		c.doc.SetChildren(c.render.Gallery())
	}
}

func (c *Controller) resetLiveIndicator() {
	if c.liveCount == 0 {
		return
	}
	c.liveCount = 0
	c.doc.AddClass(c.doc.ByID(dom.LiveIndicatorID), dom.HiddenClass)
}

func (c *Controller) showDays() {
	c.doc.AddClass(c.doc.ByID(dom.ImagesViewID), dom.HiddenClass)
	c.doc.RemoveClass(c.doc.ByID(dom.DaysViewID), dom.HiddenClass)
}

func (c *Controller) showImages() {
	c.doc.AddClass(c.doc.ByID(dom.DaysViewID), dom.HiddenClass)
	c.doc.RemoveClass(c.doc.ByID(dom.ImagesViewID), dom.HiddenClass)
}
