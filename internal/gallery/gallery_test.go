package gallery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"galleryview/internal/dom"
	"galleryview/internal/lazyload"
	"galleryview/internal/logger"
	"galleryview/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

type countingCounter struct{ n int }

func (c *countingCounter) Inc() { c.n++ }

type fakeClient struct {
	days      []model.DaySummary
	daysErr   error
	images    map[string][]model.ImageRecord
	imagesErr error
	all       []model.ImageRecord
	calls     []string
}

func (f *fakeClient) ListDays(ctx context.Context) ([]model.DaySummary, error) {
	f.calls = append(f.calls, "days")
	return f.days, f.daysErr
}

func (f *fakeClient) ListImages(ctx context.Context, day string) ([]model.ImageRecord, error) {
	f.calls = append(f.calls, "images:"+day)
	return f.images[day], f.imagesErr
}

func (f *fakeClient) ListAll(ctx context.Context) ([]model.ImageRecord, error) {
	f.calls = append(f.calls, "all")
	return f.all, f.imagesErr
}

type pending struct {
	work func(ctx context.Context)
	then func()
}

// manualDispatcher holds work until the test completes it, so responses can
// be delivered in any order.
type manualDispatcher struct {
	queue []pending
}

func (d *manualDispatcher) Go(work func(ctx context.Context), then func()) {
	d.queue = append(d.queue, pending{work: work, then: then})
}

func (d *manualDispatcher) complete(i int) {
	p := d.queue[i]
	p.work(context.Background())
	p.then()
}

func (d *manualDispatcher) flush() {
	for len(d.queue) > 0 {
		p := d.queue[0]
		d.queue = d.queue[1:]
		p.work(context.Background())
		p.then()
	}
}

type fixture struct {
	doc     *dom.Document
	client  *fakeClient
	disp    *manualDispatcher
	ctrl    *Controller
	stale   *countingCounter
	applied *countingCounter
}

func newFixture(client *fakeClient) *fixture {
	doc := dom.NewDocument()
	f := &fixture{
		doc:     doc,
		client:  client,
		disp:    &manualDispatcher{},
		stale:   &countingCounter{},
		applied: &countingCounter{},
	}
	loader := lazyload.New(doc, 150, lazyload.Metrics{})
	f.ctrl = NewController(doc, loader, client, f.disp,
		Options{SkeletonCount: 3, ShowAllEntry: true},
		Metrics{StaleDiscarded: f.stale, LiveApplied: f.applied},
		logger.Discard())
	return f
}

func (f *fixture) cardNames() []string {
	var names []string
	for _, h := range f.ctrl.Cards() {
		names = append(names, h.Record.Filename)
	}
	return names
}

func (f *fixture) daysVisible() bool {
	return !dom.HasClass(f.doc.ByID(dom.DaysViewID), dom.HiddenClass)
}

func (f *fixture) imagesVisible() bool {
	return !dom.HasClass(f.doc.ByID(dom.ImagesViewID), dom.HiddenClass)
}

func (f *fixture) dayRow(day string) *html.Node {
	rows := dom.FindAll(f.doc.ByID(dom.DaysListID), func(n *html.Node) bool {
		return dom.Attr(n, "data-action") == "select-day" && dom.HasAttr(n, "data-day") && dom.Attr(n, "data-day") == day
	})
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func skeletons(doc *dom.Document) []*html.Node {
	return dom.FindAll(doc.ByID(dom.GalleryID), func(n *html.Node) bool { return dom.HasClass(n, "skeleton") })
}

func rec(day, name string) model.ImageRecord {
	return model.ImageRecord{
		Filename:   name,
		URL:        "/static/uploads/" + day + "/" + name,
		UploadTime: day[:4] + "-" + day[4:6] + "-" + day[6:] + " 10:00:00",
		Day:        day,
	}
}

func TestRenderCard_Example(t *testing.T) {
	doc := dom.NewDocument()
	r := NewRenderer(doc, lazyload.New(doc, 150, lazyload.Metrics{}))

	h := r.RenderCard(model.ImageRecord{
		Filename:   "a.jpg",
		URL:        "/img/a.jpg",
		UploadTime: "2024-01-05 10:00:00",
		Metadata:   map[string]any{"captured_at": "2024:01:05 09:59:58"},
	}, Append, false)

	assert.Equal(t, "a.jpg", dom.Attr(h.Thumb, "alt"))
	assert.Equal(t, "/img/a.jpg", dom.Attr(h.Thumb, "data-src"))
	assert.False(t, dom.HasAttr(h.Thumb, "src"))
	assert.Equal(t, "visibility:hidden", dom.Attr(h.Thumb, "style"))

	text := dom.TextContent(h.Node)
	assert.Contains(t, text, "Captured: 2024:01:05 09:59:58")
	assert.Contains(t, text, "Uploaded: 2024-01-05 10:00:00")

	links := dom.FindAll(h.Node, func(n *html.Node) bool { return n.Data == "a" })
	require.Len(t, links, 1)
	assert.Equal(t, "/img/a.jpg", dom.Attr(links[0], "href"))
	assert.Equal(t, "a.jpg", dom.Attr(links[0], "download"))

	patches := doc.Drain()
	require.Len(t, patches, 2)
	assert.Equal(t, dom.OpAppend, patches[0].Op, "card is inserted before it is observed")
	assert.Equal(t, dom.Patch{Op: dom.OpObserve, Target: dom.ID(h.Thumb), Value: "150"}, patches[1])
}

func TestRenderCard_OmitsMissingTimes(t *testing.T) {
	doc := dom.NewDocument()
	r := NewRenderer(doc, lazyload.New(doc, 150, lazyload.Metrics{}))

	h := r.RenderCard(model.ImageRecord{Filename: "b.jpg", URL: "/img/b.jpg"}, Append, false)

	text := dom.TextContent(h.Node)
	assert.NotContains(t, text, "Captured")
	assert.NotContains(t, text, "Uploaded")
	assert.Empty(t, dom.FindAll(h.Node, func(n *html.Node) bool { return dom.HasClass(n, "meta-times") }))
}

func TestRenderCard_EscapesRecordText(t *testing.T) {
	doc := dom.NewDocument()
	r := NewRenderer(doc, lazyload.New(doc, 150, lazyload.Metrics{}))
	evil := `<img src=x onerror="alert(1)">.jpg`

	h := r.RenderCard(model.ImageRecord{
		Filename:   evil,
		URL:        `/img/"><script>x</script>`,
		UploadTime: "<b>now</b>",
		Metadata:   map[string]any{"captured_at": "<i>then</i>", "sensor": "<u>21C</u>"},
	}, Append, false)

	out := dom.Render(h.Node)
	for _, raw := range []string{"<img src=x", "<script>", "<b>", "<i>", "<u>"} {
		assert.NotContains(t, out, raw)
	}
	assert.Contains(t, dom.TextContent(h.Node), evil)
	assert.Contains(t, dom.TextContent(h.Node), "sensor: <u>21C</u>")
}

func TestRenderCard_PrependAndDispose(t *testing.T) {
	doc := dom.NewDocument()
	loader := lazyload.New(doc, 150, lazyload.Metrics{})
	r := NewRenderer(doc, loader)

	first := r.RenderCard(model.ImageRecord{Filename: "a.jpg", URL: "/a.jpg"}, Append, false)
	second := r.RenderCard(model.ImageRecord{Filename: "b.jpg", URL: "/b.jpg"}, Prepend, true)

	children := dom.Children(r.Gallery())
	require.Len(t, children, 2)
	assert.Equal(t, second.ID(), dom.ID(children[0]))
	assert.True(t, dom.HasClass(second.Node, "just-uploaded"))
	assert.Equal(t, 2, loader.Active())

	first.Remove()
	assert.Equal(t, 1, loader.Active())
	assert.Len(t, dom.Children(r.Gallery()), 1)
}

func TestStart_RendersDays(t *testing.T) {
	f := newFixture(&fakeClient{days: []model.DaySummary{
		{Day: "20240105", Count: 2, LatestUploadTime: "2024-01-05 10:00:00"},
		{Day: "20240104", Count: 1, LatestUploadTime: "2024-01-04 08:00:00"},
	}})

	f.ctrl.Start()
	assert.Equal(t, "Loading…", dom.TextContent(f.doc.ByID(dom.DaysListID)))
	f.disp.flush()

	row := f.dayRow("20240105")
	require.NotNil(t, row)
	text := dom.TextContent(row)
	assert.Contains(t, text, "20240105")
	assert.Contains(t, text, "Latest: 2024-01-05 10:00:00")
	assert.Contains(t, text, "2")

	all := f.dayRow(model.AllDays)
	require.NotNil(t, all)
	assert.Equal(t, "All images", dom.TextContent(all))

	rows := dom.Children(f.doc.ByID(dom.DaysListID))
	require.Len(t, rows, 3)
	assert.Equal(t, "20240104", dom.Attr(rows[1], "data-day"), "server order is kept")

	assert.True(t, f.daysVisible())
	assert.False(t, f.imagesVisible())
}

func TestStart_EmptyAndError(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f := newFixture(&fakeClient{})
		f.ctrl.Start()
		f.disp.flush()
		assert.Equal(t, "No images yet.", dom.TextContent(f.doc.ByID(dom.DaysListID)))
		assert.Nil(t, f.dayRow(model.AllDays), "no All images entry without days")
	})

	t.Run("error is escaped", func(t *testing.T) {
		f := newFixture(&fakeClient{daysErr: errors.New(`<img src=x onerror=alert(1)>`)})
		f.ctrl.Start()
		f.disp.flush()

		list := f.doc.ByID(dom.DaysListID)
		assert.Equal(t, "Error loading days: <img src=x onerror=alert(1)>", dom.TextContent(list))
		assert.NotContains(t, dom.InnerHTML(list), "<img")
	})
}

func TestSelectDay_RendersInServerOrder(t *testing.T) {
	f := newFixture(&fakeClient{images: map[string][]model.ImageRecord{
		"20240105": {rec("20240105", "c.jpg"), rec("20240105", "a.jpg"), rec("20240105", "b.jpg")},
	}})

	f.ctrl.SelectDay("20240105")
	assert.Len(t, skeletons(f.doc), 3)
	assert.Equal(t, "Day 20240105", dom.TextContent(f.doc.ByID(dom.CurrentDayID)))
	assert.False(t, f.daysVisible())
	assert.True(t, f.imagesVisible())

	f.disp.flush()
	assert.Empty(t, skeletons(f.doc))
	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, f.cardNames())
	assert.Equal(t, []string{"images:20240105"}, f.client.calls)

	view, day := f.ctrl.State()
	assert.Equal(t, ImagesView, view)
	assert.Equal(t, "20240105", day)
}

func TestSelectDay_EmptyAndError(t *testing.T) {
	f := newFixture(&fakeClient{})
	f.ctrl.SelectDay("20240105")
	f.disp.flush()
	assert.Equal(t, "No images found for this day.", dom.TextContent(f.doc.ByID(dom.GalleryID)))

	f = newFixture(&fakeClient{imagesErr: errors.New("list images: backend returned status 500")})
	f.ctrl.SelectDay("20240105")
	f.disp.flush()
	assert.Equal(t, "Error loading images: list images: backend returned status 500", dom.TextContent(f.doc.ByID(dom.GalleryID)))
	assert.Empty(t, skeletons(f.doc))
}

func TestSelectDay_AllDays(t *testing.T) {
	f := newFixture(&fakeClient{all: []model.ImageRecord{rec("20240105", "a.jpg"), rec("20240104", "a.jpg")}})

	f.ctrl.SelectDay(model.AllDays)
	f.disp.flush()

	assert.Equal(t, "All images", dom.TextContent(f.doc.ByID(dom.CurrentDayID)))
	assert.Equal(t, []string{"all"}, f.client.calls)
	assert.Equal(t, []string{"a.jpg", "a.jpg"}, f.cardNames(), "same filename on different days is not a duplicate")
}

func TestSelectDay_StaleResponseDiscarded(t *testing.T) {
	client := &fakeClient{images: map[string][]model.ImageRecord{
		"20240101": {rec("20240101", "old.jpg")},
		"20240102": {rec("20240102", "new.jpg")},
	}}

	t.Run("late first response", func(t *testing.T) {
		f := newFixture(client)
		f.ctrl.SelectDay("20240101")
		f.ctrl.SelectDay("20240102")

		f.disp.complete(1)
		f.disp.complete(0)

		assert.Equal(t, []string{"new.jpg"}, f.cardNames())
		assert.Equal(t, 1, f.stale.n)
	})

	t.Run("in order", func(t *testing.T) {
		f := newFixture(client)
		f.ctrl.SelectDay("20240101")
		f.ctrl.SelectDay("20240102")

		f.disp.complete(0)
		assert.Len(t, skeletons(f.doc), 3, "stale response leaves the loading state alone")
		f.disp.complete(1)

		assert.Equal(t, []string{"new.jpg"}, f.cardNames())
	})
}

func TestGoBack(t *testing.T) {
	client := &fakeClient{
		days:   []model.DaySummary{{Day: "20240105", Count: 1}},
		images: map[string][]model.ImageRecord{"20240105": {rec("20240105", "a.jpg")}},
	}
	f := newFixture(client)
	f.ctrl.Start()
	f.disp.flush()
	listBefore := dom.InnerHTML(f.doc.ByID(dom.DaysListID))

	f.ctrl.SelectDay("20240105")
	f.ctrl.GoBack()
	f.disp.flush()

	assert.True(t, f.daysVisible())
	assert.False(t, f.imagesVisible())
	assert.Empty(t, f.cardNames(), "in-flight listing is discarded after going back")
	assert.Equal(t, 1, f.stale.n)
	assert.Equal(t, []string{"days", "images:20240105"}, client.calls, "going back does not refetch")
	assert.Equal(t, listBefore, dom.InnerHTML(f.doc.ByID(dom.DaysListID)))

	view, _ := f.ctrl.State()
	assert.Equal(t, DaysView, view)

	f.doc.Drain()
	f.ctrl.GoBack()
	assert.Zero(t, f.doc.Pending(), "going back from the day list is a no-op")
}

func TestGoBack_ReleasesObservers(t *testing.T) {
	f := newFixture(&fakeClient{images: map[string][]model.ImageRecord{
		"20240105": {rec("20240105", "a.jpg"), rec("20240105", "b.jpg")},
	}})
	f.ctrl.SelectDay("20240105")
	f.disp.flush()
	require.Equal(t, 2, f.ctrl.loader.Active())
	f.doc.Drain()

	f.ctrl.GoBack()

	assert.Zero(t, f.ctrl.loader.Active())
	var unobserved int
	for _, p := range f.doc.Drain() {
		if p.Op == dom.OpUnobserve {
			unobserved++
		}
	}
	assert.Equal(t, 2, unobserved)
}

func TestPushLive_MatchingDay(t *testing.T) {
	f := newFixture(&fakeClient{
		days:   []model.DaySummary{{Day: "20240105", Count: 1, LatestUploadTime: "2024-01-05 10:00:00"}},
		images: map[string][]model.ImageRecord{"20240105": {rec("20240105", "a.jpg")}},
	})
	f.ctrl.Start()
	f.disp.flush()
	f.ctrl.SelectDay("20240105")
	f.disp.flush()

	live := rec("20240105", "b.jpg")
	live.UploadTime = "2024-01-05 11:00:00"
	f.ctrl.PushLive(live)
	f.ctrl.PushLive(live)

	assert.Equal(t, []string{"b.jpg", "a.jpg"}, f.cardNames())
	assert.True(t, dom.HasClass(f.ctrl.Cards()[0].Node, "just-uploaded"))
	assert.Equal(t, 1, f.applied.n)

	row := dom.TextContent(f.dayRow("20240105"))
	assert.Contains(t, row, "Latest: 2024-01-05 11:00:00")
	assert.True(t, strings.HasSuffix(row, "2"), "count bumped once, got %q", row)
}

func TestPushLive_OtherDay(t *testing.T) {
	f := newFixture(&fakeClient{
		days:   []model.DaySummary{{Day: "20240105", Count: 1}, {Day: "20240104", Count: 4}},
		images: map[string][]model.ImageRecord{"20240105": {rec("20240105", "a.jpg")}},
	})
	f.ctrl.Start()
	f.disp.flush()
	f.ctrl.SelectDay("20240105")
	f.disp.flush()

	f.ctrl.PushLive(rec("20240104", "x.jpg"))
	f.ctrl.PushLive(rec("20240106", "y.jpg"))

	assert.Equal(t, []string{"a.jpg"}, f.cardNames(), "gallery of another day is left alone")
	assert.True(t, strings.HasSuffix(dom.TextContent(f.dayRow("20240104")), "5"))

	rows := dom.Children(f.doc.ByID(dom.DaysListID))
	assert.Equal(t, "20240106", dom.Attr(rows[0], "data-day"), "new day goes on top")

	indicator := f.doc.ByID(dom.LiveIndicatorID)
	assert.False(t, dom.HasClass(indicator, dom.HiddenClass))
	assert.Equal(t, "2 new on other days", dom.TextContent(indicator))

	f.ctrl.GoBack()
	assert.True(t, dom.HasClass(indicator, dom.HiddenClass))
}

func TestPushLive_RepeatedPushCountsOnce(t *testing.T) {
	f := newFixture(&fakeClient{
		days:   []model.DaySummary{{Day: "20240105", Count: 1}, {Day: "20240104", Count: 4}},
		images: map[string][]model.ImageRecord{"20240105": {rec("20240105", "a.jpg")}},
	})
	f.ctrl.Start()
	f.disp.flush()

	f.ctrl.PushLive(rec("20240104", "x.jpg"))
	f.ctrl.PushLive(rec("20240104", "x.jpg"))
	assert.True(t, strings.HasSuffix(dom.TextContent(f.dayRow("20240104")), "5"), "days view")

	f.ctrl.SelectDay("20240105")
	f.disp.flush()
	f.ctrl.PushLive(rec("20240104", "x.jpg"))
	f.ctrl.PushLive(rec("20240104", "z.jpg"))
	f.ctrl.PushLive(rec("20240104", "z.jpg"))

	assert.True(t, strings.HasSuffix(dom.TextContent(f.dayRow("20240104")), "6"), "another day's view")
	assert.Equal(t, "1 new on other days", dom.TextContent(f.doc.ByID(dom.LiveIndicatorID)))
	assert.Equal(t, []string{"a.jpg"}, f.cardNames())
}

func TestPushLive_DaysViewAndEmptyList(t *testing.T) {
	f := newFixture(&fakeClient{})
	f.ctrl.Start()
	f.disp.flush()

	f.ctrl.PushLive(rec("20240105", "a.jpg"))

	assert.Empty(t, f.cardNames())
	require.NotNil(t, f.dayRow("20240105"))
	assert.NotNil(t, f.dayRow(model.AllDays))
	assert.NotContains(t, dom.TextContent(f.doc.ByID(dom.DaysListID)), "No images yet.")
	assert.True(t, dom.HasClass(f.doc.ByID(dom.LiveIndicatorID), dom.HiddenClass))
}

func TestPushLive_DuringFetch(t *testing.T) {
	f := newFixture(&fakeClient{images: map[string][]model.ImageRecord{
		"20240105": {rec("20240105", "new.jpg"), rec("20240105", "old.jpg")},
	}})
	f.ctrl.SelectDay("20240105")

	f.ctrl.PushLive(rec("20240105", "new.jpg"))
	f.disp.flush()

	assert.Equal(t, []string{"new.jpg", "old.jpg"}, f.cardNames())
	assert.Empty(t, skeletons(f.doc))
}

func TestPushLive_ReplacesEmptyMessage(t *testing.T) {
	f := newFixture(&fakeClient{})
	f.ctrl.SelectDay(model.AllDays)
	f.disp.flush()
	require.Equal(t, "No images yet.", dom.TextContent(f.doc.ByID(dom.GalleryID)))

	f.ctrl.PushLive(rec("20240105", "a.jpg"))

	assert.Equal(t, []string{"a.jpg"}, f.cardNames())
	assert.NotContains(t, dom.TextContent(f.doc.ByID(dom.GalleryID)), "No images yet.")
}

func TestDetail(t *testing.T) {
	f := newFixture(&fakeClient{images: map[string][]model.ImageRecord{
		"20240105": {rec("20240105", "a.jpg")},
	}})
	f.ctrl.SelectDay("20240105")
	f.disp.flush()
	card := f.ctrl.Cards()[0]
	modal := f.doc.ByID(dom.DetailModalID)

	assert.False(t, f.ctrl.OpenDetail("card-missing"))
	require.True(t, f.ctrl.OpenDetail(card.ID()))
	assert.False(t, dom.HasClass(modal, dom.HiddenClass))
	assert.Equal(t, "a.jpg", dom.TextContent(f.doc.ByID(dom.DetailTitleID)))
	assert.Equal(t, card.Record.URL, dom.Attr(f.doc.ByID(dom.DetailImageID), "src"))
	assert.Equal(t, card.Record.URL, dom.Attr(f.doc.ByID(dom.DetailDownloadID), "href"))

	f.ctrl.CloseDetail()
	assert.True(t, dom.HasClass(modal, dom.HiddenClass))
	assert.False(t, dom.HasAttr(f.doc.ByID(dom.DetailImageID), "src"))
}

func TestLazySignals(t *testing.T) {
	f := newFixture(&fakeClient{images: map[string][]model.ImageRecord{
		"20240105": {rec("20240105", "a.jpg")},
	}})
	f.ctrl.SelectDay("20240105")
	f.disp.flush()
	thumb := f.ctrl.Cards()[0].Thumb

	assert.True(t, f.ctrl.Proximity(dom.ID(thumb)))
	assert.Equal(t, "/static/uploads/20240105/a.jpg", dom.Attr(thumb, "src"))
	assert.True(t, f.ctrl.Loaded(dom.ID(thumb)))
	assert.Equal(t, "visibility:visible", dom.Attr(thumb, "style"))
}
