package gallery

import (
	"slices"
	"strconv"

	"galleryview/internal/dom"
	"galleryview/internal/lazyload"
	"galleryview/internal/model"

	"golang.org/x/net/html"
)

// InsertMode tells RenderCard where the new card goes.
type InsertMode int

const (
	// Append places the card last, preserving batch order.
	Append InsertMode = iota
	// Prepend places the card first; used for live uploads.
	Prepend
)

// Message kinds rendered in place of content.
const (
	msgLoading = "loading"
	msgEmpty   = "empty"
	msgError   = "error"
)

// CardHandle is a rendered card and its lazy-load registration.
type CardHandle struct {
	Record model.ImageRecord
	Node   *html.Node
	Thumb  *html.Node

	reg *lazyload.Registration
	doc *dom.Document
}

// ID returns the element id of the card.
func (h *CardHandle) ID() string { return dom.ID(h.Node) }

// Registration exposes the lazy-load registration of the thumbnail.
func (h *CardHandle) Registration() *lazyload.Registration { return h.reg }

// Dispose releases the thumbnail's observer. The card stays in the tree.
func (h *CardHandle) Dispose() {
	h.reg.Dispose()
}

// Remove releases the observer and takes the card out of the document.
func (h *CardHandle) Remove() {
	h.Dispose()
	h.doc.Remove(h.Node)
}

// Renderer turns records into cards inside the gallery container.
type Renderer struct {
	doc     *dom.Document
	loader  *lazyload.Loader
	gallery *html.Node
}

// NewRenderer binds a renderer to the gallery region of doc.
func NewRenderer(doc *dom.Document, loader *lazyload.Loader) *Renderer {
	return &Renderer{
		doc:     doc,
		loader:  loader,
		gallery: doc.ByID(dom.GalleryID),
	}
}

// Gallery returns the card container.
func (r *Renderer) Gallery() *html.Node { return r.gallery }

// RenderCard builds the card for record, inserts it and registers its
// thumbnail for lazy loading. justUploaded marks cards that came from a live
// push.
func (r *Renderer) RenderCard(record model.ImageRecord, mode InsertMode, justUploaded bool) *CardHandle {
	cardID := r.doc.NewID("card")
	class := "gallery-card shadow-sm"
	if justUploaded {
		class += " just-uploaded"
	}
	card := dom.El("article", "id", cardID, "class", class)

	thumb := dom.El("img",
		"id", r.doc.NewID("img"),
		"class", "gallery-thumb",
		"alt", record.Filename,
		"loading", "lazy",
		"data-src", record.URL,
		"style", "visibility:hidden",
		"data-action", "open",
		"data-card", cardID,
	)

	meta := dom.El("div", "class", "gallery-meta")
	dom.AppendChildren(meta,
		dom.AppendChildren(dom.El("div", "class", "meta-name", "title", record.Filename), dom.Text(record.Filename)),
		metaTimes(record),
		metaExtra(record),
		dom.AppendChildren(dom.El("div", "class", "meta-actions"),
			dom.AppendChildren(dom.El("a",
				"href", record.URL,
				"download", record.Filename,
				"class", "btn btn-sm btn-outline-primary",
			), dom.Text("Download")),
		),
	)
	dom.AppendChildren(card, thumb, meta)

	switch mode {
	case Prepend:
		r.doc.Prepend(r.gallery, card)
	default:
		r.doc.Append(r.gallery, card)
	}

	return &CardHandle{
		Record: record,
		Node:   card,
		Thumb:  thumb,
		reg:    r.loader.Register(thumb, record.URL),
		doc:    r.doc,
	}
}

// metaTimes renders the Captured/Uploaded line, or nil when neither is known.
func metaTimes(record model.ImageRecord) *html.Node {
	var spans []*html.Node
	if captured := record.CapturedAt(); captured != "" {
		spans = append(spans, dom.AppendChildren(dom.El("span", "class", "meta-captured"), dom.Text("Captured: "+captured)))
	}
	if record.UploadTime != "" {
		spans = append(spans, dom.AppendChildren(dom.El("span", "class", "meta-uploaded"), dom.Text("Uploaded: "+record.UploadTime)))
	}
	if len(spans) == 0 {
		return nil
	}
	return dom.AppendChildren(dom.El("div", "class", "meta-times"), spans...)
}

// metaExtra renders remaining metadata entries (sensor readings and the
// like) sorted by key, or nil when there are none.
func metaExtra(record model.ImageRecord) *html.Node {
	var keys []string
	for k := range record.Metadata {
		if k == "captured_at" || record.MetaString(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	slices.Sort(keys)

	extra := dom.El("div", "class", "meta-extra")
	for _, k := range keys {
		dom.AppendChildren(extra, dom.AppendChildren(
			dom.El("span", "class", "meta-entry", "data-key", k),
			dom.Text(k+": "+record.MetaString(k)),
		))
	}
	return extra
}

// Skeletons builds n loading placeholders.
func (r *Renderer) Skeletons(n int) []*html.Node {
	out := make([]*html.Node, 0, n)
	for i := 0; i < n; i++ {
		meta := dom.AppendChildren(dom.El("div", "class", "gallery-meta"),
			dom.El("div", "class", "skeleton-line w-80"),
			dom.El("div", "class", "skeleton-line w-60"),
		)
		out = append(out, dom.AppendChildren(
			dom.El("article", "id", r.doc.NewID("skeleton"), "class", "gallery-card skeleton", "aria-hidden", "true"),
			dom.El("div", "class", "gallery-thumb"),
			meta,
		))
	}
	return out
}

// Message builds an inline message element. The text is escaped on render.
func Message(kind, class, text string) *html.Node {
	if kind == msgError {
		class += " text-danger"
	} else {
		class += " text-muted"
	}
	return dom.AppendChildren(dom.El("div", "class", class, "data-message", kind), dom.Text(text))
}

// dayRow is a rendered entry of the day list.
type dayRow struct {
	summary model.DaySummary
	node    *html.Node
	latest  *html.Node
	count   *html.Node
}

func (r *Renderer) dayRow(summary model.DaySummary) *dayRow {
	latest := dom.AppendChildren(
		dom.El("small", "id", r.doc.NewID("latest"), "class", "text-muted"),
		dom.Text("Latest: "+summary.LatestUploadTime),
	)
	count := dom.AppendChildren(
		dom.El("span", "id", r.doc.NewID("count"), "class", "badge bg-primary rounded-pill"),
		dom.Text(strconv.Itoa(summary.Count)),
	)
	node := dom.El("a",
		"href", "#",
		"id", r.doc.NewID("day"),
		"class", "list-group-item list-group-item-action d-flex justify-content-between align-items-center",
		"data-action", "select-day",
		"data-day", summary.Day,
	)
	dom.AppendChildren(node,
		dom.AppendChildren(dom.El("div"),
			dom.AppendChildren(dom.El("div", "class", "fw-semibold"), dom.Text(summary.Day)),
			latest,
		),
		count,
	)
	return &dayRow{summary: summary, node: node, latest: latest, count: count}
}

func (r *Renderer) updateDayRow(row *dayRow) {
	r.doc.SetText(row.latest, "Latest: "+row.summary.LatestUploadTime)
	r.doc.SetText(row.count, strconv.Itoa(row.summary.Count))
}

func (r *Renderer) allImagesRow() *html.Node {
	return dom.AppendChildren(dom.El("a",
		"href", "#",
		"id", r.doc.NewID("day"),
		"class", "list-group-item list-group-item-action fst-italic",
		"data-action", "select-day",
		"data-day", model.AllDays,
	), dom.Text("All images"))
}

// ShowDetail fills the detail modal with record and shows it.
func (r *Renderer) ShowDetail(record model.ImageRecord) {
	r.doc.SetText(r.doc.ByID(dom.DetailTitleID), record.Filename)
	img := r.doc.ByID(dom.DetailImageID)
	r.doc.SetAttr(img, "src", record.URL)
	r.doc.SetAttr(img, "alt", record.Filename)
	link := r.doc.ByID(dom.DetailDownloadID)
	r.doc.SetAttr(link, "href", record.URL)
	r.doc.SetAttr(link, "download", record.Filename)
	r.doc.RemoveClass(r.doc.ByID(dom.DetailModalID), dom.HiddenClass)
}

// HideDetail hides the detail modal and stops its image from loading.
func (r *Renderer) HideDetail() {
	modal := r.doc.ByID(dom.DetailModalID)
	if dom.HasClass(modal, dom.HiddenClass) {
		return
	}
	r.doc.AddClass(modal, dom.HiddenClass)
	r.doc.RemoveAttr(r.doc.ByID(dom.DetailImageID), "src")
}
