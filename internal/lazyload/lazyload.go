// Package lazyload defers setting an image's real source until the browser
// reports that its placeholder came within a margin of the viewport.
package lazyload

import (
	"strconv"

	"galleryview/internal/dom"

	"golang.org/x/net/html"
)

const (
	hiddenStyle  = "visibility:hidden"
	visibleStyle = "visibility:visible"
)

// Counter is satisfied by prometheus counters.
type Counter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

// Metrics are optional counters updated by a Loader.
type Metrics struct {
	Registered Counter
	Fired      Counter
	Cancelled  Counter
}

type state int

const (
	observing state = iota
	fired
	disposed
)

// Registration ties one placeholder to its deferred source.
type Registration struct {
	loader   *Loader
	id       string
	node     *html.Node
	src      string
	state    state
	assigned bool
	revealed bool
}

// ID returns the element id of the placeholder.
func (r *Registration) ID() string { return r.id }

// Fired reports whether the real source has been assigned.
func (r *Registration) Fired() bool { return r.assigned }

// Revealed reports whether the placeholder has been made visible.
func (r *Registration) Revealed() bool { return r.revealed }

// Dispose ends the registration. When the placeholder was still observed the
// browser is told to drop its observer. Calling Dispose again is a no-op.
func (r *Registration) Dispose() {
	l := r.loader
	switch r.state {
	case disposed:
		return
	case observing:
		l.doc.Emit(dom.Patch{Op: dom.OpUnobserve, Target: r.id})
		l.metrics.Cancelled.Inc()
	}
	r.state = disposed
	if l.regs[r.id] == r {
		delete(l.regs, r.id)
	}
}

// Loader tracks the placeholders of one document.
type Loader struct {
	doc     *dom.Document
	margin  int
	regs    map[string]*Registration
	metrics Metrics
}

// New creates a Loader for doc. margin is the proximity distance, in pixels,
// ahead of the viewport edge.
func New(doc *dom.Document, margin int, metrics Metrics) *Loader {
	if metrics.Registered == nil {
		metrics.Registered = nopCounter{}
	}
	if metrics.Fired == nil {
		metrics.Fired = nopCounter{}
	}
	if metrics.Cancelled == nil {
		metrics.Cancelled = nopCounter{}
	}
	return &Loader{
		doc:     doc,
		margin:  margin,
		regs:    make(map[string]*Registration),
		metrics: metrics,
	}
}

// Margin returns the proximity margin in pixels.
func (l *Loader) Margin() int { return l.margin }

// Register defers loading src into the placeholder img. The placeholder
// should already be in the document; a detached placeholder is registered
// but never observed. Registering a placeholder that is still observed
// returns the existing registration.
func (l *Loader) Register(img *html.Node, src string) *Registration {
	id := dom.ID(img)
	if id == "" {
		id = l.doc.NewID("img")
		l.doc.SetAttr(img, "id", id)
	}
	if reg, ok := l.regs[id]; ok && reg.state == observing {
		return reg
	}

	l.setAttrIfChanged(img, "data-src", src)
	l.setAttrIfChanged(img, "style", hiddenStyle)
	l.doc.RemoveAttr(img, "src")

	reg := &Registration{loader: l, id: id, node: img, src: src}
	l.regs[id] = reg
	l.metrics.Registered.Inc()

	if l.doc.Attached(img) {
		l.doc.Emit(dom.Patch{Op: dom.OpObserve, Target: id, Value: strconv.Itoa(l.margin)})
	}
	return reg
}

// Proximity handles the browser's proximity signal for the placeholder id.
// The first signal assigns the real source, leaving the placeholder hidden
// until Loaded. Later signals, unknown ids and detached placeholders are
// no-ops. It reports whether the source was assigned.
func (l *Loader) Proximity(id string) bool {
	reg, ok := l.regs[id]
	if !ok || reg.state != observing {
		return false
	}
	if !l.doc.Attached(reg.node) {
		reg.Dispose()
		return false
	}

	reg.state = fired
	reg.assigned = true
	l.metrics.Fired.Inc()
	l.doc.SetAttr(reg.node, "src", reg.src)
	return true
}

// Loaded handles the browser's load-complete signal and makes the
// placeholder visible. It reports whether anything changed.
func (l *Loader) Loaded(id string) bool {
	reg, ok := l.regs[id]
	if !ok || reg.state != fired || reg.revealed {
		return false
	}
	reg.revealed = true
	delete(l.regs, id)
	if l.doc.Attached(reg.node) {
		l.doc.SetAttr(reg.node, "style", visibleStyle)
	}
	return true
}

// Active returns the number of placeholders still observed.
func (l *Loader) Active() int {
	n := 0
	for _, reg := range l.regs {
		if reg.state == observing {
			n++
		}
	}
	return n
}

// DisposeAll ends every outstanding registration.
func (l *Loader) DisposeAll() {
	for _, reg := range l.regs {
		reg.Dispose()
	}
}

func (l *Loader) setAttrIfChanged(n *html.Node, key, val string) {
	if dom.HasAttr(n, key) && dom.Attr(n, key) == val {
		return
	}
	l.doc.SetAttr(n, key, val)
}
