// Package dom keeps the server-side copy of a viewer page as an HTML node
// tree and records every mutation as a Patch for the browser to replay.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Op names a patch operation understood by the browser shell.
type Op string

const (
	OpReplace    Op = "replace" // set the inner HTML of Target
	OpAppend     Op = "append"
	OpPrepend    Op = "prepend"
	OpRemove     Op = "remove"
	OpSetAttr    Op = "set-attr"
	OpRemoveAttr Op = "remove-attr"
	OpObserve    Op = "observe"   // start proximity observation of Target, Value is the margin
	OpUnobserve  Op = "unobserve" // drop the proximity observer of Target
)

// Patch is one DOM mutation sent to the browser.
type Patch struct {
	Op     Op     `json:"op"`
	Target string `json:"target"`
	HTML   string `json:"html,omitempty"`
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Page region ids.
const (
	AppID            = "app"
	DaysViewID       = "days-view"
	DaysListID       = "days-list"
	ImagesViewID     = "images-view"
	BackID           = "back-to-days"
	CurrentDayID     = "current-day"
	LiveIndicatorID  = "live-indicator"
	GalleryID        = "gallery"
	DetailModalID    = "detail-modal"
	DetailTitleID    = "detail-title"
	DetailImageID    = "detail-image"
	DetailDownloadID = "detail-download"

	// HiddenClass hides a container without destroying it.
	HiddenClass = "d-none"
)

// Document is the retained page of one viewer session. It is not safe for
// concurrent use; the owning session serializes access.
type Document struct {
	root    *html.Node
	patches []Patch
	nextID  int
}

// NewDocument builds the empty page layout with every region in place.
func NewDocument() *Document {
	root := El("div", "id", AppID)

	daysView := El("section", "id", DaysViewID)
	AppendChildren(daysView, El("div", "id", DaysListID, "class", "list-group"))

	header := El("header", "class", "images-header")
	AppendChildren(header,
		AppendChildren(El("a", "href", "#", "id", BackID, "data-action", "back", "class", "btn btn-link"), Text("Back to days")),
		El("h2", "id", CurrentDayID),
		El("span", "id", LiveIndicatorID, "class", "badge bg-info "+HiddenClass),
	)
	imagesView := El("section", "id", ImagesViewID, "class", HiddenClass)
	AppendChildren(imagesView, header, El("div", "id", GalleryID, "class", "gallery-grid"))

	modal := El("div", "id", DetailModalID, "class", "modal "+HiddenClass)
	AppendChildren(modal,
		El("h5", "id", DetailTitleID),
		El("img", "id", DetailImageID, "class", "detail-image", "alt", ""),
		AppendChildren(El("a", "id", DetailDownloadID, "class", "btn btn-primary", "download", ""), Text("Download")),
		AppendChildren(El("button", "type", "button", "data-action", "close", "class", "btn btn-secondary"), Text("Close")),
	)

	AppendChildren(root, daysView, imagesView, modal)
	return &Document{root: root}
}

// Root returns the app container.
func (d *Document) Root() *html.Node { return d.root }

// NewID returns a document-unique element id with the given prefix.
func (d *Document) NewID(prefix string) string {
	d.nextID++
	return fmt.Sprintf("%s-%d", prefix, d.nextID)
}

// ByID finds an attached element by id.
func (d *Document) ByID(id string) *html.Node {
	return find(d.root, func(n *html.Node) bool { return ID(n) == id })
}

// Attached reports whether n is part of the document tree.
func (d *Document) Attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// SetChildren replaces every child of parent.
func (d *Document) SetChildren(parent *html.Node, children ...*html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
	AppendChildren(parent, children...)
	d.emitReplace(parent)
}

// SetText replaces the children of n with a single text node.
func (d *Document) SetText(n *html.Node, text string) {
	d.SetChildren(n, Text(text))
}

// Append adds child as the last child of parent.
func (d *Document) Append(parent, child *html.Node) {
	detach(child)
	parent.AppendChild(child)
	d.emitInsert(OpAppend, parent, child)
}

// Prepend adds child as the first child of parent.
func (d *Document) Prepend(parent, child *html.Node) {
	detach(child)
	if parent.FirstChild == nil {
		parent.AppendChild(child)
	} else {
		parent.InsertBefore(child, parent.FirstChild)
	}
	d.emitInsert(OpPrepend, parent, child)
}

// Remove detaches n from its parent.
func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	wasAttached := d.Attached(n)
	parent.RemoveChild(n)
	if !wasAttached {
		return
	}
	if id := ID(n); id != "" {
		d.emit(Patch{Op: OpRemove, Target: id})
		return
	}
	d.emitReplace(parent)
}

// SetAttr sets an attribute on n.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	setAttr(n, key, val)
	if !d.Attached(n) {
		return
	}
	if id := ID(n); id != "" && key != "id" {
		d.emit(Patch{Op: OpSetAttr, Target: id, Name: key, Value: val})
		return
	}
	d.emitReplace(n.Parent)
}

// RemoveAttr removes an attribute from n.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	if !removeAttr(n, key) || !d.Attached(n) {
		return
	}
	if id := ID(n); id != "" {
		d.emit(Patch{Op: OpRemoveAttr, Target: id, Name: key})
		return
	}
	d.emitReplace(n.Parent)
}

// AddClass adds a class to n.
func (d *Document) AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	classes := strings.Fields(Attr(n, "class"))
	d.SetAttr(n, "class", strings.Join(append(classes, class), " "))
}

// RemoveClass removes a class from n.
func (d *Document) RemoveClass(n *html.Node, class string) {
	if !HasClass(n, class) {
		return
	}
	var kept []string
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c != class {
			kept = append(kept, c)
		}
	}
	d.SetAttr(n, "class", strings.Join(kept, " "))
}

// Emit queues a patch that has no tree counterpart, such as observer
// registration.
func (d *Document) Emit(p Patch) {
	d.emit(p)
}

// Drain returns the queued patches and clears the queue.
func (d *Document) Drain() []Patch {
	out := d.patches
	d.patches = nil
	return out
}

// Pending reports the number of queued patches.
func (d *Document) Pending() int {
	return len(d.patches)
}

func (d *Document) emit(p Patch) {
	d.patches = append(d.patches, p)
}

func (d *Document) emitInsert(op Op, parent, child *html.Node) {
	if !d.Attached(parent) {
		return
	}
	if id := ID(parent); id != "" {
		d.emit(Patch{Op: op, Target: id, HTML: Render(child)})
		return
	}
	d.emitReplace(parent)
}

// emitReplace re-sends the inner HTML of n or of its closest ancestor that
// carries an id.
func (d *Document) emitReplace(n *html.Node) {
	if !d.Attached(n) {
		return
	}
	for p := n; p != nil; p = p.Parent {
		if id := ID(p); id != "" {
			d.emit(Patch{Op: OpReplace, Target: id, HTML: InnerHTML(p)})
			return
		}
	}
}

// El creates an element with attributes given as key/value pairs.
func El(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// Text creates a text node. Its content is escaped when rendered.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// AppendChildren appends children to parent without recording patches and
// returns parent, for building detached subtrees.
func AppendChildren(parent *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		if c == nil {
			continue
		}
		detach(c)
		parent.AppendChild(c)
	}
	return parent
}

// Render serializes n (outer HTML).
func Render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// TextContent concatenates the text nodes under n.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Attr returns the value of an attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries the attribute.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// ID returns the id attribute of an element node.
func ID(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return Attr(n, "id")
}

// HasClass reports whether n has the class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// FindAll returns every element under n (n included) matching pred, in
// document order.
func FindAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) bool {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}
