// Package memdom is an in-memory dom.Host over golang.org/x/net/html.
//
// Mutations made through Document methods are queued per observer and delivered
// by Flush, one batch per observer, the way a browser delivers MutationObserver
// records at the end of a task.
package memdom

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"reelbar/internal/dom"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNotMedia is returned by Media for nodes that are not <video> or <audio>.
var ErrNotMedia = errors.New("memdom: node is not a media element")

type observer struct {
	id      int
	node    *html.Node
	opts    dom.ObserveOptions
	fn      func([]dom.Mutation)
	pending []dom.Mutation
}

// Document is a mutable HTML tree with stable node ids.
type Document struct {
	mu   sync.Mutex
	url  string
	root *html.Node

	nextID dom.NodeID
	ids    map[*html.Node]dom.NodeID
	nodes  map[dom.NodeID]*html.Node

	nextObs   int
	observers map[int]*observer

	videos map[*html.Node]*Video
	tracks map[*html.Node]*Track

	trackWidth float64
}

// Parse builds a document from markup.
func Parse(url, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{
		url:        url,
		root:       root,
		ids:        make(map[*html.Node]dom.NodeID),
		nodes:      make(map[dom.NodeID]*html.Node),
		observers:  make(map[int]*observer),
		videos:     make(map[*html.Node]*Video),
		tracks:     make(map[*html.Node]*Track),
		trackWidth: 100,
	}, nil
}

// MustParse is Parse for fixtures.
func MustParse(url, markup string) *Document {
	d, err := Parse(url, markup)
	if err != nil {
		panic(err)
	}
	return d
}

// SetURL changes the document URL, as an in-page navigation would.
func (d *Document) SetURL(url string) {
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
}

// SetTrackWidth sets the width reported for mounted tracks.
func (d *Document) SetTrackWidth(w float64) {
	d.mu.Lock()
	d.trackWidth = w
	d.mu.Unlock()
}

func (d *Document) idOfLocked(n *html.Node) dom.NodeID {
	if n == nil {
		return dom.None
	}
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.nextID++
	d.ids[n] = d.nextID
	d.nodes[d.nextID] = n
	return d.nextID
}

// nodeLocked resolves id to a node still attached to the document.
func (d *Document) nodeLocked(id dom.NodeID) (*html.Node, error) {
	n, ok := d.nodes[id]
	if !ok || !d.attachedLocked(n) {
		return nil, dom.ErrDetached
	}
	return n, nil
}

func (d *Document) attachedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func compile(selector string) (cascadia.Sel, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}
	return sel, nil
}

// URL implements dom.Host.
func (d *Document) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// QuerySelector implements dom.Host.
func (d *Document) QuerySelector(_ context.Context, selector string) (dom.NodeID, error) {
	sel, err := compile(selector)
	if err != nil {
		return dom.None, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idOfLocked(cascadia.Query(d.root, sel)), nil
}

// QuerySelectorAll implements dom.Host.
func (d *Document) QuerySelectorAll(_ context.Context, selector string) ([]dom.NodeID, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := cascadia.QueryAll(d.root, sel)
	out := make([]dom.NodeID, 0, len(matches))
	for _, n := range matches {
		out = append(out, d.idOfLocked(n))
	}
	return out, nil
}

// QueryWithin implements dom.Host. A detached root yields dom.None, like
// querySelector on an element removed from the page.
func (d *Document) QueryWithin(_ context.Context, root dom.NodeID, selector string) (dom.NodeID, error) {
	sel, err := compile(selector)
	if err != nil {
		return dom.None, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(root)
	if err != nil {
		return dom.None, nil
	}
	return d.idOfLocked(cascadia.Query(n, sel)), nil
}

// HasAttribute implements dom.Host.
func (d *Document) HasAttribute(_ context.Context, node dom.NodeID, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return false, nil
	}
	_, ok := attr(n, name)
	return ok, nil
}

// Observe implements dom.Host.
func (d *Document) Observe(_ context.Context, node dom.NodeID, opts dom.ObserveOptions, fn func([]dom.Mutation)) (dom.Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return nil, err
	}
	d.nextObs++
	id := d.nextObs
	d.observers[id] = &observer{id: id, node: n, opts: opts, fn: fn}
	var once sync.Once
	return dom.SubscriptionFunc(func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.observers, id)
			d.mu.Unlock()
		})
	}), nil
}

// ObserverCount returns the number of installed observers on node.
func (d *Document) ObserverCount(node dom.NodeID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.nodes[node]
	count := 0
	for _, o := range d.observers {
		if o.node == n {
			count++
		}
	}
	return count
}

// FindMounted implements dom.Host.
func (d *Document) FindMounted(_ context.Context, parent dom.NodeID, mountID string) (dom.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.nodeLocked(parent)
	if err != nil {
		return nil, err
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if v, ok := attr(c, "id"); ok && v == mountID {
			return d.trackLocked(c), nil
		}
	}
	return nil, nil
}

// MountTrack implements dom.Host.
func (d *Document) MountTrack(_ context.Context, parent dom.NodeID, mountID string) (dom.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.nodeLocked(parent)
	if err != nil {
		return nil, err
	}
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: mountID}},
	}
	el.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: mountID + "-fill"}},
	})
	p.AppendChild(el)
	d.recordLocked(dom.Mutation{Type: dom.MutationChildList, Target: d.idOfLocked(p)}, p)
	return d.trackLocked(el), nil
}

func (d *Document) trackLocked(n *html.Node) *Track {
	if t, ok := d.tracks[n]; ok {
		return t
	}
	t := &Track{doc: d, id: d.idOfLocked(n), listeners: make(map[int]func(dom.PointerEvent))}
	d.tracks[n] = t
	return t
}

// Remove implements dom.Host.
func (d *Document) Remove(_ context.Context, node dom.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return err
	}
	d.removeLocked(n)
	return nil
}

func (d *Document) removeLocked(n *html.Node) {
	p := n.Parent
	if p == nil {
		return
	}
	p.RemoveChild(n)
	d.recordLocked(dom.Mutation{Type: dom.MutationChildList, Target: d.idOfLocked(p)}, p)
}

// Media implements dom.Host.
func (d *Document) Media(_ context.Context, node dom.NodeID) (dom.Media, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return nil, err
	}
	v, err := d.videoLocked(n)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Document) videoLocked(n *html.Node) (*Video, error) {
	if n.DataAtom != atom.Video && n.DataAtom != atom.Audio {
		return nil, ErrNotMedia
	}
	if v, ok := d.videos[n]; ok {
		return v, nil
	}
	v := &Video{id: d.idOfLocked(n), duration: math.NaN(), listeners: make(map[int]func(dom.MediaState))}
	d.videos[n] = v
	return v, nil
}

// recordLocked queues a record for every observer interested in it.
func (d *Document) recordLocked(m dom.Mutation, target *html.Node) {
	for _, o := range d.observers {
		if o.node != target {
			continue
		}
		if (m.Type == dom.MutationChildList && o.opts.ChildList) ||
			(m.Type == dom.MutationAttributes && o.opts.Attributes) {
			o.pending = append(o.pending, m)
		}
	}
}

// Flush delivers queued records, one batch per observer, in observer install order.
func (d *Document) Flush() {
	type delivery struct {
		fn    func([]dom.Mutation)
		batch []dom.Mutation
	}
	d.mu.Lock()
	ids := make([]int, 0, len(d.observers))
	for id, o := range d.observers {
		if len(o.pending) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]delivery, 0, len(ids))
	for _, id := range ids {
		o := d.observers[id]
		out = append(out, delivery{fn: o.fn, batch: o.pending})
		o.pending = nil
	}
	d.mu.Unlock()

	for _, del := range out {
		del.fn(del.batch)
	}
}

// Batch applies fn and then flushes once.
func (d *Document) Batch(fn func()) {
	fn()
	d.Flush()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
