package memdom

import (
	"fmt"
	"strings"

	"reelbar/internal/dom"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Find returns the first node matching selector, or dom.None.
func (d *Document) Find(selector string) dom.NodeID {
	sel, err := compile(selector)
	if err != nil {
		return dom.None
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idOfLocked(cascadia.Query(d.root, sel))
}

// FindAll returns every node matching selector.
func (d *Document) FindAll(selector string) []dom.NodeID {
	sel, err := compile(selector)
	if err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dom.NodeID
	for _, n := range cascadia.QueryAll(d.root, sel) {
		out = append(out, d.idOfLocked(n))
	}
	return out
}

// Count returns how many descendants of root match selector. A detached root counts 0.
func (d *Document) Count(root dom.NodeID, selector string) int {
	sel, err := compile(selector)
	if err != nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(root)
	if err != nil {
		return 0
	}
	return len(cascadia.QueryAll(n, sel))
}

// Load replaces the whole document, as a full page load would. Nodes handed out
// before the load become detached.
func (d *Document) Load(markup string) error {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	d.mu.Lock()
	d.root = root
	d.mu.Unlock()
	return nil
}

// AppendHTML parses markup and appends the resulting nodes to parent.
func (d *Document) AppendHTML(parent dom.NodeID, markup string) ([]dom.NodeID, error) {
	frag, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.nodeLocked(parent)
	if err != nil {
		return nil, err
	}
	ids := make([]dom.NodeID, 0, len(frag))
	for _, n := range frag {
		p.AppendChild(n)
		ids = append(ids, d.idOfLocked(n))
	}
	if len(frag) > 0 {
		d.recordLocked(dom.Mutation{Type: dom.MutationChildList, Target: d.idOfLocked(p)}, p)
	}
	return ids, nil
}

// Append appends markup to the first node matching parentSelector.
func (d *Document) Append(parentSelector, markup string) ([]dom.NodeID, error) {
	parent := d.Find(parentSelector)
	if parent == dom.None {
		return nil, fmt.Errorf("no node matches %q", parentSelector)
	}
	return d.AppendHTML(parent, markup)
}

// RemoveMatching removes every node matching selector and returns how many were removed.
func (d *Document) RemoveMatching(selector string) (int, error) {
	sel, err := compile(selector)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := cascadia.QueryAll(d.root, sel)
	for _, n := range matches {
		d.removeLocked(n)
	}
	return len(matches), nil
}

// SetAttr sets an attribute and records an attributes mutation.
func (d *Document) SetAttr(node dom.NodeID, key, val string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return err
	}
	replaced := false
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			replaced = true
		}
	}
	if !replaced {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	d.recordLocked(dom.Mutation{Type: dom.MutationAttributes, AttributeName: key, Target: node}, n)
	return nil
}

// RemoveAttr removes an attribute; a missing attribute records nothing.
func (d *Document) RemoveAttr(node dom.NodeID, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return err
	}
	kept := n.Attr[:0]
	removed := false
	for _, a := range n.Attr {
		if a.Key == key {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
	if removed {
		d.recordLocked(dom.Mutation{Type: dom.MutationAttributes, AttributeName: key, Target: node}, n)
	}
	return nil
}

// SetAttrMatching sets an attribute on every node matching selector.
func (d *Document) SetAttrMatching(selector, key, val string) error {
	for _, id := range d.FindAll(selector) {
		if err := d.SetAttr(id, key, val); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAttrMatching removes an attribute from every node matching selector.
func (d *Document) RemoveAttrMatching(selector, key string) error {
	for _, id := range d.FindAll(selector) {
		if err := d.RemoveAttr(id, key); err != nil {
			return err
		}
	}
	return nil
}

// VideoAt returns the simulated media for a <video> node.
func (d *Document) VideoAt(node dom.NodeID) (*Video, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.nodeLocked(node)
	if err != nil {
		return nil, err
	}
	return d.videoLocked(n)
}

// TrackAt returns the track mounted under parent with mountID, or nil.
func (d *Document) TrackAt(parent dom.NodeID, mountID string) *Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.nodeLocked(parent)
	if err != nil {
		return nil
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if v, ok := attr(c, "id"); ok && v == mountID {
			return d.trackLocked(c)
		}
	}
	return nil
}

// Render serializes the document, for debugging failed scenarios.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	_ = html.Render(&b, d.root)
	return b.String()
}
