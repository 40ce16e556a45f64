// Package engine keeps a progress bar attached to the active item of a feed page.
//
// A Run owns one bootstrap: it finds the feed container, tracks the set of items,
// resolves which one is active and mounts the decoration under it. All Run state is
// mutated on the Run's loop goroutine; polls and host callbacks post work to it.
package engine

import (
	"context"
	"errors"
	"regexp"
	"time"

	"reelbar/internal/dom"
)

// ErrStopped is returned by operations on a Run that has been stopped.
var ErrStopped = errors.New("engine: run stopped")

// PageAdapter answers page-specific questions for one page kind.
// An absent node is reported as dom.None (or a nil Media) with a nil error.
type PageAdapter interface {
	Kind() string
	Patterns() []*regexp.Regexp

	QueryContainer(ctx context.Context) (dom.NodeID, error)
	QueryItems(ctx context.Context) ([]dom.NodeID, error)
	AttachPoint(ctx context.Context, item dom.NodeID) (dom.NodeID, error)
	MediaElement(ctx context.Context, item dom.NodeID) (dom.Media, error)
	IsReady(ctx context.Context, item dom.NodeID) (bool, error)
	IsActive(ctx context.Context, item dom.NodeID) (bool, error)

	IsStructuralChange(m dom.Mutation) bool
	IsActivationChange(m dom.Mutation) bool
}

// Applies reports whether any of a's patterns match url.
func Applies(a PageAdapter, url string) bool {
	for _, p := range a.Patterns() {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// Options tunes polling and the mount point.
type Options struct {
	ContainerInterval time.Duration // waiting for the feed container
	ItemsInterval     time.Duration // waiting for a non-empty item set
	ActiveInterval    time.Duration // waiting for an item to become active
	ReadyInterval     time.Duration // waiting for an active item's subtree

	MountID string // id of the decoration element under the attach point

	// OnEvent, if set, is called on the run's loop goroutine for every lifecycle event.
	OnEvent func(Event)
}

// DefaultOptions returns the polling classes used on real pages.
func DefaultOptions() Options {
	return Options{
		ContainerInterval: 500 * time.Millisecond,
		ItemsInterval:     500 * time.Millisecond,
		ActiveInterval:    500 * time.Millisecond,
		ReadyInterval:     50 * time.Millisecond,
		MountID:           "reelbar-progress",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ContainerInterval <= 0 {
		o.ContainerInterval = def.ContainerInterval
	}
	if o.ItemsInterval <= 0 {
		o.ItemsInterval = def.ItemsInterval
	}
	if o.ActiveInterval <= 0 {
		o.ActiveInterval = def.ActiveInterval
	}
	if o.ReadyInterval <= 0 {
		o.ReadyInterval = def.ReadyInterval
	}
	if o.MountID == "" {
		o.MountID = def.MountID
	}
	return o
}

// EventType names a lifecycle transition.
type EventType string

const (
	EventContainerFound EventType = "container_found"
	EventItemsChanged   EventType = "items_changed"
	EventActiveChanged  EventType = "active_changed"
	EventAttached       EventType = "attached"
	EventRemoved        EventType = "removed"
)

// Event describes a lifecycle transition of a Run.
type Event struct {
	RunID string
	Type  EventType
	Item  dom.NodeID // active item, for active/attach/remove
	Mount dom.NodeID // decoration node, for attach/remove
	Items int        // tracked item count, for items_changed
	Reuse bool       // attach reused an existing mount
}

// Trigger asks for a re-bootstrap, e.g. after an in-page navigation. ID is opaque.
type Trigger struct {
	ID  int64
	URL string
}
