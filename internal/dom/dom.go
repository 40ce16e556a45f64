// Package dom defines the contract reelbar uses to observe and query a page it does not own.
//
// A Host is either a live browser page (internal/browser) or an in-memory tree
// (internal/memdom). Nodes are referred to by NodeID, a stable identity the host
// assigns the first time it hands a node out. The zero NodeID means "absent".
package dom

import (
	"context"
	"errors"
	"math"
)

// NodeID identifies a node for as long as the host keeps it alive.
type NodeID int64

// None is the absent node.
const None NodeID = 0

// ErrDetached is returned when an operation targets a node the host has already dropped.
var ErrDetached = errors.New("dom: node detached")

// Mutation types, matching MutationRecord.type in the browser.
const (
	MutationChildList  = "childList"
	MutationAttributes = "attributes"
)

// Mutation is one change record delivered to an observer.
type Mutation struct {
	Type          string `json:"type"`
	AttributeName string `json:"attr,omitempty"`
	Target        NodeID `json:"target"`
}

// ObserveOptions selects which change records an observer receives.
type ObserveOptions struct {
	ChildList  bool
	Attributes bool
}

// Subscription is a handle on an installed observer or listener.
// Cancel is safe to call more than once.
type Subscription interface {
	Cancel()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Cancel calls f.
func (f SubscriptionFunc) Cancel() { f() }

// Pointer phases delivered by a Track.
const (
	PointerDown = "down"
	PointerMove = "move"
	PointerUp   = "up"
)

// PointerEvent is a press/move/release over a track. Offset is relative to the
// track's left edge and Width is the track's width at the time of the event.
type PointerEvent struct {
	Phase  string  `json:"phase"`
	Offset float64 `json:"offset"`
	Width  float64 `json:"width"`
}

// MediaState is a snapshot of a media element's playback position.
// Duration is NaN while the media has no metadata.
type MediaState struct {
	CurrentTime float64
	Duration    float64
}

// HasDuration reports whether Duration is usable for position arithmetic.
func (s MediaState) HasDuration() bool {
	return !math.IsNaN(s.Duration) && !math.IsInf(s.Duration, 0) && s.Duration > 0
}

// Track is a mounted scrub track.
type Track interface {
	Node() NodeID
	SetFill(ctx context.Context, fraction float64) error
	OnPointer(fn func(PointerEvent)) (Subscription, error)
}

// Media is a handle on a playable element.
type Media interface {
	Node() NodeID
	State(ctx context.Context) (MediaState, error)
	Seek(ctx context.Context, seconds float64) error
	OnTimeUpdate(fn func(MediaState)) (Subscription, error)
}

// Host is the query and subscription surface of an observed page.
//
// Callbacks passed to Observe, OnPointer and OnTimeUpdate may run on any goroutine;
// a batch handed to an Observe callback corresponds to one observer delivery.
type Host interface {
	URL(ctx context.Context) (string, error)

	QuerySelector(ctx context.Context, selector string) (NodeID, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]NodeID, error)
	QueryWithin(ctx context.Context, root NodeID, selector string) (NodeID, error)
	HasAttribute(ctx context.Context, node NodeID, name string) (bool, error)

	Observe(ctx context.Context, node NodeID, opts ObserveOptions, fn func([]Mutation)) (Subscription, error)

	// FindMounted returns the track already mounted under parent with the given id, if any.
	FindMounted(ctx context.Context, parent NodeID, mountID string) (Track, error)
	MountTrack(ctx context.Context, parent NodeID, mountID string) (Track, error)
	Remove(ctx context.Context, node NodeID) error

	Media(ctx context.Context, node NodeID) (Media, error)
}
