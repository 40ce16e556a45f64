package memdom

import (
	"context"
	"sync"

	"reelbar/internal/dom"
)

// Video simulates an HTMLVideoElement's playback surface.
type Video struct {
	id dom.NodeID

	mu        sync.Mutex
	current   float64
	duration  float64
	seeks     []float64
	nextSub   int
	listeners map[int]func(dom.MediaState)
}

func (v *Video) Node() dom.NodeID { return v.id }

func (v *Video) State(context.Context) (dom.MediaState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return dom.MediaState{CurrentTime: v.current, Duration: v.duration}, nil
}

// Seek records the seek and moves the playhead; it fires a timeupdate like a browser does.
func (v *Video) Seek(_ context.Context, seconds float64) error {
	v.mu.Lock()
	v.seeks = append(v.seeks, seconds)
	v.mu.Unlock()
	v.SetTime(seconds, v.Duration())
	return nil
}

func (v *Video) OnTimeUpdate(fn func(dom.MediaState)) (dom.Subscription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextSub++
	id := v.nextSub
	v.listeners[id] = fn
	return dom.SubscriptionFunc(func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}), nil
}

// SetTime updates the playback position and dispatches timeupdate.
func (v *Video) SetTime(current, duration float64) {
	v.mu.Lock()
	v.current, v.duration = current, duration
	state := dom.MediaState{CurrentTime: current, Duration: duration}
	fns := make([]func(dom.MediaState), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Duration returns the current duration (NaN before metadata).
func (v *Video) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duration
}

// Seeks returns every position passed to Seek.
func (v *Video) Seeks() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]float64(nil), v.seeks...)
}

// Listeners returns the number of timeupdate listeners.
func (v *Video) Listeners() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners)
}

// Track is a mounted progress track.
type Track struct {
	doc *Document
	id  dom.NodeID

	mu        sync.Mutex
	fill      float64
	fills     int
	nextSub   int
	listeners map[int]func(dom.PointerEvent)
}

func (t *Track) Node() dom.NodeID { return t.id }

func (t *Track) SetFill(_ context.Context, fraction float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fill = fraction
	t.fills++
	return nil
}

// Fill returns the last fill fraction and how many times it was set.
func (t *Track) Fill() (fraction float64, updates int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fill, t.fills
}

func (t *Track) OnPointer(fn func(dom.PointerEvent)) (dom.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.listeners[id] = fn
	return dom.SubscriptionFunc(func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}), nil
}

// Dispatch delivers a pointer event. A zero Width is filled in from the document.
func (t *Track) Dispatch(ev dom.PointerEvent) {
	if ev.Width == 0 {
		t.doc.mu.Lock()
		ev.Width = t.doc.trackWidth
		t.doc.mu.Unlock()
	}
	t.mu.Lock()
	fns := make([]func(dom.PointerEvent), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
