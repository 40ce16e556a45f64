package engine

import (
	"context"
	"errors"
	"time"

	"reelbar/internal/dom"
	"reelbar/internal/logging"
	"reelbar/internal/scrub"
)

// slowDecorate is how long mounting may take before it is logged as a warning.
const slowDecorate = 500 * time.Millisecond

// decoration is the track mounted under the active item's attach point.
type decoration struct {
	item   dom.NodeID
	attach dom.NodeID
	track  dom.Track
	media  dom.Media
	subs   []dom.Subscription

	drag scrub.Drag
	fill float64
}

// onResolvedActive switches the decoration to item. Repeated notifications for the
// current item are ignored.
func (r *Run) onResolvedActive(item dom.NodeID) {
	if item == dom.None || item == r.active {
		return
	}
	prev := r.active
	r.active = item
	r.log.Info("active item %d -> %d", prev, item)
	r.emit(Event{Type: EventActiveChanged, Item: item})

	// The old decoration goes before anything is built for the new item.
	r.removeDecoration(r.ctx)

	if r.readyCancel != nil {
		r.readyCancel()
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.readyCancel = cancel

	wait(r, ctx, r.opts.ReadyInterval, func(ctx context.Context) (bool, bool) {
		ok, err := r.adapter.IsReady(ctx, item)
		if err != nil {
			r.declog.Debug("readiness of %d: %v", item, err)
			return false, false
		}
		return ok, ok
	}, always[bool], func(bool) { r.decorate(ctx, item) })
}

// decorate mounts the track under item once it is ready.
func (r *Run) decorate(ctx context.Context, item dom.NodeID) {
	if item != r.active {
		r.declog.Debug("item %d no longer active, dropping readiness", item)
		return
	}
	if r.decoration != nil {
		return
	}
	defer logging.StartTimer(logging.CategoryDecoration, "decorate").StopWithThreshold(slowDecorate)

	attach, err := r.adapter.AttachPoint(ctx, item)
	if err != nil || attach == dom.None {
		r.declog.Debug("item %d has no attach point (err=%v)", item, err)
		return
	}
	media, err := r.adapter.MediaElement(ctx, item)
	if err != nil || media == nil {
		r.declog.Debug("item %d has no media element (err=%v)", item, err)
		return
	}

	track, err := r.host.FindMounted(ctx, attach, r.opts.MountID)
	if err != nil {
		r.declog.Debug("look up mount under %d: %v", attach, err)
		return
	}
	reused := track != nil
	if !reused {
		track, err = r.host.MountTrack(ctx, attach, r.opts.MountID)
		if err != nil {
			r.declog.Warn("mount track under %d: %v", attach, err)
			return
		}
	}

	d := &decoration{item: item, attach: attach, track: track, media: media}
	if sub, err := media.OnTimeUpdate(func(s dom.MediaState) {
		r.post(func() { r.syncFill(d, s) })
	}); err != nil {
		r.declog.Warn("subscribe to timeupdate: %v", err)
	} else {
		d.subs = append(d.subs, sub)
	}
	if sub, err := track.OnPointer(func(ev dom.PointerEvent) {
		r.post(func() { r.onPointer(d, ev) })
	}); err != nil {
		r.declog.Warn("subscribe to pointer events: %v", err)
	} else {
		d.subs = append(d.subs, sub)
	}
	r.decoration = d

	if s, err := media.State(ctx); err == nil {
		r.syncFill(d, s)
	}

	r.declog.Info("attached track %d under %d (reused=%t)", track.Node(), attach, reused)
	r.emit(Event{Type: EventAttached, Item: item, Mount: track.Node(), Reuse: reused})
}

// syncFill mirrors the playback position onto the track. An unknown duration keeps
// the last fill.
func (r *Run) syncFill(d *decoration, s dom.MediaState) {
	if r.decoration != d {
		return
	}
	fraction, ok := scrub.Fill(s.CurrentTime, s.Duration)
	if !ok {
		return
	}
	r.setFill(d, fraction)
}

func (r *Run) setFill(d *decoration, fraction float64) {
	d.fill = fraction
	if err := d.track.SetFill(r.ctx, fraction); err != nil {
		r.declog.Debug("set fill: %v", err)
	}
}

// onPointer turns a press-move-release gesture into seeks.
func (r *Run) onPointer(d *decoration, ev dom.PointerEvent) {
	if r.decoration != d {
		return
	}
	var fraction float64
	switch ev.Phase {
	case dom.PointerDown:
		fraction = d.drag.Press(ev.Offset, ev.Width)
	case dom.PointerMove:
		f, ok := d.drag.Move(ev.Offset, ev.Width)
		if !ok {
			return
		}
		fraction = f
	case dom.PointerUp:
		if !d.drag.Dragging() {
			return
		}
		fraction = scrub.Fraction(ev.Offset, ev.Width)
		d.drag.Release()
	default:
		return
	}

	s, err := d.media.State(r.ctx)
	if err != nil {
		r.declog.Debug("media state: %v", err)
		return
	}
	if s.HasDuration() {
		if err := d.media.Seek(r.ctx, scrub.SeekTime(fraction, s.Duration)); err != nil {
			r.declog.Debug("seek: %v", err)
			return
		}
	}
	r.setFill(d, fraction)
}

// removeDecoration cancels the decoration's listeners and takes it off the page.
func (r *Run) removeDecoration(ctx context.Context) {
	d := r.decoration
	if d == nil {
		return
	}
	r.decoration = nil
	for _, sub := range d.subs {
		sub.Cancel()
	}
	if err := r.host.Remove(ctx, d.track.Node()); err != nil && !errors.Is(err, dom.ErrDetached) {
		r.declog.Warn("remove track %d: %v", d.track.Node(), err)
	}
	r.declog.Info("removed track %d from %d", d.track.Node(), d.item)
	r.emit(Event{Type: EventRemoved, Item: d.item, Mount: d.track.Node()})
}
