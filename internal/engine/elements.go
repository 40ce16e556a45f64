package engine

import (
	"context"

	"reelbar/internal/dom"
	"reelbar/internal/logging"
)

// Changed reports whether next differs from current: different lengths, or a
// different identity at any index, index 0 included.
func Changed(current, next []dom.NodeID) bool {
	if len(current) != len(next) {
		return true
	}
	for i := range current {
		if current[i] != next[i] {
			return true
		}
	}
	return false
}

// refresh re-queries the item set. An empty result is not an answer: it keeps
// polling until the host renders at least one item. A newer refresh supersedes
// one still waiting.
func (r *Run) refresh() {
	if r.refreshCancel != nil {
		r.refreshCancel()
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.refreshCancel = cancel

	wait(r, ctx, r.opts.ItemsInterval, func(ctx context.Context) ([]dom.NodeID, bool) {
		items, err := r.adapter.QueryItems(ctx)
		if err != nil {
			r.log.Debug("items query: %v", err)
			return nil, false
		}
		return items, true
	}, func(items []dom.NodeID) bool { return len(items) > 0 }, r.setItems)
}

func (r *Run) setItems(next []dom.NodeID) {
	if !Changed(r.items, next) {
		return
	}
	r.items = next
	r.syncItemSubscriptions()
	r.log.Debug("tracking %d items", len(next))
	r.emit(Event{Type: EventItemsChanged, Items: len(next)})
	r.resolveActive()
}

// syncItemSubscriptions makes the set of observed items equal the tracked set.
func (r *Run) syncItemSubscriptions() {
	defer logging.StartTimer(logging.CategoryTracker, "sync item subscriptions").Stop()

	keep := make(map[dom.NodeID]struct{}, len(r.items))
	for _, id := range r.items {
		keep[id] = struct{}{}
	}
	for id, sub := range r.itemSubs {
		if _, ok := keep[id]; !ok {
			sub.Cancel()
			delete(r.itemSubs, id)
		}
	}
	for _, id := range r.items {
		if _, ok := r.itemSubs[id]; ok {
			continue
		}
		sub, err := r.host.Observe(r.ctx, id, dom.ObserveOptions{Attributes: true}, r.onItemMutations)
		if err != nil {
			// Gone already; the structural change that removed it triggers another refresh.
			r.log.Debug("observe item %d: %v", id, err)
			continue
		}
		r.itemSubs[id] = sub
	}
}

func (r *Run) onItemMutations(batch []dom.Mutation) {
	for _, m := range batch {
		if r.adapter.IsActivationChange(m) {
			r.post(r.resolveActive)
			return
		}
	}
}
