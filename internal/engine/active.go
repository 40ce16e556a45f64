package engine

import (
	"context"

	"reelbar/internal/dom"
)

// FirstActive returns the first of items for which isActive holds. Errors count as
// "not active" for that item.
func FirstActive(ctx context.Context, items []dom.NodeID, isActive func(context.Context, dom.NodeID) (bool, error)) (dom.NodeID, bool) {
	for _, id := range items {
		if ok, err := isActive(ctx, id); err == nil && ok {
			return id, true
		}
	}
	return dom.None, false
}

// resolveActive waits until one of the tracked items is active. It never settles
// on "no active item"; a newer resolution supersedes one still waiting.
func (r *Run) resolveActive() {
	if r.resolveCancel != nil {
		r.resolveCancel()
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.resolveCancel = cancel

	items := append([]dom.NodeID(nil), r.items...)
	wait(r, ctx, r.opts.ActiveInterval, func(ctx context.Context) (dom.NodeID, bool) {
		return FirstActive(ctx, items, r.adapter.IsActive)
	}, always[dom.NodeID], r.onResolvedActive)
}
