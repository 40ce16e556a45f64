package engine

import (
	"context"

	"reelbar/internal/dom"
)

// discover waits for the feed container and subscribes to its structural changes.
func (r *Run) discover() {
	wait(r, r.ctx, r.opts.ContainerInterval, func(ctx context.Context) (dom.NodeID, bool) {
		id, err := r.adapter.QueryContainer(ctx)
		if err != nil {
			r.log.Debug("container query: %v", err)
			return dom.None, false
		}
		return id, id != dom.None
	}, always[dom.NodeID], r.onContainer)
}

func (r *Run) onContainer(container dom.NodeID) {
	sub, err := r.host.Observe(r.ctx, container, dom.ObserveOptions{ChildList: true, Attributes: true}, r.onContainerMutations)
	if err != nil {
		// Replaced between the query and the subscription; look it up again.
		r.log.Debug("observe container %d: %v", container, err)
		r.discover()
		return
	}
	if r.containerSub != nil {
		r.containerSub.Cancel()
	}
	r.containerSub = sub
	r.log.Info("container %d found", container)
	r.emit(Event{Type: EventContainerFound})
}

// onContainerMutations coalesces a batch into at most one re-scan.
func (r *Run) onContainerMutations(batch []dom.Mutation) {
	for _, m := range batch {
		if r.adapter.IsStructuralChange(m) {
			r.post(r.refresh)
			return
		}
	}
}
