package engine

import (
	"context"
	"sync"
	"time"

	"reelbar/internal/dom"
	"reelbar/internal/logging"
	"reelbar/internal/poll"

	"github.com/google/uuid"
)

// teardownTimeout bounds host calls made while a run shuts down.
const teardownTimeout = 5 * time.Second

// Run is one bootstrap of one page adapter against one host.
type Run struct {
	id      string
	host    dom.Host
	adapter PageAdapter
	opts    Options
	log     *logging.Logger
	declog  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	qmu    sync.Mutex
	queue  []func()
	signal chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	// Everything below is owned by the loop goroutine.
	containerSub  dom.Subscription
	items         []dom.NodeID
	itemSubs      map[dom.NodeID]dom.Subscription
	refreshCancel context.CancelFunc
	resolveCancel context.CancelFunc
	readyCancel   context.CancelFunc
	active        dom.NodeID
	decoration    *decoration
}

// NewRun prepares a run; nothing touches the host until Start.
func NewRun(host dom.Host, adapter PageAdapter, opts Options) *Run {
	id := uuid.NewString()
	return &Run{
		id:       id,
		host:     host,
		adapter:  adapter,
		opts:     opts.withDefaults(),
		log:      logging.WithRun(logging.CategoryTracker, id),
		declog:   logging.WithRun(logging.CategoryDecoration, id),
		done:     make(chan struct{}),
		signal:   make(chan struct{}, 1),
		itemSubs: make(map[dom.NodeID]dom.Subscription),
	}
}

// ID returns the run's correlation id.
func (r *Run) ID() string { return r.id }

// Kind returns the page kind this run tracks.
func (r *Run) Kind() string { return r.adapter.Kind() }

// Start begins container discovery and seeds the item set without waiting for it.
// The run lives until ctx is cancelled or Stop is called.
func (r *Run) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.ctx, r.cancel = context.WithCancel(ctx)
		go r.loop()
		r.post(func() {
			logging.Engine("run %s started for %s", r.id, r.adapter.Kind())
			r.discover()
			r.refresh()
		})
	})
}

// Stop cancels every poll and subscription of the run, removes its decoration and
// waits for all of its goroutines to exit.
func (r *Run) Stop() {
	r.startOnce.Do(func() { close(r.done) })
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
	<-r.done
	r.wg.Wait()
}

// Done is closed once the run's loop has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// State is a snapshot of a run's tracking state.
type State struct {
	Items     []dom.NodeID
	Active    dom.NodeID
	Decorated dom.NodeID // item currently carrying the decoration
	Mount     dom.NodeID
}

// Snapshot reads the run's state on its loop.
func (r *Run) Snapshot(ctx context.Context) (State, error) {
	ch := make(chan State, 1)
	if !r.post(func() {
		s := State{Items: append([]dom.NodeID(nil), r.items...), Active: r.active}
		if r.decoration != nil {
			s.Decorated = r.decoration.item
			s.Mount = r.decoration.track.Node()
		}
		ch <- s
	}) {
		return State{}, ErrStopped
	}
	select {
	case s := <-ch:
		return s, nil
	case <-r.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// post queues fn for the loop. It never blocks, so host callbacks fired from
// inside a loop task cannot deadlock the run.
func (r *Run) post(fn func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	r.qmu.Lock()
	r.queue = append(r.queue, fn)
	r.qmu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
	return true
}

func (r *Run) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.teardown()
			return
		case <-r.signal:
			r.qmu.Lock()
			tasks := r.queue
			r.queue = nil
			r.qmu.Unlock()
			for _, fn := range tasks {
				if r.ctx.Err() != nil {
					break
				}
				fn()
			}
		}
	}
}

func (r *Run) emit(ev Event) {
	if r.opts.OnEvent == nil {
		return
	}
	ev.RunID = r.id
	r.opts.OnEvent(ev)
}

// wait polls on a goroutine and hands the value to then on the loop, unless ctx
// was cancelled first.
func wait[T any](r *Run, ctx context.Context, interval time.Duration, load poll.Loader[T], cond func(T) bool, then func(T)) {
	f := poll.Async(ctx, interval, load, cond)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-f.Done()
		if f.Err() != nil {
			return
		}
		v := f.Value()
		r.post(func() {
			if ctx.Err() != nil {
				return
			}
			then(v)
		})
	}()
}

func always[T any](T) bool { return true }

func (r *Run) teardown() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), teardownTimeout)
	defer cancel()

	if r.containerSub != nil {
		r.containerSub.Cancel()
		r.containerSub = nil
	}
	for id, sub := range r.itemSubs {
		sub.Cancel()
		delete(r.itemSubs, id)
	}
	r.removeDecoration(ctx)
	logging.Engine("run %s stopped", r.id)
}
