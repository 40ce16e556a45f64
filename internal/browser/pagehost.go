package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelbar/internal/dom"
	"reelbar/internal/logging"

	"github.com/go-rod/rod"
)

const unsubscribeTimeout = 2 * time.Second

// handler receives the drained events of one bridge subscription.
type handler struct {
	mutations func([]dom.Mutation)
	pointer   func(dom.PointerEvent)
	media     func(dom.MediaState)
}

// PageHost implements dom.Host over a live page through the injected bridge.
type PageHost struct {
	page  *rod.Page
	drain time.Duration

	mu       sync.Mutex
	handlers map[int64]handler

	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	removeScript func() error
	closeOnce    sync.Once
}

var _ dom.Host = (*PageHost)(nil)

// NewPageHost installs the bridge in page, re-installs it on every new document and
// starts draining its events every drain interval.
func NewPageHost(ctx context.Context, page *rod.Page, drain time.Duration) (*PageHost, error) {
	if drain <= 0 {
		drain = DefaultConfig().DrainInterval
	}
	remove, err := page.EvalOnNewDocument("(" + bridgeJS + ")()")
	if err != nil {
		return nil, fmt.Errorf("register bridge: %w", err)
	}

	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &PageHost{
		page:         page,
		drain:        drain,
		handlers:     make(map[int64]handler),
		ctx:          hctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		removeScript: remove,
	}
	if err := h.install(ctx); err != nil {
		cancel()
		_ = remove()
		return nil, err
	}
	go h.run()
	logging.BrowserDebug("bridge installed, draining every %v", drain)
	return h, nil
}

// Close stops draining and unregisters the bridge script. Subscriptions still
// installed in the page stop being delivered.
func (h *PageHost) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
		h.mu.Lock()
		h.handlers = make(map[int64]handler)
		h.mu.Unlock()
		err = h.removeScript()
	})
	return err
}

func (h *PageHost) install(ctx context.Context) error {
	if _, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: bridgeJS, ByValue: true}); err != nil {
		return fmt.Errorf("install bridge: %w", err)
	}
	return nil
}

// call runs a bridge operation and decodes its value into out. A bridge lost to a
// document reload is installed again once.
func (h *PageHost) call(ctx context.Context, out interface{}, op string, args ...interface{}) error {
	if args == nil {
		args = []interface{}{}
	}
	for attempt := 0; ; attempt++ {
		res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS:      callJS,
			JSArgs:  []interface{}{op, args},
			ByValue: true,
		})
		if err != nil {
			return fmt.Errorf("bridge %s: %w", op, err)
		}
		raw, err := res.Value.MarshalJSON()
		if err != nil {
			return fmt.Errorf("bridge %s: %w", op, err)
		}
		err = decodeCall(op, raw, out)
		if !errors.Is(err, errBridgeMissing) || attempt > 0 {
			return err
		}
		if err := h.install(ctx); err != nil {
			return err
		}
	}
}

func (h *PageHost) run() {
	defer close(h.done)
	ticker := time.NewTicker(h.drain)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.drainOnce()
		}
	}
}

func (h *PageHost) drainOnce() {
	var events []bridgeEvent
	if err := h.call(h.ctx, &events, "drain"); err != nil {
		if h.ctx.Err() == nil {
			logging.BrowserDebug("drain: %v", err)
		}
		return
	}
	h.dispatch(events)
}

// dispatch hands each event to its subscription. Callbacks run outside the lock.
func (h *PageHost) dispatch(events []bridgeEvent) {
	for _, e := range events {
		h.mu.Lock()
		hd, ok := h.handlers[e.Sub]
		h.mu.Unlock()
		if !ok {
			continue
		}
		switch e.Kind {
		case eventMutation:
			if hd.mutations != nil && len(e.Records) > 0 {
				hd.mutations(e.Records)
			}
		case eventPointer:
			if hd.pointer != nil {
				hd.pointer(e.pointer())
			}
		case eventMedia:
			if hd.media != nil {
				hd.media(e.media())
			}
		}
	}
}

// subscribe registers hd under the bridge subscription created by op.
func (h *PageHost) subscribe(ctx context.Context, hd handler, op string, args ...interface{}) (dom.Subscription, error) {
	var sub int64
	if err := h.call(ctx, &sub, op, args...); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.handlers[sub] = hd
	h.mu.Unlock()

	var once sync.Once
	return dom.SubscriptionFunc(func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, sub)
			h.mu.Unlock()
			if h.ctx.Err() != nil {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, unsubscribeTimeout)
			defer cancel()
			if err := h.call(ctx, nil, "unsubscribe", sub); err != nil {
				logging.BrowserDebug("unsubscribe %d: %v", sub, err)
			}
		})
	}), nil
}

// URL implements dom.Host.
func (h *PageHost) URL(ctx context.Context) (string, error) {
	info, err := h.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// QuerySelector implements dom.Host.
func (h *PageHost) QuerySelector(ctx context.Context, selector string) (dom.NodeID, error) {
	var id dom.NodeID
	err := h.call(ctx, &id, "query", selector)
	return id, err
}

// QuerySelectorAll implements dom.Host.
func (h *PageHost) QuerySelectorAll(ctx context.Context, selector string) ([]dom.NodeID, error) {
	var ids []dom.NodeID
	err := h.call(ctx, &ids, "queryAll", selector)
	return ids, err
}

// QueryWithin implements dom.Host.
func (h *PageHost) QueryWithin(ctx context.Context, root dom.NodeID, selector string) (dom.NodeID, error) {
	var id dom.NodeID
	err := h.call(ctx, &id, "within", root, selector)
	return id, err
}

// HasAttribute implements dom.Host.
func (h *PageHost) HasAttribute(ctx context.Context, node dom.NodeID, name string) (bool, error) {
	var ok bool
	err := h.call(ctx, &ok, "hasAttr", node, name)
	return ok, err
}

// Observe implements dom.Host. Each MutationObserver callback in the page becomes
// one batch.
func (h *PageHost) Observe(ctx context.Context, node dom.NodeID, opts dom.ObserveOptions, fn func([]dom.Mutation)) (dom.Subscription, error) {
	return h.subscribe(ctx, handler{mutations: fn}, "observe", node, opts.ChildList, opts.Attributes)
}

// FindMounted implements dom.Host.
func (h *PageHost) FindMounted(ctx context.Context, parent dom.NodeID, mountID string) (dom.Track, error) {
	var id dom.NodeID
	if err := h.call(ctx, &id, "findMounted", parent, mountID); err != nil {
		return nil, err
	}
	if id == dom.None {
		return nil, nil
	}
	return &pageTrack{host: h, id: id}, nil
}

// MountTrack implements dom.Host.
func (h *PageHost) MountTrack(ctx context.Context, parent dom.NodeID, mountID string) (dom.Track, error) {
	var id dom.NodeID
	if err := h.call(ctx, &id, "mount", parent, mountID); err != nil {
		return nil, err
	}
	return &pageTrack{host: h, id: id}, nil
}

// Remove implements dom.Host.
func (h *PageHost) Remove(ctx context.Context, node dom.NodeID) error {
	return h.call(ctx, nil, "remove", node)
}

// ErrNotMedia is returned by Media for elements that cannot play.
var ErrNotMedia = errors.New("browser: not a media element")

// Media implements dom.Host.
func (h *PageHost) Media(ctx context.Context, node dom.NodeID) (dom.Media, error) {
	var ok bool
	if err := h.call(ctx, &ok, "isMedia", node); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMedia
	}
	return &pageMedia{host: h, id: node}, nil
}

type pageTrack struct {
	host *PageHost
	id   dom.NodeID
}

func (t *pageTrack) Node() dom.NodeID { return t.id }

func (t *pageTrack) SetFill(ctx context.Context, fraction float64) error {
	return t.host.call(ctx, nil, "setFill", t.id, fraction)
}

func (t *pageTrack) OnPointer(fn func(dom.PointerEvent)) (dom.Subscription, error) {
	return t.host.subscribe(t.host.ctx, handler{pointer: fn}, "onPointer", t.id)
}

type pageMedia struct {
	host *PageHost
	id   dom.NodeID
}

func (m *pageMedia) Node() dom.NodeID { return m.id }

func (m *pageMedia) State(ctx context.Context) (dom.MediaState, error) {
	var s struct {
		Current  float64  `json:"t"`
		Duration *float64 `json:"d"`
	}
	if err := m.host.call(ctx, &s, "media", m.id); err != nil {
		return dom.MediaState{}, err
	}
	return mediaState(s.Current, s.Duration), nil
}

func (m *pageMedia) Seek(ctx context.Context, seconds float64) error {
	return m.host.call(ctx, nil, "seek", m.id, seconds)
}

func (m *pageMedia) OnTimeUpdate(fn func(dom.MediaState)) (dom.Subscription, error) {
	return m.host.subscribe(m.host.ctx, handler{media: fn}, "onTime", m.id)
}
