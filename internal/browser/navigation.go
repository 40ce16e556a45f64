package browser

import (
	"context"
	"strings"
	"sync"

	"reelbar/internal/engine"
	"reelbar/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// navigationFilter turns main-frame navigations under prefix into numbered triggers.
type navigationFilter struct {
	prefix    string
	mainFrame proto.PageFrameID

	mu   sync.Mutex
	last int64
}

func (f *navigationFilter) accept(frame proto.PageFrameID, url string) (engine.Trigger, bool) {
	if frame != "" && f.mainFrame != "" && frame != f.mainFrame {
		return engine.Trigger{}, false
	}
	if !strings.HasPrefix(url, f.prefix) {
		return engine.Trigger{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last++
	return engine.Trigger{ID: f.last, URL: url}, true
}

// WatchNavigation calls fn for every navigation of page's main frame whose URL starts
// with prefix: history-state updates (PageNavigatedWithinDocument) and full loads
// (PageFrameNavigated). Trigger IDs increase. It blocks until ctx is done.
func WatchNavigation(ctx context.Context, page *rod.Page, prefix string, fn func(engine.Trigger)) error {
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return err
	}
	f := &navigationFilter{prefix: prefix, mainFrame: page.FrameID}
	emit := func(frame proto.PageFrameID, url string) {
		t, ok := f.accept(frame, url)
		if !ok {
			return
		}
		logging.BrowserDebug("navigation trigger %d: %s", t.ID, t.URL)
		fn(t)
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.PageNavigatedWithinDocument) {
			emit(e.FrameID, e.URL)
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			emit(e.Frame.ID, e.Frame.URL)
		},
	)
	wait()
	return ctx.Err()
}
