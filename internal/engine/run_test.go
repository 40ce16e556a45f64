package engine_test

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"reelbar/internal/adapter"
	"reelbar/internal/dom"
	"reelbar/internal/engine"
	"reelbar/internal/memdom"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const videoContainer = `<div class="html5-video-container"><video></video></div>`

func TestRun_ConvergesFromEmptyContainer(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page())
	r, _ := startRun(t, doc)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, snapshot(r).Items)

	var ids []dom.NodeID
	doc.Batch(func() {
		var err error
		ids, err = doc.Append("#shorts-inner-container",
			item("a", false, true)+item("b", true, true)+item("c", false, true))
		require.NoError(t, err)
	})
	require.Len(t, ids, 3)

	waitDecorated(t, r, ids[1])
	s := snapshot(r)
	if diff := cmp.Diff(ids, s.Items); diff != "" {
		t.Errorf("tracked items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, ids[1], s.Active)
	assert.Equal(t, 1, doc.Count(ids[1], "#"+mountID))
	assert.Equal(t, 0, doc.Count(ids[0], "#"+mountID))
}

// countingAdapter counts item queries.
type countingAdapter struct {
	*adapter.Selector
	queries atomic.Int32
}

func (c *countingAdapter) QueryItems(ctx context.Context) ([]dom.NodeID, error) {
	c.queries.Add(1)
	return c.Selector.QueryItems(ctx)
}

func TestRun_StructuralBatchRescansOnce(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true)))
	a := doc.Find("#a")
	container := doc.Find("#shorts-inner-container")
	counter := &countingAdapter{Selector: shorts(t, doc)}

	opts := fastOptions(&recorder{})
	opts.ItemsInterval = time.Hour // every query after the first comes from a structural batch
	r := engine.NewRun(doc, counter, opts)
	r.Start(context.Background())
	t.Cleanup(r.Stop)

	waitDecorated(t, r, a)
	require.Eventually(t, func() bool { return doc.ObserverCount(container) == 1 }, settle, tick)
	before := counter.queries.Load()

	doc.Batch(func() {
		for _, id := range []string{"b", "c", "d"} {
			_, err := doc.AppendHTML(container, item(id, false, true))
			require.NoError(t, err)
		}
	})
	require.Eventually(t, func() bool { return len(snapshot(r).Items) == 4 }, settle, tick)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before+1, counter.queries.Load())
}

func TestRun_TransitionRemovesBeforeAttach(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true), item("b", false, true)))
	a, b := doc.Find("#a"), doc.Find("#b")
	r, rec := startRun(t, doc)
	waitDecorated(t, r, a)

	doc.Batch(func() {
		require.NoError(t, doc.RemoveAttr(a, "is-active"))
		require.NoError(t, doc.SetAttr(b, "is-active", ""))
	})
	waitDecorated(t, r, b)

	want := []string{
		"attached:" + itoa(a),
		"removed:" + itoa(a),
		"attached:" + itoa(b),
	}
	if diff := cmp.Diff(want, rec.lifecycle()); diff != "" {
		t.Errorf("lifecycle mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, doc.Count(a, "#"+mountID))
	assert.Equal(t, 1, doc.Count(b, "#"+mountID))
}

func TestRun_RepeatedActivationIsIgnored(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true), item("b", false, true)))
	a := doc.Find("#a")
	r, rec := startRun(t, doc)
	waitDecorated(t, r, a)

	for i := 0; i < 5; i++ {
		doc.Batch(func() { require.NoError(t, doc.SetAttr(a, "is-active", "")) })
		time.Sleep(2 * tick)
	}
	snapshot(r)

	assert.Equal(t, 1, rec.count(engine.EventActiveChanged))
	assert.Equal(t, 1, rec.count(engine.EventAttached))
	assert.Zero(t, rec.count(engine.EventRemoved))
	assert.Equal(t, 1, doc.Count(a, "#"+mountID))
}

func TestRun_ReadinessGatesDecoration(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, false)))
	a := doc.Find("#a")
	r, rec := startRun(t, doc)

	require.Eventually(t, func() bool { return snapshot(r).Active == a }, settle, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count(engine.EventAttached))

	_, err := doc.Append("#a", videoContainer)
	require.NoError(t, err)
	waitDecorated(t, r, a)
}

func TestRun_OverlappingTransitionsMountOnce(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, false), item("b", false, false)))
	a, b := doc.Find("#a"), doc.Find("#b")
	r, rec := startRun(t, doc)
	require.Eventually(t, func() bool { return snapshot(r).Active == a }, settle, tick)

	doc.Batch(func() {
		require.NoError(t, doc.RemoveAttr(a, "is-active"))
		require.NoError(t, doc.SetAttr(b, "is-active", ""))
	})
	require.Eventually(t, func() bool { return snapshot(r).Active == b }, settle, tick)

	doc.Batch(func() {
		require.NoError(t, doc.RemoveAttr(b, "is-active"))
		require.NoError(t, doc.SetAttr(a, "is-active", ""))
	})
	require.Eventually(t, func() bool { return snapshot(r).Active == a }, settle, tick)

	_, err := doc.Append("#b", videoContainer)
	require.NoError(t, err)
	_, err = doc.Append("#a", videoContainer)
	require.NoError(t, err)

	waitDecorated(t, r, a)
	time.Sleep(20 * time.Millisecond)
	snapshot(r)

	assert.Equal(t, 1, rec.count(engine.EventAttached))
	assert.Equal(t, 1, doc.Count(a, "#"+mountID))
	assert.Equal(t, 0, doc.Count(b, "#"+mountID))
}

func TestRun_ReusesExistingMount(t *testing.T) {
	markup := page(`<div class="reel-video-in-sequence" id="a" is-active>` +
		`<div id="overlay"><div id="` + mountID + `"></div></div>` + videoContainer + `</div>`)
	doc := memdom.MustParse(shortsURL, markup)
	a := doc.Find("#a")
	r, rec := startRun(t, doc)
	waitDecorated(t, r, a)

	events := rec.all()
	var attached engine.Event
	for _, ev := range events {
		if ev.Type == engine.EventAttached {
			attached = ev
		}
	}
	assert.True(t, attached.Reuse)
	assert.Equal(t, doc.Find("#"+mountID), attached.Mount)
	assert.Equal(t, 1, doc.Count(a, "#"+mountID))
}

func TestRun_SecondRunReusesFirstRunsMount(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true)))
	a := doc.Find("#a")
	first, _ := startRun(t, doc)
	waitDecorated(t, first, a)

	second, rec := startRun(t, doc)
	waitDecorated(t, second, a)

	assert.Equal(t, 1, doc.Count(a, "#"+mountID))
	require.Equal(t, 1, rec.count(engine.EventAttached))
	for _, ev := range rec.all() {
		if ev.Type == engine.EventAttached {
			assert.True(t, ev.Reuse)
		}
	}
}

func TestRun_PointerSeeksClampToTrack(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true)))
	a := doc.Find("#a")
	r, _ := startRun(t, doc)
	waitDecorated(t, r, a)

	video, err := doc.VideoAt(doc.Find("#a video"))
	require.NoError(t, err)
	video.SetTime(0, 60)
	track := doc.TrackAt(doc.Find("#a #overlay"), mountID)
	require.NotNil(t, track)

	for _, ev := range []dom.PointerEvent{
		{Phase: dom.PointerDown, Offset: -10, Width: 100},
		{Phase: dom.PointerMove, Offset: 150, Width: 100},
		{Phase: dom.PointerMove, Offset: 50, Width: 100},
		{Phase: dom.PointerUp, Offset: 100, Width: 100},
		{Phase: dom.PointerMove, Offset: 20, Width: 100}, // released: ignored
	} {
		track.Dispatch(ev)
	}
	snapshot(r)

	if diff := cmp.Diff([]float64{0, 60, 30, 60}, video.Seeks()); diff != "" {
		t.Errorf("seeks mismatch (-want +got):\n%s", diff)
	}
	snapshot(r)
	fill, _ := track.Fill()
	assert.InDelta(t, 1.0, fill, 1e-9)
}

func TestRun_PointerWithoutDurationOnlyMovesFill(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true)))
	a := doc.Find("#a")
	r, _ := startRun(t, doc)
	waitDecorated(t, r, a)

	video, err := doc.VideoAt(doc.Find("#a video"))
	require.NoError(t, err)
	track := doc.TrackAt(doc.Find("#a #overlay"), mountID)
	require.NotNil(t, track)

	track.Dispatch(dom.PointerEvent{Phase: dom.PointerDown, Offset: 25})
	snapshot(r)

	assert.Empty(t, video.Seeks())
	fill, _ := track.Fill()
	assert.InDelta(t, 0.25, fill, 1e-9)
}

func TestRun_FillFollowsPlaybackAndKeepsLastOnNaN(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true)))
	a := doc.Find("#a")
	r, _ := startRun(t, doc)
	waitDecorated(t, r, a)

	video, err := doc.VideoAt(doc.Find("#a video"))
	require.NoError(t, err)
	track := doc.TrackAt(doc.Find("#a #overlay"), mountID)
	require.NotNil(t, track)

	video.SetTime(15, 60)
	snapshot(r)
	fill, updates := track.Fill()
	assert.InDelta(t, 0.25, fill, 1e-9)

	video.SetTime(20, math.NaN())
	snapshot(r)
	fill, after := track.Fill()
	assert.InDelta(t, 0.25, fill, 1e-9)
	assert.Equal(t, updates, after)

	video.SetTime(30, 60)
	snapshot(r)
	fill, _ = track.Fill()
	assert.InDelta(t, 0.5, fill, 1e-9)
}

func TestRun_TracksItemSubscriptions(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true), item("b", false, true), item("c", false, true)))
	a, b, c := doc.Find("#a"), doc.Find("#b"), doc.Find("#c")
	r, _ := startRun(t, doc)
	waitDecorated(t, r, a)

	for _, id := range []dom.NodeID{a, b, c} {
		assert.Equal(t, 1, doc.ObserverCount(id))
	}

	doc.Batch(func() {
		n, err := doc.RemoveMatching("#c")
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
	require.Eventually(t, func() bool { return len(snapshot(r).Items) == 2 }, settle, tick)

	assert.Equal(t, 0, doc.ObserverCount(c))
	assert.Equal(t, 1, doc.ObserverCount(a))
	assert.Equal(t, 1, doc.ObserverCount(b))
}

func TestRun_StopReleasesEverything(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page(item("a", true, true)))
	a := doc.Find("#a")
	r, rec := startRun(t, doc)
	waitDecorated(t, r, a)

	video, err := doc.VideoAt(doc.Find("#a video"))
	require.NoError(t, err)
	require.Equal(t, 1, video.Listeners())

	r.Stop()

	assert.Equal(t, 0, doc.Count(a, "#"+mountID))
	assert.Equal(t, 0, doc.ObserverCount(doc.Find("#shorts-inner-container")))
	assert.Equal(t, 0, doc.ObserverCount(a))
	assert.Equal(t, 0, video.Listeners())
	lc := rec.lifecycle()
	require.NotEmpty(t, lc)
	assert.Equal(t, "removed:"+itoa(a), lc[len(lc)-1])

	_, err = r.Snapshot(t.Context())
	assert.ErrorIs(t, err, engine.ErrStopped)
}

func TestRun_StopBeforeStart(t *testing.T) {
	doc := memdom.MustParse(shortsURL, page())
	r := engine.NewRun(doc, shorts(t, doc), engine.Options{})
	r.Stop()
	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func itoa(id dom.NodeID) string {
	return strconv.FormatInt(int64(id), 10)
}
