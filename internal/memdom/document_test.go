package memdom

import (
	"context"
	"math"
	"testing"

	"reelbar/internal/dom"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `<html><body>
<div id="feed"><div class="item" id="a" is-active><span id="overlay"></span><video></video></div><div class="item" id="b"></div></div>
</body></html>`

func TestDocument_StableIDs(t *testing.T) {
	ctx := context.Background()
	doc := MustParse("https://example.test/", feed)

	first, err := doc.QuerySelector(ctx, "#a")
	require.NoError(t, err)
	require.NotEqual(t, dom.None, first)

	again, err := doc.QuerySelector(ctx, ".item[is-active]")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	all, err := doc.QuerySelectorAll(ctx, ".item")
	require.NoError(t, err)
	if diff := cmp.Diff([]dom.NodeID{first, doc.Find("#b")}, all); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	missing, err := doc.QuerySelector(ctx, "#nope")
	require.NoError(t, err)
	assert.Equal(t, dom.None, missing)

	_, err = doc.QuerySelector(ctx, "[[")
	assert.Error(t, err)
}

func TestDocument_DetachedNodes(t *testing.T) {
	ctx := context.Background()
	doc := MustParse("https://example.test/", feed)
	a := doc.Find("#a")

	n, err := doc.RemoveMatching("#a")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	within, err := doc.QueryWithin(ctx, a, "#overlay")
	require.NoError(t, err)
	assert.Equal(t, dom.None, within)

	has, err := doc.HasAttribute(ctx, a, "is-active")
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, doc.Remove(ctx, a), dom.ErrDetached)
	assert.ErrorIs(t, doc.SetAttr(a, "x", "y"), dom.ErrDetached)
	_, err = doc.Observe(ctx, a, dom.ObserveOptions{Attributes: true}, func([]dom.Mutation) {})
	assert.ErrorIs(t, err, dom.ErrDetached)
}

func TestDocument_FlushDeliversOneBatchPerObserver(t *testing.T) {
	ctx := context.Background()
	doc := MustParse("https://example.test/", feed)
	feedID, a := doc.Find("#feed"), doc.Find("#a")

	var structural [][]dom.Mutation
	_, err := doc.Observe(ctx, feedID, dom.ObserveOptions{ChildList: true}, func(b []dom.Mutation) {
		structural = append(structural, b)
	})
	require.NoError(t, err)

	var attrs [][]dom.Mutation
	sub, err := doc.Observe(ctx, a, dom.ObserveOptions{Attributes: true}, func(b []dom.Mutation) {
		attrs = append(attrs, b)
	})
	require.NoError(t, err)

	_, err = doc.Append("#feed", `<div class="item" id="c"></div>`)
	require.NoError(t, err)
	_, err = doc.Append("#feed", `<div class="item" id="d"></div>`)
	require.NoError(t, err)
	require.NoError(t, doc.RemoveAttr(a, "is-active"))
	require.NoError(t, doc.RemoveAttr(a, "is-active")) // already gone: no record
	require.NoError(t, doc.SetAttr(a, "is-active", ""))

	assert.Empty(t, structural, "nothing is delivered before Flush")
	doc.Flush()

	require.Len(t, structural, 1)
	assert.Len(t, structural[0], 2)
	require.Len(t, attrs, 1)
	want := []dom.Mutation{
		{Type: dom.MutationAttributes, AttributeName: "is-active", Target: a},
		{Type: dom.MutationAttributes, AttributeName: "is-active", Target: a},
	}
	if diff := cmp.Diff(want, attrs[0]); diff != "" {
		t.Errorf("attribute batch mismatch (-want +got):\n%s", diff)
	}

	sub.Cancel()
	sub.Cancel()
	require.NoError(t, doc.SetAttr(a, "is-active", "1"))
	doc.Flush()
	assert.Len(t, attrs, 1)
	assert.Equal(t, 0, doc.ObserverCount(a))
	assert.Equal(t, 1, doc.ObserverCount(feedID))
}

func TestDocument_MountAndFindTrack(t *testing.T) {
	ctx := context.Background()
	doc := MustParse("https://example.test/", feed)
	overlay := doc.Find("#overlay")

	found, err := doc.FindMounted(ctx, overlay, "bar")
	require.NoError(t, err)
	assert.Nil(t, found)

	track, err := doc.MountTrack(ctx, overlay, "bar")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Count(overlay, "#bar"))
	assert.Equal(t, 1, doc.Count(overlay, ".bar-fill"))

	found, err = doc.FindMounted(ctx, overlay, "bar")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, track.Node(), found.Node())

	require.NoError(t, track.SetFill(ctx, 0.4))
	fill, updates := doc.TrackAt(overlay, "bar").Fill()
	assert.InDelta(t, 0.4, fill, 1e-9)
	assert.Equal(t, 1, updates)

	require.NoError(t, doc.Remove(ctx, track.Node()))
	assert.Equal(t, 0, doc.Count(overlay, "#bar"))
	assert.Nil(t, doc.TrackAt(overlay, "bar"))
}

func TestTrack_DispatchFillsWidth(t *testing.T) {
	ctx := context.Background()
	doc := MustParse("https://example.test/", feed)
	doc.SetTrackWidth(320)
	track, err := doc.MountTrack(ctx, doc.Find("#overlay"), "bar")
	require.NoError(t, err)

	var got []dom.PointerEvent
	sub, err := track.OnPointer(func(ev dom.PointerEvent) { got = append(got, ev) })
	require.NoError(t, err)

	mem := doc.TrackAt(doc.Find("#overlay"), "bar")
	mem.Dispatch(dom.PointerEvent{Phase: dom.PointerDown, Offset: 10})
	mem.Dispatch(dom.PointerEvent{Phase: dom.PointerUp, Offset: 20, Width: 50})
	sub.Cancel()
	mem.Dispatch(dom.PointerEvent{Phase: dom.PointerDown})

	want := []dom.PointerEvent{
		{Phase: dom.PointerDown, Offset: 10, Width: 320},
		{Phase: dom.PointerUp, Offset: 20, Width: 50},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pointer events mismatch (-want +got):\n%s", diff)
	}
}

func TestVideo_SeekFiresTimeUpdate(t *testing.T) {
	ctx := context.Background()
	doc := MustParse("https://example.test/", feed)
	media, err := doc.Media(ctx, doc.Find("video"))
	require.NoError(t, err)

	s, err := media.State(ctx)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s.Duration))
	assert.False(t, s.HasDuration())

	var updates []dom.MediaState
	_, err = media.OnTimeUpdate(func(s dom.MediaState) { updates = append(updates, s) })
	require.NoError(t, err)

	video, err := doc.VideoAt(media.Node())
	require.NoError(t, err)
	video.SetTime(1, 30)
	require.NoError(t, media.Seek(ctx, 12))

	assert.Equal(t, []float64{12}, video.Seeks())
	require.Len(t, updates, 2)
	assert.Equal(t, dom.MediaState{CurrentTime: 12, Duration: 30}, updates[1])
	assert.Equal(t, 1, video.Listeners())
}

func TestDocument_MediaRejectsOtherElements(t *testing.T) {
	doc := MustParse("https://example.test/", feed)
	_, err := doc.Media(context.Background(), doc.Find("#overlay"))
	assert.ErrorIs(t, err, ErrNotMedia)
}

func TestDocument_LoadDetachesOldNodes(t *testing.T) {
	doc := MustParse("https://example.test/", feed)
	a := doc.Find("#a")

	require.NoError(t, doc.Load(`<html><body><p id="fresh"></p></body></html>`))

	assert.Equal(t, dom.None, doc.Find("#a"))
	assert.NotEqual(t, dom.None, doc.Find("#fresh"))
	assert.ErrorIs(t, doc.Remove(context.Background(), a), dom.ErrDetached)
	assert.Contains(t, doc.Render(), `id="fresh"`)
}
