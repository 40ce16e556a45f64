package browser

import (
	"errors"
	"math"
	"testing"

	"reelbar/internal/dom"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvents(t *testing.T) {
	raw := []byte(`[
		{"kind":"mutation","sub":3,"records":[{"type":"attributes","attr":"is-active","target":17},{"type":"childList","attr":"","target":9}]},
		{"kind":"pointer","sub":4,"phase":"down","offset":12.5,"width":200},
		{"kind":"media","sub":5,"t":3.25,"d":null},
		{"kind":"media","sub":5,"t":4,"d":60}
	]`)

	events, err := decodeEvents(raw)
	require.NoError(t, err)
	require.Len(t, events, 4)

	want := []dom.Mutation{
		{Type: dom.MutationAttributes, AttributeName: "is-active", Target: 17},
		{Type: dom.MutationChildList, Target: 9},
	}
	if diff := cmp.Diff(want, events[0].Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, dom.PointerEvent{Phase: dom.PointerDown, Offset: 12.5, Width: 200}, events[1].pointer())

	noMeta := events[2].media()
	assert.Equal(t, 3.25, noMeta.CurrentTime)
	assert.True(t, math.IsNaN(noMeta.Duration))
	assert.False(t, noMeta.HasDuration())

	assert.Equal(t, dom.MediaState{CurrentTime: 4, Duration: 60}, events[3].media())
}

func TestDecodeEvents_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "[]"} {
		events, err := decodeEvents([]byte(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, events, raw)
	}
	_, err := decodeEvents([]byte(`{"kind":`))
	assert.Error(t, err)
}

func TestDecodeCall(t *testing.T) {
	var id dom.NodeID
	require.NoError(t, decodeCall("query", []byte(`{"value":1760000000000042}`), &id))
	assert.Equal(t, dom.NodeID(1760000000000042), id)

	var ids []dom.NodeID
	require.NoError(t, decodeCall("queryAll", []byte(`{"value":[1,2,3]}`), &ids))
	assert.Equal(t, []dom.NodeID{1, 2, 3}, ids)

	assert.NoError(t, decodeCall("remove", []byte(`{"value":true}`), nil))
	assert.NoError(t, decodeCall("unsubscribe", []byte(`{}`), &id))

	assert.True(t, errors.Is(decodeCall("query", []byte(`{"missing":true}`), &id), errBridgeMissing))
	assert.True(t, errors.Is(decodeCall("seek", []byte(`{"error":"detached"}`), nil), dom.ErrDetached))

	err := decodeCall("query", []byte(`{"error":"'##' is not a valid selector"}`), &id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge query")
	assert.False(t, errors.Is(err, dom.ErrDetached))

	assert.Error(t, decodeCall("query", []byte(`not json`), &id))
}
