package memdom_test

import (
	"context"
	"os"
	"path/filepath"
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

func replayOptions() engine.Options {
	return engine.Options{
		ContainerInterval: 5 * time.Millisecond,
		ItemsInterval:     5 * time.Millisecond,
		ActiveInterval:    5 * time.Millisecond,
		ReadyInterval:     2 * time.Millisecond,
	}
}

func TestScenario_ShortsScroll(t *testing.T) {
	sc, err := memdom.LoadScenario(filepath.Join("testdata", "shorts_scroll.yaml"))
	require.NoError(t, err)
	doc, err := sc.NewDocument()
	require.NoError(t, err)

	sel, err := adapter.New(adapter.YouTubeShorts(), doc)
	require.NoError(t, err)
	sup := engine.NewSupervisor(doc, []engine.PageAdapter{sel}, replayOptions())
	defer sup.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = sup.Bootstrap(ctx, "")
	require.NoError(t, err)

	var steps []string
	err = sc.Run(ctx, doc, memdom.Hooks{
		Navigate: func(ctx context.Context, url string) error {
			_, err := sup.Handle(ctx, engine.Trigger{URL: url})
			return err
		},
		Decorated: sup.Decorated,
		Step:      func(_ int, s memdom.Step) { steps = append(steps, s.Op) },
	})
	require.NoError(t, err, doc.Render())
	assert.Len(t, steps, len(sc.Steps))
	assert.Empty(t, sup.Runs())

	video, err := doc.VideoAt(doc.Find("#r1 video"))
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{30, 60}, video.Seeks()); diff != "" {
		t.Errorf("seeks mismatch (-want +got):\n%s", diff)
	}
}

func TestScenario_ExpectationFails(t *testing.T) {
	sc := &memdom.Scenario{
		URL:  "https://example.test/",
		HTML: `<html><body><div id="x"></div></body></html>`,
		Steps: []memdom.Step{
			{Op: memdom.OpExpectDecorated, Selector: "#x", Wait: "30ms"},
		},
	}
	require.NoError(t, sc.Validate())
	doc, err := sc.NewDocument()
	require.NoError(t, err)

	err = sc.Run(context.Background(), doc, memdom.Hooks{
		Decorated: func(context.Context) (dom.NodeID, error) { return dom.None, nil },
	})
	assert.ErrorIs(t, err, memdom.ErrExpectation)
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name string
		step memdom.Step
		want string
	}{
		{"unknown op", memdom.Step{Op: "explode"}, `unknown op "explode"`},
		{"append without html", memdom.Step{Op: memdom.OpAppend, Selector: "#x"}, "requires selector and html"},
		{"sleep without wait", memdom.Step{Op: memdom.OpSleep}, "requires wait"},
		{"bad wait", memdom.Step{Op: memdom.OpSleep, Wait: "soon"}, "wait"},
		{"navigate without url", memdom.Step{Op: memdom.OpNavigate}, "requires url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &memdom.Scenario{Steps: []memdom.Step{tt.step}}
			err := sc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_RejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - op: teleport\n"), 0o644))

	_, err := memdom.LoadScenario(path)
	assert.ErrorContains(t, err, "teleport")

	_, err = memdom.LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScenario_TimeWithoutDurationIsNaN(t *testing.T) {
	sc := &memdom.Scenario{
		HTML:  `<html><body><video id="v"></video></body></html>`,
		Steps: []memdom.Step{{Op: memdom.OpTime, Selector: "#v", Current: 3}},
	}
	doc, err := sc.NewDocument()
	require.NoError(t, err)
	require.NoError(t, sc.Run(context.Background(), doc, memdom.Hooks{}))

	media, err := doc.Media(context.Background(), doc.Find("#v"))
	require.NoError(t, err)
	s, err := media.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.CurrentTime)
	assert.False(t, s.HasDuration())
}
