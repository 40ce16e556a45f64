package memdom

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"reelbar/internal/dom"
	"reelbar/internal/poll"

	"gopkg.in/yaml.v3"
)

// Scenario ops.
const (
	OpLoad            = "load"
	OpAppend          = "append"
	OpRemove          = "remove"
	OpSetAttr         = "set_attr"
	OpRemoveAttr      = "remove_attr"
	OpFlush           = "flush"
	OpSleep           = "sleep"
	OpTime            = "time"
	OpPointer         = "pointer"
	OpNavigate        = "navigate"
	OpExpectDecorated = "expect_decorated"
)

const (
	defaultExpectWait = 2 * time.Second
	expectInterval    = 10 * time.Millisecond
)

// ErrExpectation is returned when an expect step does not hold in time.
var ErrExpectation = errors.New("memdom: expectation not met")

// Scenario is a scripted sequence of page changes replayed against a Document.
type Scenario struct {
	Name       string  `yaml:"name"`
	URL        string  `yaml:"url"`
	HTML       string  `yaml:"html"`
	MountID    string  `yaml:"mount_id"`
	TrackWidth float64 `yaml:"track_width"`
	Steps      []Step  `yaml:"steps"`
}

// Step is one scenario operation. Which fields apply depends on Op.
type Step struct {
	Op       string `yaml:"op"`
	Selector string `yaml:"selector"`
	HTML     string `yaml:"html"`
	Name     string `yaml:"name"`
	Value    string `yaml:"value"`
	URL      string `yaml:"url"`
	Wait     string `yaml:"wait"` // sleep length, or how long an expectation may take

	Current  float64  `yaml:"current"`
	Duration *float64 `yaml:"duration"` // nil means no metadata yet (NaN)

	Phase  string  `yaml:"phase"`
	Offset float64 `yaml:"offset"`
}

// Hooks connect a scenario to whatever is observing the document.
type Hooks struct {
	// Navigate is called after the document URL changes.
	Navigate func(ctx context.Context, url string) error
	// Decorated reports the item currently carrying the decoration.
	Decorated func(ctx context.Context) (dom.NodeID, error)
	// Step is called after each step completes.
	Step func(i int, s Step)
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks every step names a known op and carries what that op needs.
func (sc *Scenario) Validate() error {
	for i, s := range sc.Steps {
		var missing string
		switch s.Op {
		case OpLoad:
			if s.HTML == "" {
				missing = "html"
			}
		case OpAppend:
			if s.Selector == "" || s.HTML == "" {
				missing = "selector and html"
			}
		case OpRemove, OpTime:
			if s.Selector == "" {
				missing = "selector"
			}
		case OpSetAttr, OpRemoveAttr:
			if s.Selector == "" || s.Name == "" {
				missing = "selector and name"
			}
		case OpSleep:
			if s.Wait == "" {
				missing = "wait"
			}
		case OpPointer:
			if s.Selector == "" || s.Phase == "" {
				missing = "selector and phase"
			}
		case OpNavigate:
			if s.URL == "" {
				missing = "url"
			}
		case OpFlush, OpExpectDecorated:
		default:
			return fmt.Errorf("step %d: unknown op %q", i, s.Op)
		}
		if missing != "" {
			return fmt.Errorf("step %d (%s): requires %s", i, s.Op, missing)
		}
		if s.Wait != "" {
			if _, err := time.ParseDuration(s.Wait); err != nil {
				return fmt.Errorf("step %d (%s): wait: %w", i, s.Op, err)
			}
		}
	}
	return nil
}

// NewDocument builds the scenario's starting document.
func (sc *Scenario) NewDocument() (*Document, error) {
	markup := sc.HTML
	if markup == "" {
		markup = "<html><body></body></html>"
	}
	doc, err := Parse(sc.URL, markup)
	if err != nil {
		return nil, err
	}
	if sc.TrackWidth > 0 {
		doc.SetTrackWidth(sc.TrackWidth)
	}
	return doc, nil
}

// Run applies every step to doc in order, stopping at the first failure.
func (sc *Scenario) Run(ctx context.Context, doc *Document, hooks Hooks) error {
	for i, s := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sc.apply(ctx, doc, hooks, s); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, s.Op, err)
		}
		if hooks.Step != nil {
			hooks.Step(i, s)
		}
	}
	return nil
}

func (sc *Scenario) apply(ctx context.Context, doc *Document, hooks Hooks, s Step) error {
	switch s.Op {
	case OpLoad:
		return doc.Load(s.HTML)
	case OpAppend:
		_, err := doc.Append(s.Selector, s.HTML)
		return err
	case OpRemove:
		n, err := doc.RemoveMatching(s.Selector)
		if err == nil && n == 0 {
			err = fmt.Errorf("no node matches %q", s.Selector)
		}
		return err
	case OpSetAttr:
		return doc.SetAttrMatching(s.Selector, s.Name, s.Value)
	case OpRemoveAttr:
		return doc.RemoveAttrMatching(s.Selector, s.Name)
	case OpFlush:
		doc.Flush()
		return nil
	case OpSleep:
		return sleep(ctx, mustDuration(s.Wait, 0))
	case OpTime:
		video, err := doc.VideoAt(doc.Find(s.Selector))
		if err != nil {
			return err
		}
		duration := math.NaN()
		if s.Duration != nil {
			duration = *s.Duration
		}
		video.SetTime(s.Current, duration)
		return nil
	case OpPointer:
		track := doc.TrackAt(doc.Find(s.Selector), sc.mountID())
		if track == nil {
			return fmt.Errorf("no track mounted under %q", s.Selector)
		}
		track.Dispatch(dom.PointerEvent{Phase: s.Phase, Offset: s.Offset})
		return nil
	case OpNavigate:
		doc.SetURL(s.URL)
		if hooks.Navigate == nil {
			return nil
		}
		return hooks.Navigate(ctx, s.URL)
	case OpExpectDecorated:
		return sc.expectDecorated(ctx, doc, hooks, s)
	}
	return fmt.Errorf("unknown op %q", s.Op)
}

// expectDecorated waits until the decoration sits on the item matching the
// selector. An empty selector expects no decoration at all.
func (sc *Scenario) expectDecorated(ctx context.Context, doc *Document, hooks Hooks, s Step) error {
	if hooks.Decorated == nil {
		return errors.New("no decoration hook")
	}
	want := dom.None
	if s.Selector != "" {
		if want = doc.Find(s.Selector); want == dom.None {
			return fmt.Errorf("no node matches %q", s.Selector)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, mustDuration(s.Wait, defaultExpectWait))
	defer cancel()
	got := dom.None
	_, err := poll.Until(ctx, expectInterval, func(ctx context.Context) (dom.NodeID, bool) {
		id, err := hooks.Decorated(ctx)
		if err != nil {
			return dom.None, false
		}
		got = id
		return id, true
	}, func(id dom.NodeID) bool { return id == want })
	if err != nil {
		return fmt.Errorf("%w: decoration on %d, want %d (%s)", ErrExpectation, got, want, s.Selector)
	}
	if want != dom.None && doc.Count(want, "#"+sc.mountID()) != 1 {
		return fmt.Errorf("%w: %s carries %d mounts", ErrExpectation, s.Selector, doc.Count(want, "#"+sc.mountID()))
	}
	return nil
}

func (sc *Scenario) mountID() string {
	if sc.MountID == "" {
		return "reelbar-progress"
	}
	return sc.MountID
}

func mustDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
