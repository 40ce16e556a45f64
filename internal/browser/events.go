package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"reelbar/internal/dom"
)

// Bridge event kinds.
const (
	eventMutation = "mutation"
	eventPointer  = "pointer"
	eventMedia    = "media"
)

// bridgeEvent is one entry of the page-side event buffer.
type bridgeEvent struct {
	Kind    string         `json:"kind"`
	Sub     int64          `json:"sub"`
	Records []dom.Mutation `json:"records,omitempty"`

	Phase  string  `json:"phase,omitempty"`
	Offset float64 `json:"offset,omitempty"`
	Width  float64 `json:"width,omitempty"`

	Current  float64  `json:"t,omitempty"`
	Duration *float64 `json:"d"`
}

func (e bridgeEvent) pointer() dom.PointerEvent {
	return dom.PointerEvent{Phase: e.Phase, Offset: e.Offset, Width: e.Width}
}

func (e bridgeEvent) media() dom.MediaState {
	return mediaState(e.Current, e.Duration)
}

// mediaState maps the bridge's null duration (no metadata, or non-finite) to NaN.
func mediaState(current float64, duration *float64) dom.MediaState {
	d := math.NaN()
	if duration != nil {
		d = *duration
	}
	return dom.MediaState{CurrentTime: current, Duration: d}
}

func decodeEvents(raw []byte) ([]bridgeEvent, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var events []bridgeEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode bridge events: %w", err)
	}
	return events, nil
}

// callResult is the envelope callJS returns.
type callResult struct {
	Missing bool            `json:"missing"`
	Error   string          `json:"error"`
	Value   json.RawMessage `json:"value"`
}

var errBridgeMissing = errors.New("browser: bridge not installed")

// decodeCall unwraps a callJS envelope into out. A "detached" throw becomes
// dom.ErrDetached.
func decodeCall(op string, raw []byte, out interface{}) error {
	var res callResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("bridge %s: decode: %w", op, err)
	}
	switch {
	case res.Missing:
		return errBridgeMissing
	case res.Error == "detached":
		return dom.ErrDetached
	case res.Error != "":
		return fmt.Errorf("bridge %s: %s", op, res.Error)
	}
	if out == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("bridge %s: decode value: %w", op, err)
	}
	return nil
}
