package scrub

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeekTime_Clamps(t *testing.T) {
	const width, duration = 200.0, 60.0

	tests := []struct {
		name   string
		offset float64
		want   float64
	}{
		{"left edge", 0, 0},
		{"right edge", width, duration},
		{"middle", width / 2, duration / 2},
		{"before track", -35, 0},
		{"past track", width + 80, duration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SeekTime(Fraction(tt.offset, width), duration), 1e-9)
		})
	}
}

func TestSeekTime_ClampsFraction(t *testing.T) {
	assert.Equal(t, 0.0, SeekTime(-0.5, 60))
	assert.Equal(t, 60.0, SeekTime(1.5, 60))
	assert.Equal(t, 0.0, SeekTime(math.NaN(), 60))
}

func TestFraction_DegenerateWidth(t *testing.T) {
	assert.Equal(t, 0.0, Fraction(10, 0))
	assert.Equal(t, 0.0, Fraction(10, -5))
	assert.Equal(t, 0.0, Fraction(math.NaN(), 100))
}

func TestFill(t *testing.T) {
	f, ok := Fill(15, 60)
	assert.True(t, ok)
	assert.InDelta(t, 0.25, f, 1e-9)

	_, ok = Fill(15, math.NaN())
	assert.False(t, ok, "NaN duration must not produce a fill")

	_, ok = Fill(15, 0)
	assert.False(t, ok)

	_, ok = Fill(15, math.Inf(1))
	assert.False(t, ok)
}

func TestDrag(t *testing.T) {
	var d Drag

	_, ok := d.Move(50, 100)
	assert.False(t, ok, "move without press is ignored")

	assert.InDelta(t, 0.1, d.Press(10, 100), 1e-9)
	assert.True(t, d.Dragging())

	f, ok := d.Move(150, 100)
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	d.Release()
	assert.False(t, d.Dragging())
	_, ok = d.Move(20, 100)
	assert.False(t, ok)
}
