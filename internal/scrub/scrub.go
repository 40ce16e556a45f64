// Package scrub maps pointer positions on a progress track to media positions and back.
package scrub

import "math"

// Fraction converts a pointer offset on a track of the given width into a position
// in [0, 1]. Offsets outside the track clamp to its ends.
func Fraction(offset, width float64) float64 {
	if width <= 0 || math.IsNaN(offset) || math.IsNaN(width) {
		return 0
	}
	return math.Max(0, math.Min(1, offset/width))
}

// SeekTime is the media position for a track fraction, clamped to [0, duration].
func SeekTime(fraction, duration float64) float64 {
	if math.IsNaN(fraction) {
		return 0
	}
	return math.Max(0, math.Min(1, fraction)) * duration
}

// Fill is the played fraction for a playback position. ok is false while the
// duration is unknown (NaN, infinite or not positive); callers keep their last fill.
func Fill(current, duration float64) (fraction float64, ok bool) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 || math.IsNaN(current) {
		return 0, false
	}
	return math.Max(0, math.Min(1, current/duration)), true
}

// Drag tracks a press-move-release gesture over a track.
type Drag struct {
	pressed bool
}

// Dragging reports whether a press is in progress.
func (d *Drag) Dragging() bool { return d.pressed }

// Press starts a drag and returns the seek fraction at the press point.
func (d *Drag) Press(offset, width float64) float64 {
	d.pressed = true
	return Fraction(offset, width)
}

// Move returns the seek fraction while pressed; ok is false otherwise.
func (d *Drag) Move(offset, width float64) (fraction float64, ok bool) {
	if !d.pressed {
		return 0, false
	}
	return Fraction(offset, width), true
}

// Release ends the drag.
func (d *Drag) Release() {
	d.pressed = false
}
