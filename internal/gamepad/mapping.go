package gamepad

import (
	"fmt"
	"math"
)

// Range is a closed interval of axis values, Lo..Hi.
type Range struct {
	Lo float64
	Hi float64
}

// Validate reports whether r can be used as the source range of MapRange.
func (r Range) Validate() error {
	if r.Lo == r.Hi || math.IsNaN(r.Lo) || math.IsNaN(r.Hi) {
		return fmt.Errorf("degenerate range [%g, %g]", r.Lo, r.Hi)
	}
	return nil
}

// MapRange linearly remaps v from src onto dst. src must have been validated.
func MapRange(src, dst Range, v float64) float64 {
	return dst.Lo + (v-src.Lo)*(dst.Hi-dst.Lo)/(src.Hi-src.Lo)
}

// FullRange is the span of every axis reported to the engine.
var FullRange = Range{Lo: -1, Hi: 1}

// Normalize zeroes small deflections and stretches the rest back to full scale,
// so that (deadzone, 1] maps onto (0, 1] and [-1, -deadzone) onto [-1, 0).
// deadzone must lie strictly between 0 and 1.
func Normalize(raw, deadzone float64) float64 {
	switch {
	case raw > deadzone:
		return MapRange(Range{deadzone, 1}, Range{0, 1}, raw)
	case raw < -deadzone:
		return MapRange(Range{-1, -deadzone}, Range{-1, 0}, raw)
	default:
		return 0
	}
}

// AxisFromRaw converts a raw SDL axis value (-32768..32767) to -1.0..1.0.
func AxisFromRaw(raw int16) float64 {
	v := float64(raw) / math.MaxInt16
	if v < -1.0 {
		v = -1.0
	}
	return v
}

// Bindings names which physical axes and buttons drive each control.
type Bindings struct {
	StickX     int    `mapstructure:"stick_x"`
	StickY     int    `mapstructure:"stick_y"`
	SlideAxis  int    `mapstructure:"slide_axis"`
	BoostAxis  int    `mapstructure:"boost_axis"`
	PenButton  int    `mapstructure:"pen_button"`
	StopButton [2]int `mapstructure:"stop_buttons"`
}

// DefaultBindings is the layout of an Xbox-style pad as SDL reports it:
// left stick on axes 0/1, L2 on 2, R2 on 5, A is pen, Select+Start stops.
func DefaultBindings() Bindings {
	return Bindings{
		StickX:     0,
		StickY:     1,
		SlideAxis:  2,
		BoostAxis:  5,
		PenButton:  0,
		StopButton: [2]int{6, 7},
	}
}

// Validate checks every index is addressable by a Snapshot.
func (b Bindings) Validate() error {
	for name, idx := range map[string]int{
		"stick_x":    b.StickX,
		"stick_y":    b.StickY,
		"slide_axis": b.SlideAxis,
		"boost_axis": b.BoostAxis,
	} {
		if idx < 0 || idx >= NumAxes {
			return fmt.Errorf("%s: axis index %d out of range [0, %d)", name, idx, NumAxes)
		}
	}
	for _, idx := range []int{b.PenButton, b.StopButton[0], b.StopButton[1]} {
		if idx < 0 || idx >= NumButtons {
			return fmt.Errorf("button index %d out of range [0, %d)", idx, NumButtons)
		}
	}
	if b.StopButton[0] == b.StopButton[1] {
		return fmt.Errorf("stop buttons must differ, both are %d", b.StopButton[0])
	}
	return nil
}
