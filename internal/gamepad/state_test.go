package gamepad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSnapshotAtRest(t *testing.T) {
	s := NewSnapshot(DefaultBindings())
	assert.Equal(t, [NumAxes]float64{0, 0, -1, 0, 0, -1}, s.Axes)
	assert.False(t, s.Pressed(0))
}

func TestSnapshotApply(t *testing.T) {
	s := NewSnapshot(DefaultBindings())

	s.Apply(AxisEvent{Index: 1, Value: 0.4})
	s.Apply(ButtonEvent{Index: 6, Pressed: true})
	s.Apply(HatEvent{Index: 0, Value: hatUp | hatLeft})

	assert.Equal(t, 0.4, s.Axes[1])
	assert.True(t, s.Pressed(6))
	assert.Equal(t, Hat{X: -1, Y: 1}, s.Hats[0])

	s.Apply(ButtonEvent{Index: 6, Pressed: false})
	assert.False(t, s.Pressed(6))
}

func TestSnapshotRetainsWithoutEvents(t *testing.T) {
	s := NewSnapshot(DefaultBindings())
	s.Apply(AxisEvent{Index: 0, Value: -0.7})
	before := s

	s.Apply(AxisEvent{Index: 3, Value: 0.1})
	assert.Equal(t, before.Axes[0], s.Axes[0])
}

func TestSnapshotIgnoresUnknownIndices(t *testing.T) {
	s := NewSnapshot(DefaultBindings())
	want := s

	s.Apply(AxisEvent{Index: NumAxes, Value: 1})
	s.Apply(AxisEvent{Index: -1, Value: 1})
	s.Apply(ButtonEvent{Index: NumButtons, Pressed: true})
	s.Apply(HatEvent{Index: 3, Value: hatDown})

	assert.Equal(t, want, s)
	assert.False(t, s.Pressed(NumButtons+4))
}

func TestSnapshotClampsAxes(t *testing.T) {
	var s Snapshot
	s.Apply(AxisEvent{Index: 0, Value: 1.5})
	s.Apply(AxisEvent{Index: 1, Value: -3})
	assert.Equal(t, 1.0, s.Axes[0])
	assert.Equal(t, -1.0, s.Axes[1])
}

func TestHatFromMask(t *testing.T) {
	tests := []struct {
		mask uint8
		want Hat
	}{
		{0, Hat{}},
		{hatUp, Hat{Y: 1}},
		{hatDown | hatRight, Hat{X: 1, Y: -1}},
		{hatLeft, Hat{X: -1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HatFromMask(tt.mask), "mask=0x%02X", tt.mask)
	}
}
