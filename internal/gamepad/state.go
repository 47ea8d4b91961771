package gamepad

const (
	NumAxes    = 6
	NumButtons = 16
	NumHats    = 1
)

const (
	hatUp    uint8 = 0x01
	hatRight uint8 = 0x02
	hatDown  uint8 = 0x04
	hatLeft  uint8 = 0x08
)

// Event is one change reported by the input source. The concrete types are
// AxisEvent, ButtonEvent and HatEvent.
type Event interface {
	isEvent()
}

// AxisEvent reports a new position of an analog axis, -1..1.
type AxisEvent struct {
	Index int
	Value float64
}

// ButtonEvent reports a button press or release.
type ButtonEvent struct {
	Index   int
	Pressed bool
}

// HatEvent reports a new D-pad position as an SDL hat bitmask.
type HatEvent struct {
	Index int
	Value uint8
}

func (AxisEvent) isEvent()   {}
func (ButtonEvent) isEvent() {}
func (HatEvent) isEvent()    {}

// Hat is the decoded D-pad direction: X is -1 (left) / 1 (right), Y is 1 (up) / -1 (down).
type Hat struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// HatFromMask decodes an SDL hat bitmask.
func HatFromMask(mask uint8) Hat {
	var h Hat
	if mask&hatLeft != 0 {
		h.X--
	}
	if mask&hatRight != 0 {
		h.X++
	}
	if mask&hatUp != 0 {
		h.Y++
	}
	if mask&hatDown != 0 {
		h.Y--
	}
	return h
}

// Snapshot is the last known controller state. It is a value type; a copy
// taken at the start of a tick is not affected by later events.
type Snapshot struct {
	Axes    [NumAxes]float64 `json:"axes"`
	Buttons [NumButtons]bool `json:"buttons"`
	Hats    [NumHats]Hat     `json:"hats"`
}

// NewSnapshot returns a controller at rest: sticks centred and the
// bound triggers released, which SDL reports as -1.
func NewSnapshot(b Bindings) Snapshot {
	var s Snapshot
	s.Axes[b.SlideAxis] = -1
	s.Axes[b.BoostAxis] = -1
	return s
}

// Apply folds ev into the snapshot. Events for indices the snapshot does not
// track are dropped.
func (s *Snapshot) Apply(ev Event) {
	switch e := ev.(type) {
	case AxisEvent:
		if e.Index >= 0 && e.Index < NumAxes {
			s.Axes[e.Index] = clampUnit(e.Value)
		}
	case ButtonEvent:
		if e.Index >= 0 && e.Index < NumButtons {
			s.Buttons[e.Index] = e.Pressed
		}
	case HatEvent:
		if e.Index >= 0 && e.Index < NumHats {
			s.Hats[e.Index] = HatFromMask(e.Value)
		}
	}
}

// Pressed reports whether button i is held. Unknown buttons read as released.
func (s *Snapshot) Pressed(i int) bool {
	if i < 0 || i >= NumButtons {
		return false
	}
	return s.Buttons[i]
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
