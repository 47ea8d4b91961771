// Package motion turns controller snapshots into plotter move commands.
//
// The engine keeps a velocity vector between ticks. Each tick the shaped stick
// deflection, scaled by the boost trigger, is blended with the previous
// velocity according to the slide trigger, clamped per axis to MaxSpeed and
// decayed by friction. The decayed value is both sent and carried into the
// next tick.
package motion

import (
	"time"

	"github.com/soar/axijoy/internal/config"
	"github.com/soar/axijoy/internal/gamepad"
)

// Velocity is the commanded velocity in device steps per command.
// A follows the stick's Y axis, B the inverted X axis.
type Velocity struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// MotionCommand is a relative move lasting DurationMS milliseconds.
type MotionCommand struct {
	DurationMS int `json:"duration"`
	DX         int `json:"dx"`
	DY         int `json:"dy"`
}

// PenAction is the pen command produced by a tick, if any.
type PenAction int

const (
	PenNone PenAction = iota
	PenDown
	PenUp
)

func (p PenAction) String() string {
	switch p {
	case PenDown:
		return "down"
	case PenUp:
		return "up"
	default:
		return "none"
	}
}

// Output is everything a completed tick asks the surrounding loop to do.
type Output struct {
	// Move is nil only when Stop is set.
	Move *MotionCommand
	Pen  PenAction
	// Rumble is set on the tick the pen goes down.
	Rumble bool
	// Stop requests an emergency stop. It is permanent.
	Stop bool
}

// Engine owns the velocity and pen state. It is not safe for concurrent use;
// the control loop is its only caller.
type Engine struct {
	cfg      config.Config
	bind     gamepad.Bindings
	maxSpeed float64
	interval time.Duration

	vel     Velocity
	penDown bool
	stopped bool
	last    time.Time
}

// New creates an engine at rest with the pen up. cfg must already be
// validated. The first tick is due one poll interval after now.
func New(cfg config.Config, now time.Time) *Engine {
	return &Engine{
		cfg:      cfg,
		bind:     cfg.Bindings,
		maxSpeed: cfg.MaxSpeed(),
		interval: cfg.PollInterval(),
		last:     now,
	}
}

// Velocity returns the velocity carried into the next tick.
func (e *Engine) Velocity() Velocity {
	return e.vel
}

// PenDown reports whether the pen is currently lowered.
func (e *Engine) PenDown() bool {
	return e.penDown
}

// Stopped reports whether an emergency stop has been seen.
func (e *Engine) Stopped() bool {
	return e.stopped
}

// NextTick returns the earliest time at which Tick will run.
func (e *Engine) NextTick() time.Time {
	return e.last.Add(e.interval)
}

// Tick runs one control step against the controller state in in. It returns
// false, and does nothing, when less than a poll interval has passed since
// the previous completed tick.
func (e *Engine) Tick(in gamepad.Snapshot, now time.Time) (Output, bool) {
	if now.Sub(e.last) < e.interval {
		return Output{}, false
	}
	e.last = now
	if e.stopped {
		return Output{Stop: true}, true
	}

	var out Output
	out.Pen, out.Rumble = e.updatePen(in.Pressed(e.bind.PenButton))

	if in.Pressed(e.bind.StopButton[0]) && in.Pressed(e.bind.StopButton[1]) {
		e.stopped = true
		out.Stop = true
		return out, true
	}

	cmd := e.move(in)
	out.Move = &cmd
	return out, true
}

func (e *Engine) updatePen(pressed bool) (PenAction, bool) {
	switch {
	case pressed && !e.penDown:
		e.penDown = true
		return PenDown, true
	case !pressed && e.penDown:
		e.penDown = false
		return PenUp, false
	}
	return PenNone, false
}

func (e *Engine) move(in gamepad.Snapshot) MotionCommand {
	x := gamepad.Normalize(in.Axes[e.bind.StickX], e.cfg.Deadzone)
	y := gamepad.Normalize(in.Axes[e.bind.StickY], e.cfg.Deadzone)

	speed := float64(e.cfg.BaseScale) *
		gamepad.MapRange(gamepad.FullRange, gamepad.Range{Lo: 1, Hi: e.cfg.BoostMultiplier}, in.Axes[e.bind.BoostAxis])
	slide := gamepad.MapRange(gamepad.FullRange, gamepad.Range{Lo: 0, Hi: 1}, in.Axes[e.bind.SlideAxis])

	a0 := y * speed
	b0 := x * -speed

	keep := 1 - slide*e.cfg.SlideFactor
	e.vel = Velocity{
		A: e.decay(a0*keep + e.vel.A*slide),
		B: e.decay(b0*keep + e.vel.B*slide),
	}

	return MotionCommand{
		DurationMS: e.cfg.CommandDuration(),
		DX:         int(e.vel.A),
		DY:         int(e.vel.B),
	}
}

func (e *Engine) decay(v float64) float64 {
	return clamp(v, e.maxSpeed) * e.cfg.Friction
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
