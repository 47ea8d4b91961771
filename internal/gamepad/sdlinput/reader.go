// Package sdlinput reads a game controller through SDL3. It is kept apart from
// gamepad so that packages using only the input model do not load libSDL3.
package sdlinput

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/jupiterrider/purego-sdl3/sdl"

	"github.com/soar/axijoy/internal/gamepad"
)

// ErrNoController is returned by Open when no joystick is attached.
var ErrNoController = errors.New("no controller connected")

// Reader reads controller input through the SDL3 Joystick API.
//
// SDL must be driven from a single OS thread: Open, Poll, Rumble and Close
// have to be called from the same goroutine, locked with runtime.LockOSThread.
type Reader struct {
	joystick *sdl.Joystick
	id       sdl.JoystickID
	name     string
	rest     gamepad.Snapshot
	verbose  bool
	pending  []gamepad.Event
}

// NewReader creates a reader. rest is the state reported for a controller
// that goes away mid-session, so a held stick does not keep the plotter moving.
func NewReader(rest gamepad.Snapshot, verbose bool) *Reader {
	return &Reader{rest: rest, verbose: verbose}
}

// Open initializes the joystick subsystem and opens the first controller.
// The controller's current state is queued for the first Poll.
func (r *Reader) Open() error {
	if !sdl.Init(sdl.InitJoystick) {
		return fmt.Errorf("SDL init failed: %s", sdl.GetError())
	}
	log.Println("SDL3 Joystick subsystem initialized")

	for _, id := range sdl.GetJoysticks() {
		if r.open(id) {
			return nil
		}
	}
	sdl.Quit()
	return ErrNoController
}

// Name returns the name of the active controller.
func (r *Reader) Name() string {
	return r.name
}

// Poll drains the SDL event queue without blocking and returns the changes
// seen on the active controller since the last call.
func (r *Reader) Poll() []gamepad.Event {
	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventJoystickAdded:
			if r.joystick == nil {
				r.open(event.JDevice().Which)
			}

		case sdl.EventJoystickRemoved:
			if r.joystick != nil && event.JDevice().Which == r.id {
				log.Printf("Joystick disconnected: %s", r.name)
				sdl.CloseJoystick(r.joystick)
				r.joystick = nil
				r.queueSnapshot(r.rest)
			}

		case sdl.EventJoystickAxisMotion:
			ae := event.JAxis()
			if ae.Which != r.id {
				continue
			}
			r.pending = append(r.pending, gamepad.AxisEvent{Index: int(ae.Axis), Value: gamepad.AxisFromRaw(ae.Value)})

		case sdl.EventJoystickButtonDown, sdl.EventJoystickButtonUp:
			be := event.JButton()
			if be.Which != r.id {
				continue
			}
			pressed := event.Type() == sdl.EventJoystickButtonDown
			if r.verbose {
				log.Printf("[DEBUG] Button index=%d pressed=%t", be.Button, pressed)
			}
			r.pending = append(r.pending, gamepad.ButtonEvent{Index: int(be.Button), Pressed: pressed})

		case sdl.EventJoystickHatMotion:
			he := event.JHat()
			if he.Which != r.id {
				continue
			}
			if r.verbose {
				log.Printf("[DEBUG] Hat index=%d value=0x%02X", he.Hat, he.Value)
			}
			r.pending = append(r.pending, gamepad.HatEvent{Index: int(he.Hat), Value: he.Value})
		}
	}

	out := r.pending
	r.pending = nil
	return out
}

// Rumble plays a rumble effect at the given strengths (0..1). It is best
// effort: controllers without rumble are silently ignored.
func (r *Reader) Rumble(low, high float64, d time.Duration) {
	if r.joystick == nil {
		return
	}
	if !sdl.RumbleJoystick(r.joystick, rumbleLevel(low), rumbleLevel(high), uint32(d.Milliseconds())) && r.verbose {
		log.Printf("[DEBUG] Rumble failed: %s", sdl.GetError())
	}
}

// Close releases the controller and shuts SDL down.
func (r *Reader) Close() {
	if r.joystick != nil {
		sdl.CloseJoystick(r.joystick)
		r.joystick = nil
	}
	sdl.Quit()
}

func (r *Reader) open(instanceID sdl.JoystickID) bool {
	js := sdl.OpenJoystick(instanceID)
	if js == nil {
		log.Printf("Failed to open joystick %d: %s", instanceID, sdl.GetError())
		return false
	}

	r.joystick = js
	r.id = sdl.GetJoystickID(js)
	r.name = sdl.GetJoystickName(js)

	numAxes := sdl.GetNumJoystickAxes(js)
	numButtons := sdl.GetNumJoystickButtons(js)
	numHats := sdl.GetNumJoystickHats(js)
	log.Printf("Joystick connected: %s (VID=%04X PID=%04X) axes=%d buttons=%d hats=%d",
		r.name, sdl.GetJoystickVendor(js), sdl.GetJoystickProduct(js), numAxes, numButtons, numHats)

	// Seed the current state; SDL only reports changes from here on.
	for i := int32(0); i < numAxes && i < gamepad.NumAxes; i++ {
		r.pending = append(r.pending, gamepad.AxisEvent{Index: int(i), Value: gamepad.AxisFromRaw(sdl.GetJoystickAxis(js, i))})
	}
	for i := int32(0); i < numButtons && i < gamepad.NumButtons; i++ {
		r.pending = append(r.pending, gamepad.ButtonEvent{Index: int(i), Pressed: sdl.GetJoystickButton(js, i)})
	}
	for i := int32(0); i < numHats && i < gamepad.NumHats; i++ {
		r.pending = append(r.pending, gamepad.HatEvent{Index: int(i), Value: sdl.GetJoystickHat(js, i)})
	}
	return true
}

func (r *Reader) queueSnapshot(s gamepad.Snapshot) {
	for i, v := range s.Axes {
		r.pending = append(r.pending, gamepad.AxisEvent{Index: i, Value: v})
	}
	for i, p := range s.Buttons {
		r.pending = append(r.pending, gamepad.ButtonEvent{Index: i, Pressed: p})
	}
	for i := range s.Hats {
		r.pending = append(r.pending, gamepad.HatEvent{Index: i})
	}
}

func rumbleLevel(v float64) uint16 {
	return uint16(math.Round(math.Min(math.Abs(v), 1) * math.MaxUint16))
}
