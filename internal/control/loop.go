// Package control runs the fixed-rate loop that feeds controller input to the
// motion engine and engine output to the plotter.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/soar/axijoy/internal/gamepad"
	"github.com/soar/axijoy/internal/hub"
	"github.com/soar/axijoy/internal/motion"
)

// ErrEmergencyStop is returned by Run after the stop buttons were pressed.
var ErrEmergencyStop = errors.New("emergency stop")

// Source delivers controller events. Poll must not block.
type Source interface {
	Poll() []gamepad.Event
	Rumble(low, high float64, d time.Duration)
}

// Sink accepts plotter commands. Each call blocks until the command is
// accepted or fails.
type Sink interface {
	EnableMotors() error
	DisableMotors() error
	PenDown() error
	PenUp() error
	Move(cmd motion.MotionCommand) error
}

// Publisher receives one telemetry frame per completed tick. It must not block.
type Publisher interface {
	Publish(f hub.Frame)
}

// Loop owns the engine and the last known controller state for the lifetime
// of one session.
type Loop struct {
	engine *motion.Engine
	source Source
	sink   Sink
	pub    Publisher
	snap   gamepad.Snapshot
	seq    int64

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// New creates a loop. pub may be nil. rest is the controller state assumed
// until the source reports otherwise.
func New(engine *motion.Engine, source Source, sink Sink, pub Publisher, rest gamepad.Snapshot) *Loop {
	return &Loop{
		engine: engine,
		source: source,
		sink:   sink,
		pub:    pub,
		snap:   rest,
		Now:    time.Now,
		Sleep:  time.Sleep,
	}
}

// Run enables the motors, raises the pen and runs ticks until ctx is done,
// the stop buttons are pressed, or the plotter rejects a command. Every exit
// after startup disables the motors first. Run returns nil when ctx ends,
// ErrEmergencyStop on an emergency stop, and the sink's error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.sink.EnableMotors(); err != nil {
		return fmt.Errorf("enable motors: %w", err)
	}
	if err := l.sink.PenUp(); err != nil {
		return l.shutdown(fmt.Errorf("raise pen: %w", err))
	}
	log.Println("Motors enabled")

	// Short rumble to tell the user everything is ready.
	l.source.Rumble(0, 1, 200*time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return l.shutdown(nil)
		default:
		}

		for _, ev := range l.source.Poll() {
			l.snap.Apply(ev)
		}

		out, ok := l.engine.Tick(l.snap, l.Now())
		if !ok {
			if wait := l.engine.NextTick().Sub(l.Now()); wait > 0 {
				l.Sleep(wait)
			}
			continue
		}

		if err := l.apply(out); err != nil {
			return l.shutdown(err)
		}
	}
}

func (l *Loop) apply(out motion.Output) error {
	event := ""
	switch out.Pen {
	case motion.PenDown:
		if err := l.sink.PenDown(); err != nil {
			return fmt.Errorf("pen down: %w", err)
		}
		event = hub.EventPenDown
	case motion.PenUp:
		if err := l.sink.PenUp(); err != nil {
			return fmt.Errorf("pen up: %w", err)
		}
		event = hub.EventPenUp
	}
	if out.Rumble {
		l.source.Rumble(0, 0.1, 50*time.Millisecond)
	}

	if out.Stop {
		log.Println("Emergency stop requested")
		l.publish(hub.EventStop, motion.MotionCommand{})
		return ErrEmergencyStop
	}

	if err := l.sink.Move(*out.Move); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	l.publish(event, *out.Move)
	return nil
}

func (l *Loop) publish(event string, cmd motion.MotionCommand) {
	if l.pub == nil {
		return
	}
	l.seq++
	l.pub.Publish(hub.Frame{
		Seq:      l.seq,
		Event:    event,
		Velocity: l.engine.Velocity(),
		Command:  cmd,
		PenDown:  l.engine.PenDown(),
	})
}

func (l *Loop) shutdown(cause error) error {
	if err := l.sink.DisableMotors(); err != nil {
		return errors.Join(cause, fmt.Errorf("disable motors: %w", err))
	}
	log.Println("Motors disabled")
	return cause
}
