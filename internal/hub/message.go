package hub

import (
	"math"
	"time"

	"github.com/soar/axijoy/internal/motion"
)

// Event names carried by "event" messages.
const (
	EventPenDown = "pen_down"
	EventPenUp   = "pen_up"
	EventStop    = "stop"
)

// Frame is the plotter state after one tick.
type Frame struct {
	Seq      int64                `json:"seq"`
	Event    string               `json:"event,omitempty"`
	Velocity motion.Velocity      `json:"velocity"`
	Command  motion.MotionCommand `json:"command"`
	PenDown  bool                 `json:"penDown"`
}

// FrameDelta holds only the fields that changed between two frames.
type FrameDelta struct {
	Velocity *motion.Velocity      `json:"velocity,omitempty"`
	Command  *motion.MotionCommand `json:"command,omitempty"`
	PenDown  *bool                 `json:"penDown,omitempty"`
}

func (d *FrameDelta) IsEmpty() bool {
	return d.Velocity == nil && d.Command == nil && d.PenDown == nil
}

const velocityThreshold = 0.01

func velocityEqual(a, b motion.Velocity) bool {
	return math.Abs(a.A-b.A) < velocityThreshold && math.Abs(a.B-b.B) < velocityThreshold
}

func ComputeDelta(old, new_ Frame) *FrameDelta {
	d := &FrameDelta{}

	if !velocityEqual(old.Velocity, new_.Velocity) {
		d.Velocity = &new_.Velocity
	}
	if old.Command != new_.Command {
		d.Command = &new_.Command
	}
	if old.PenDown != new_.PenDown {
		d.PenDown = &new_.PenDown
	}
	return d
}

// WSMessage represents a WebSocket message sent from server to client.
type WSMessage struct {
	Type      string      `json:"type"`              // "full", "delta" or "event"
	Seq       int64       `json:"seq"`               // Sequence number for ordering
	Timestamp int64       `json:"timestamp"`         // Unix timestamp in milliseconds
	Event     string      `json:"event,omitempty"`   // Event name for type "event"
	Data      *Frame      `json:"data,omitempty"`    // Full frame for type "full" or "event"
	Changes   *FrameDelta `json:"changes,omitempty"` // Changed fields for type "delta"
}

// NewFullMessage creates a "full" type message containing a complete frame.
func NewFullMessage(seq int64, f *Frame) *WSMessage {
	return &WSMessage{
		Type:      "full",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Data:      f,
	}
}

// NewDeltaMessage creates a "delta" type message containing only changed fields.
func NewDeltaMessage(seq int64, changes *FrameDelta) *WSMessage {
	return &WSMessage{
		Type:      "delta",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Changes:   changes,
	}
}

// NewEventMessage creates an "event" type message for pen changes and stops.
func NewEventMessage(seq int64, event string, f *Frame) *WSMessage {
	return &WSMessage{
		Type:      "event",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Event:     event,
		Data:      f,
	}
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type string `json:"type"` // "sync" requests a full frame
}
