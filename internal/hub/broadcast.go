package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	fullSyncInterval = 5 * time.Second
	deltaCountSync   = 100
	frameBuffer      = 64
)

// Broadcaster receives frames from the control loop and forwards them to the
// hub at a bounded rate. Pen and stop events are forwarded immediately.
type Broadcaster struct {
	hub      *Hub
	frames   chan Frame
	interval time.Duration

	mu         sync.Mutex
	latest     Frame
	lastSent   Frame
	haveLatest bool
	seq        int64
	deltaCount int64
}

// NewBroadcaster creates a broadcaster sending at most rateHz deltas per second.
func NewBroadcaster(h *Hub, rateHz float64) *Broadcaster {
	return &Broadcaster{
		hub:      h,
		frames:   make(chan Frame, frameBuffer),
		interval: time.Duration(float64(time.Second) / rateHz),
	}
}

// Publish offers a frame without blocking. Frames are dropped when the
// broadcaster falls behind.
func (b *Broadcaster) Publish(f Frame) {
	select {
	case b.frames <- f:
	default:
	}
}

// Run starts the broadcaster loop until ctx is done. Should be run in a goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	rate := time.NewTicker(b.interval)
	defer rate.Stop()
	full := time.NewTicker(fullSyncInterval)
	defer full.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-b.frames:
			b.handle(f)
		case <-rate.C:
			b.flush()
		case <-full.C:
			b.syncAll()
		}
	}
}

// SendFull sends the latest frame to one client, typically a new one.
// Clients the hub has already dropped are skipped.
func (b *Broadcaster) SendFull(c *Client) {
	b.mu.Lock()
	b.seq++
	latest := b.latest
	msg := NewFullMessage(b.seq, &latest)
	b.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling full message: %v", err)
		return
	}
	b.hub.SendTo(c, data)
}

func (b *Broadcaster) handle(f Frame) {
	b.mu.Lock()
	b.latest = f
	b.haveLatest = true
	if f.Event == "" {
		b.mu.Unlock()
		return
	}
	b.seq++
	msg := NewEventMessage(b.seq, f.Event, &f)
	b.lastSent = f
	b.mu.Unlock()

	b.send(msg)
}

func (b *Broadcaster) flush() {
	b.mu.Lock()
	if !b.haveLatest {
		b.mu.Unlock()
		return
	}
	latest := b.latest
	delta := ComputeDelta(b.lastSent, latest)
	if delta.IsEmpty() {
		b.mu.Unlock()
		return
	}

	b.seq++
	b.deltaCount++
	b.lastSent = latest
	var msg *WSMessage
	if b.deltaCount >= deltaCountSync {
		b.deltaCount = 0
		msg = NewFullMessage(b.seq, &latest)
	} else {
		msg = NewDeltaMessage(b.seq, delta)
	}
	b.mu.Unlock()

	b.send(msg)
}

func (b *Broadcaster) syncAll() {
	b.mu.Lock()
	if !b.haveLatest {
		b.mu.Unlock()
		return
	}
	b.seq++
	latest := b.latest
	b.lastSent = latest
	msg := NewFullMessage(b.seq, &latest)
	b.mu.Unlock()

	b.send(msg)
}

func (b *Broadcaster) send(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling %s message: %v", msg.Type, err)
		return
	}
	b.hub.Broadcast(data)
}
