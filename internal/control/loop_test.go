package control

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soar/axijoy/internal/config"
	"github.com/soar/axijoy/internal/gamepad"
	"github.com/soar/axijoy/internal/hub"
	"github.com/soar/axijoy/internal/motion"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeSource hands out one batch of events per Poll call.
type fakeSource struct {
	batches [][]gamepad.Event
	polls   int
	rumbles []time.Duration
	onPoll  func(n int)
}

func (s *fakeSource) Poll() []gamepad.Event {
	s.polls++
	if s.onPoll != nil {
		s.onPoll(s.polls)
	}
	if len(s.batches) == 0 {
		return nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b
}

func (s *fakeSource) Rumble(low, high float64, d time.Duration) {
	s.rumbles = append(s.rumbles, d)
}

// recordingSink logs every command in EBB syntax.
type recordingSink struct {
	log     []string
	failOn  string
	failErr error
}

func (s *recordingSink) do(cmd string) error {
	s.log = append(s.log, cmd)
	if s.failOn != "" && cmd == s.failOn {
		return s.failErr
	}
	return nil
}

func (s *recordingSink) EnableMotors() error  { return s.do("EM,1,1") }
func (s *recordingSink) DisableMotors() error { return s.do("EM,0,0") }
func (s *recordingSink) PenDown() error       { return s.do("SP,0") }
func (s *recordingSink) PenUp() error         { return s.do("SP,1") }
func (s *recordingSink) Move(c motion.MotionCommand) error {
	return s.do(fmt.Sprintf("XM,%d,%d,%d", c.DurationMS, c.DX, c.DY))
}

type framePublisher struct {
	frames []hub.Frame
}

func (p *framePublisher) Publish(f hub.Frame) {
	p.frames = append(p.frames, f)
}

func newTestLoop(t *testing.T, src *fakeSource, sink *recordingSink, pub Publisher) *Loop {
	t.Helper()
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	l := New(motion.New(cfg, t0), src, sink, pub, gamepad.NewSnapshot(cfg.Bindings))
	now := t0
	l.Now = func() time.Time { return now }
	l.Sleep = func(d time.Duration) { now = now.Add(d) }
	return l
}

func stopBatch() []gamepad.Event {
	return []gamepad.Event{
		gamepad.ButtonEvent{Index: 6, Pressed: true},
		gamepad.ButtonEvent{Index: 7, Pressed: true},
	}
}

func moves(log []string) int {
	n := 0
	for _, c := range log {
		if len(c) > 2 && c[:2] == "XM" {
			n++
		}
	}
	return n
}

func TestEmergencyStopShutsDown(t *testing.T) {
	src := &fakeSource{batches: [][]gamepad.Event{
		{gamepad.AxisEvent{Index: 1, Value: 1}},
		nil,
		{gamepad.ButtonEvent{Index: 0, Pressed: true}},
		nil,
		stopBatch(),
	}}
	sink := &recordingSink{}
	pub := &framePublisher{}

	err := newTestLoop(t, src, sink, pub).Run(context.Background())
	require.ErrorIs(t, err, ErrEmergencyStop)

	assert.Equal(t, []string{
		"EM,1,1",
		"SP,1",
		"XM,12,29,0",
		"SP,0",
		"XM,12,29,0",
		"EM,0,0",
	}, sink.log)
	assert.Equal(t, "EM,0,0", sink.log[len(sink.log)-1])
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 50 * time.Millisecond}, src.rumbles)

	require.Len(t, pub.frames, 3)
	assert.Equal(t, hub.EventPenDown, pub.frames[1].Event)
	assert.True(t, pub.frames[1].PenDown)
	assert.Equal(t, hub.EventStop, pub.frames[2].Event)
	assert.Equal(t, int64(3), pub.frames[2].Seq)
}

func TestNoMoveAfterStop(t *testing.T) {
	src := &fakeSource{batches: [][]gamepad.Event{
		append(stopBatch(), gamepad.AxisEvent{Index: 1, Value: 1}),
	}}
	sink := &recordingSink{}

	err := newTestLoop(t, src, sink, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrEmergencyStop)
	assert.Zero(t, moves(sink.log))
	assert.Equal(t, []string{"EM,1,1", "SP,1", "EM,0,0"}, sink.log)
}

func TestPenReleaseSendsPenUp(t *testing.T) {
	src := &fakeSource{batches: [][]gamepad.Event{
		nil,
		{gamepad.ButtonEvent{Index: 0, Pressed: true}},
		nil,
		nil,
		{gamepad.ButtonEvent{Index: 0, Pressed: false}},
		nil,
		stopBatch(),
	}}
	sink := &recordingSink{}

	require.ErrorIs(t, newTestLoop(t, src, sink, nil).Run(context.Background()), ErrEmergencyStop)

	var pens []string
	for _, c := range sink.log {
		if c == "SP,0" || c == "SP,1" {
			pens = append(pens, c)
		}
	}
	assert.Equal(t, []string{"SP,1", "SP,0", "SP,1"}, pens)
}

func TestSinkFailureIsFatal(t *testing.T) {
	boom := errors.New("unplugged")
	src := &fakeSource{batches: [][]gamepad.Event{
		nil,
		nil,
		{gamepad.AxisEvent{Index: 0, Value: -1}},
	}}
	sink := &recordingSink{failOn: "XM,12,0,29", failErr: boom}

	err := newTestLoop(t, src, sink, nil).Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrEmergencyStop)
	assert.Equal(t, "EM,0,0", sink.log[len(sink.log)-1])
	assert.Equal(t, 1, moves(sink.log)-1, "one move accepted before the failing one")
}

func TestEnableFailureSkipsShutdown(t *testing.T) {
	boom := errors.New("unplugged")
	sink := &recordingSink{failOn: "EM,1,1", failErr: boom}

	err := newTestLoop(t, &fakeSource{}, sink, nil).Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"EM,1,1"}, sink.log)
}

func TestDisableFailureJoined(t *testing.T) {
	boom := errors.New("unplugged")
	sink := &recordingSink{failOn: "EM,0,0", failErr: boom}
	src := &fakeSource{batches: [][]gamepad.Event{stopBatch()}}

	err := newTestLoop(t, src, sink, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrEmergencyStop)
	assert.ErrorIs(t, err, boom)
}

func TestCancelShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{}
	src.onPoll = func(n int) {
		if n == 10 {
			cancel()
		}
	}
	sink := &recordingSink{}

	require.NoError(t, newTestLoop(t, src, sink, nil).Run(ctx))
	assert.Equal(t, "EM,0,0", sink.log[len(sink.log)-1])
	assert.Equal(t, 10, src.polls)
}

func TestIdleTicksKeepSending(t *testing.T) {
	src := &fakeSource{batches: make([][]gamepad.Event, 6)}
	src.batches = append(src.batches, stopBatch())
	sink := &recordingSink{}

	require.ErrorIs(t, newTestLoop(t, src, sink, nil).Run(context.Background()), ErrEmergencyStop)
	assert.Equal(t, []string{"EM,1,1", "SP,1", "XM,12,0,0", "XM,12,0,0", "XM,12,0,0", "EM,0,0"}, sink.log)
}
