// Package axidraw drives an AxiDraw plotter through the EiBotBoard (EBB)
// text protocol: one comma-separated command per line, terminated by '\r',
// each answered with "OK" or an error line starting with '!'.
package axidraw

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/soar/axijoy/internal/motion"
)

// ErrSinkUnavailable wraps every failure to deliver a command to the board.
var ErrSinkUnavailable = errors.New("plotter unavailable")

// Link is an open connection to the board. Commands are synchronous: each
// call returns once the board has accepted the command, or failed.
type Link struct {
	port io.ReadWriteCloser
	r    *bufio.Reader
	ack  bool

	closeOnce sync.Once
	closeErr  error
}

// NewLink wraps an open port. With ack set every command waits for the
// board's reply; otherwise replies are left unread.
func NewLink(port io.ReadWriteCloser, ack bool) *Link {
	return &Link{
		port: port,
		r:    bufio.NewReader(port),
		ack:  ack,
	}
}

// EnableMotors energizes both steppers at full (1/16) microstepping.
func (l *Link) EnableMotors() error {
	return l.command("EM,1,1")
}

// DisableMotors releases both steppers.
func (l *Link) DisableMotors() error {
	return l.command("EM,0,0")
}

// PenDown lowers the pen.
func (l *Link) PenDown() error {
	return l.command("SP,0")
}

// PenUp raises the pen.
func (l *Link) PenUp() error {
	return l.command("SP,1")
}

// Move queues a mixed-axis move. A zero move still occupies the board for
// the command's duration.
func (l *Link) Move(cmd motion.MotionCommand) error {
	return l.command(fmt.Sprintf("XM,%d,%d,%d", cmd.DurationMS, cmd.DX, cmd.DY))
}

// Version asks the board for its firmware version string.
func (l *Link) Version() (string, error) {
	if err := l.write("V"); err != nil {
		return "", err
	}
	line, err := l.readLine("V")
	if err != nil {
		return "", err
	}
	return line, nil
}

// Close releases the port. Later calls return the first call's result.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}

func (l *Link) command(cmd string) error {
	if err := l.write(cmd); err != nil {
		return err
	}
	if !l.ack {
		return nil
	}

	line, err := l.readLine(cmd)
	if err != nil {
		return err
	}
	if line != "OK" {
		return fmt.Errorf("%w: %s: unexpected reply %q", ErrSinkUnavailable, cmd, line)
	}
	return nil
}

func (l *Link) write(cmd string) error {
	if _, err := io.WriteString(l.port, cmd+"\r"); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSinkUnavailable, cmd, err)
	}
	return nil
}

// readLine returns the next non-empty reply line. Error replies ("!8 Err: ...")
// are returned as errors.
func (l *Link) readLine(cmd string) (string, error) {
	for {
		line, err := l.r.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if strings.HasPrefix(line, "!") {
				return "", fmt.Errorf("%w: %s: board error %q", ErrSinkUnavailable, cmd, line)
			}
			return line, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: read reply to %s: %w", ErrSinkUnavailable, cmd, err)
		}
	}
}
