package axidraw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tarm/serial"
)

// Dialer opens the raw port to the board.
type Dialer func() (io.ReadWriteCloser, error)

// RetryPolicy bounds the connection attempts made by Connect.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// SerialConfig describes the serial port of the board.
type SerialConfig struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3"). Empty means auto-detect.
	Device string

	// Baud rate. The EBB is USB CDC and ignores it.
	Baud int

	// ReadTimeout bounds the wait for a reply.
	ReadTimeout time.Duration
}

// ErrNoPort is returned when auto-detection finds no candidate device.
var ErrNoPort = errors.New("no serial port found")

// SerialDialer opens the configured port, or the first candidate that opens
// when no device is configured.
func SerialDialer(cfg SerialConfig) Dialer {
	return func() (io.ReadWriteCloser, error) {
		candidates := []string{cfg.Device}
		if cfg.Device == "" {
			candidates = candidatePorts()
		}
		if len(candidates) == 0 {
			return nil, ErrNoPort
		}

		var errs []error
		for _, name := range candidates {
			port, err := serial.OpenPort(&serial.Config{
				Name:        name,
				Baud:        cfg.Baud,
				ReadTimeout: cfg.ReadTimeout,
			})
			if err == nil {
				log.Printf("Opened serial port %s", name)
				return port, nil
			}
			errs = append(errs, fmt.Errorf("open %s: %w", name, err))
		}
		return nil, errors.Join(errs...)
	}
}

func candidatePorts() []string {
	if runtime.GOOS == "windows" {
		ports := make([]string, 0, 16)
		for i := 1; i <= 16; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	}

	var ports []string
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/cu.usbmodem*", "/dev/tty.usbmodem*"} {
		matches, _ := filepath.Glob(pattern)
		ports = append(ports, matches...)
	}
	return ports
}

// Connect dials the board until it answers, at most p.Attempts times with
// p.Backoff between attempts. With ack set the board must also report its
// firmware version before the link is returned. The first attempt after the
// board is plugged in commonly fails.
func Connect(ctx context.Context, dial Dialer, ack bool, p RetryPolicy) (*Link, error) {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.Backoff):
			}
		}

		log.Printf("Connecting to AxiDraw (attempt %d/%d)", attempt, p.Attempts)
		link, err := open(dial, ack)
		if err == nil {
			return link, nil
		}
		lastErr = err
		log.Printf("Connection attempt %d failed: %v", attempt, err)
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", p.Attempts, lastErr)
}

func open(dial Dialer, ack bool) (*Link, error) {
	port, err := dial()
	if err != nil {
		return nil, err
	}

	link := NewLink(port, ack)
	if !ack {
		return link, nil
	}

	version, err := link.Version()
	if err != nil {
		link.Close()
		return nil, err
	}
	log.Printf("AxiDraw connected: %s", version)
	return link, nil
}
