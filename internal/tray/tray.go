// Package tray shows a system tray icon on Windows with an emergency stop.
package tray

import (
	"log"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
)

// StopFunc is called when "Emergency stop" is clicked
type StopFunc func()

// Tray manages the system tray icon and menu
type Tray struct {
	stopFunc     StopFunc
	statusURL    string
	once         sync.Once
	shuttingDown atomic.Bool
	menuOpen     *systray.MenuItem
	menuStop     *systray.MenuItem
}

// New creates a new Tray instance. statusURL is the telemetry page, or empty
// when telemetry is disabled.
func New(statusURL string, stopFn StopFunc) *Tray {
	return &Tray{
		stopFunc:  stopFn,
		statusURL: statusURL,
	}
}

// Run initializes and runs the system tray (blocks until Quit())
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon, making Run return.
func (t *Tray) Quit() {
	t.shuttingDown.Store(true)
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("axijoy")
	systray.SetTooltip("axijoy - gamepad plotter control")

	if t.statusURL != "" {
		t.menuOpen = systray.AddMenuItem("Open status page", "Open the telemetry page")
	}
	t.menuStop = systray.AddMenuItem("Emergency stop", "Disable the motors and quit")

	// Handle menu clicks in separate goroutines to prevent blocking
	go t.handleMenuClicks()

	log.Println("System tray initialized")
}

func (t *Tray) handleMenuClicks() {
	var openCh <-chan struct{}
	if t.menuOpen != nil {
		openCh = t.menuOpen.ClickedCh
	}
	for {
		select {
		case <-openCh:
			if !t.shuttingDown.Load() {
				t.openBrowser()
			}
		case <-t.menuStop.ClickedCh:
			if t.shuttingDown.CompareAndSwap(false, true) {
				t.once.Do(t.stopFunc)
				systray.Quit()
				return
			}
		}
	}
}

func (t *Tray) onExit() {
	t.shuttingDown.Store(true)
	log.Println("System tray exiting")
}

func (t *Tray) openBrowser() {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", t.statusURL)
	case "darwin":
		cmd = exec.Command("open", t.statusURL)
	default:
		cmd = exec.Command("xdg-open", t.statusURL)
	}

	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}
