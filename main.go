package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/soar/axijoy/internal/axidraw"
	"github.com/soar/axijoy/internal/config"
	"github.com/soar/axijoy/internal/control"
	"github.com/soar/axijoy/internal/gamepad"
	"github.com/soar/axijoy/internal/gamepad/sdlinput"
	"github.com/soar/axijoy/internal/hub"
	"github.com/soar/axijoy/internal/motion"
	"github.com/soar/axijoy/internal/server"
	"github.com/soar/axijoy/internal/tray"
)

//go:embed all:frontend
var frontendFiles embed.FS

// Cross-platform signal handling: use os.Interrupt on all platforms
// On Windows: os.Interrupt is sent when Ctrl+C is pressed
// On Unix: os.Interrupt is equivalent to syscall.SIGINT
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SDL is driven from the main goroutine, which must stay on the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.Flags(flags)
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	os.Exit(run(cfg))
}

func run(cfg config.Config) int {
	ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer cancel()

	dial := axidraw.SerialDialer(axidraw.SerialConfig{
		Device:      cfg.Device.Port,
		Baud:        cfg.Device.Baud,
		ReadTimeout: time.Second,
	})
	link, err := axidraw.Connect(ctx, dial, cfg.Device.Ack, axidraw.RetryPolicy{
		Attempts: cfg.Connect.Attempts,
		Backoff:  cfg.Backoff(),
	})
	if err != nil {
		log.Printf("Could not connect to AxiDraw: %v", err)
		return 1
	}
	defer func() {
		if err := link.Close(); err != nil {
			log.Printf("Closing AxiDraw link: %v", err)
			return
		}
		log.Println("AxiDraw disconnected")
	}()

	rest := gamepad.NewSnapshot(cfg.Bindings)
	reader := sdlinput.NewReader(rest, cfg.Verbose)
	if err := reader.Open(); err != nil {
		log.Printf("Could not open controller: %v", err)
		return 1
	}
	defer reader.Close()
	log.Printf("Controller: %s", reader.Name())

	var pub control.Publisher
	if cfg.Tele.Addr != "" {
		srv, b := startTelemetry(ctx, cfg.Tele)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
		pub = b
	}

	if runtime.GOOS == "windows" {
		t := tray.New(statusURL(cfg.Tele.Addr), func() {
			log.Println("Emergency stop requested from tray")
			cancel()
		})
		go t.Run()
		defer t.Quit()
	} else {
		log.Printf("Press Ctrl+C or buttons %d+%d to stop", cfg.Bindings.StopButton[0], cfg.Bindings.StopButton[1])
	}

	loop := control.New(motion.New(cfg, time.Now()), reader, link, pub, rest)
	err = loop.Run(ctx)
	switch {
	case errors.Is(err, control.ErrEmergencyStop):
		log.Println("Emergency stop")
	case err != nil:
		log.Printf("Control loop failed: %v", err)
		return 1
	default:
		log.Println("Shutting down...")
	}
	return 0
}

func startTelemetry(ctx context.Context, cfg config.Telemetry) (*server.Server, *hub.Broadcaster) {
	h := hub.NewHub()
	go h.Run(ctx)

	b := hub.NewBroadcaster(h, cfg.RateHz)
	go b.Run(ctx)

	srv := server.New(h, b, frontendFS(), cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	log.Printf("Telemetry started: %s", statusURL(cfg.Addr))
	return srv, b
}

// frontendFS returns a sub-filesystem rooted at the "frontend" directory.
func frontendFS() fs.FS {
	sub, err := fs.Sub(frontendFiles, "frontend")
	if err != nil {
		panic(err)
	}
	return sub
}

func statusURL(addr string) string {
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
