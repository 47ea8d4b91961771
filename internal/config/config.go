// Package config loads the control-loop settings from flags, environment and
// an optional config file, and validates them once before anything runs.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/soar/axijoy/internal/gamepad"
)

// ConfigError reports a setting outside its allowed range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds every tunable of the control loop. It is immutable after Load.
type Config struct {
	Deadzone        float64 `mapstructure:"deadzone"`
	BoostMultiplier float64 `mapstructure:"boost"`
	SlideFactor     float64 `mapstructure:"slide_factor"`
	Friction        float64 `mapstructure:"friction"`
	PollIntervalMS  int     `mapstructure:"poll_interval_ms"`
	MarginMS        int     `mapstructure:"margin_ms"`
	BaseScale       int     `mapstructure:"scale"`

	Bindings gamepad.Bindings `mapstructure:"bindings"`

	Device  Device    `mapstructure:"device"`
	Connect Retry     `mapstructure:"connect"`
	Tele    Telemetry `mapstructure:"telemetry"`
	Verbose bool      `mapstructure:"verbose"`
}

// Device describes the serial link to the plotter.
type Device struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
	Ack  bool   `mapstructure:"ack"`
}

// Retry bounds the connection attempts made before giving up.
type Retry struct {
	Attempts  int `mapstructure:"attempts"`
	BackoffMS int `mapstructure:"backoff_ms"`
}

// Telemetry configures the optional websocket status feed. An empty Addr disables it.
type Telemetry struct {
	Addr   string  `mapstructure:"addr"`
	RateHz float64 `mapstructure:"rate_hz"`
}

// Default returns the reference tuning.
func Default() Config {
	return Config{
		Deadzone:        0.10,
		BoostMultiplier: 5,
		SlideFactor:     0.95,
		Friction:        0.995,
		PollIntervalMS:  2,
		MarginMS:        10,
		BaseScale:       30,
		Bindings:        gamepad.DefaultBindings(),
		Device: Device{
			Baud: 9600,
			Ack:  true,
		},
		Connect: Retry{
			Attempts:  10,
			BackoffMS: 200,
		},
		Tele: Telemetry{
			RateHz: 30,
		},
	}
}

// MaxSpeed is the largest per-axis velocity the engine will ever command.
func (c Config) MaxSpeed() float64 {
	return float64(c.BaseScale) * c.BoostMultiplier
}

// PollInterval is the minimum spacing between ticks.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// CommandDuration is the duration given to each move command.
func (c Config) CommandDuration() int {
	return c.PollIntervalMS + c.MarginMS
}

// Backoff is the wait between connection attempts.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.Connect.BackoffMS) * time.Millisecond
}

// Validate checks every setting. The first violation is returned as a *ConfigError.
func (c Config) Validate() error {
	switch {
	case !(c.Deadzone > 0 && c.Deadzone < 1):
		return &ConfigError{"deadzone", fmt.Sprintf("%g not in (0, 1)", c.Deadzone)}
	case !(c.BoostMultiplier >= 1) || math.IsInf(c.BoostMultiplier, 0):
		return &ConfigError{"boost", fmt.Sprintf("%g must be a finite value >= 1", c.BoostMultiplier)}
	case !(c.SlideFactor >= 0 && c.SlideFactor <= 1):
		return &ConfigError{"slide_factor", fmt.Sprintf("%g not in [0, 1]", c.SlideFactor)}
	case !(c.Friction > 0 && c.Friction <= 1):
		return &ConfigError{"friction", fmt.Sprintf("%g not in (0, 1]", c.Friction)}
	case c.PollIntervalMS < 0:
		return &ConfigError{"poll_interval_ms", fmt.Sprintf("%d is negative", c.PollIntervalMS)}
	case c.MarginMS < 0:
		return &ConfigError{"margin_ms", fmt.Sprintf("%d is negative", c.MarginMS)}
	case c.BaseScale <= 0:
		return &ConfigError{"scale", fmt.Sprintf("%d must be positive", c.BaseScale)}
	case c.Connect.Attempts < 1:
		return &ConfigError{"connect.attempts", fmt.Sprintf("%d must be at least 1", c.Connect.Attempts)}
	case c.Connect.BackoffMS < 0:
		return &ConfigError{"connect.backoff_ms", fmt.Sprintf("%d is negative", c.Connect.BackoffMS)}
	case c.Device.Baud <= 0:
		return &ConfigError{"device.baud", fmt.Sprintf("%d must be positive", c.Device.Baud)}
	case c.Tele.Addr != "" && !(c.Tele.RateHz > 0):
		return &ConfigError{"telemetry.rate_hz", fmt.Sprintf("%g must be positive", c.Tele.RateHz)}
	}

	if err := c.Bindings.Validate(); err != nil {
		return &ConfigError{"bindings", err.Error()}
	}

	// Ranges the engine feeds to MapRange on every tick.
	for name, r := range map[string]gamepad.Range{
		"deadzone (positive side)": {Lo: c.Deadzone, Hi: 1},
		"deadzone (negative side)": {Lo: -1, Hi: -c.Deadzone},
		"trigger":                  gamepad.FullRange,
	} {
		if err := r.Validate(); err != nil {
			return &ConfigError{name, err.Error()}
		}
	}
	return nil
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Flags registers the command-line flags understood by Load.
func Flags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a config file (yaml, toml or json)")
	fs.Float64("deadzone", d.Deadzone, "Stick deflection ignored around centre, (0, 1)")
	fs.Float64("boost", d.BoostMultiplier, "Speed multiplier with the boost trigger fully pressed")
	fs.Float64("slide-factor", d.SlideFactor, "Cap on how much the slide trigger blends in the previous velocity")
	fs.Float64("friction", d.Friction, "Per-tick velocity decay factor, (0, 1]")
	fs.Int("poll-interval", d.PollIntervalMS, "Milliseconds between ticks")
	fs.Int("margin", d.MarginMS, "Milliseconds added to each move command's duration")
	fs.Int("scale", d.BaseScale, "Steps per tick at full stick deflection without boost")
	fs.String("device", "", "Serial port of the plotter (auto-detected when empty)")
	fs.Int("baud", d.Device.Baud, "Serial baud rate")
	fs.Bool("ack", d.Device.Ack, "Wait for the board to acknowledge every command")
	fs.Int("connect-attempts", d.Connect.Attempts, "Connection attempts before giving up")
	fs.Int("connect-backoff", d.Connect.BackoffMS, "Milliseconds between connection attempts")
	fs.String("telemetry", "", "Listen address of the telemetry page, e.g. :8080 (disabled when empty)")
	fs.Float64("telemetry-rate", d.Tele.RateHz, "Telemetry updates per second")
	fs.BoolP("verbose", "v", false, "Log every controller event")
}

var flagKeys = map[string]string{
	"deadzone":         "deadzone",
	"boost":            "boost",
	"slide-factor":     "slide_factor",
	"friction":         "friction",
	"poll-interval":    "poll_interval_ms",
	"margin":           "margin_ms",
	"scale":            "scale",
	"device":           "device.port",
	"baud":             "device.baud",
	"ack":              "device.ack",
	"connect-attempts": "connect.attempts",
	"connect-backoff":  "connect.backoff_ms",
	"telemetry":        "telemetry.addr",
	"telemetry-rate":   "telemetry.rate_hz",
	"verbose":          "verbose",
}

// Load resolves the configuration from defaults, an optional config file,
// AXIJOY_* environment variables and fs, in increasing precedence, and
// validates the result.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("axijoy")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", f.Value.String(), err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("deadzone", d.Deadzone)
	v.SetDefault("boost", d.BoostMultiplier)
	v.SetDefault("slide_factor", d.SlideFactor)
	v.SetDefault("friction", d.Friction)
	v.SetDefault("poll_interval_ms", d.PollIntervalMS)
	v.SetDefault("margin_ms", d.MarginMS)
	v.SetDefault("scale", d.BaseScale)
	v.SetDefault("bindings.stick_x", d.Bindings.StickX)
	v.SetDefault("bindings.stick_y", d.Bindings.StickY)
	v.SetDefault("bindings.slide_axis", d.Bindings.SlideAxis)
	v.SetDefault("bindings.boost_axis", d.Bindings.BoostAxis)
	v.SetDefault("bindings.pen_button", d.Bindings.PenButton)
	v.SetDefault("bindings.stop_buttons", d.Bindings.StopButton[:])
	v.SetDefault("device.port", d.Device.Port)
	v.SetDefault("device.baud", d.Device.Baud)
	v.SetDefault("device.ack", d.Device.Ack)
	v.SetDefault("connect.attempts", d.Connect.Attempts)
	v.SetDefault("connect.backoff_ms", d.Connect.BackoffMS)
	v.SetDefault("telemetry.addr", d.Tele.Addr)
	v.SetDefault("telemetry.rate_hz", d.Tele.RateHz)
	v.SetDefault("verbose", d.Verbose)
}
