package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 150.0, c.MaxSpeed())
	assert.Equal(t, 12, c.CommandDuration())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(*Config)
	}{
		{"zero deadzone", "deadzone", func(c *Config) { c.Deadzone = 0 }},
		{"unit deadzone", "deadzone", func(c *Config) { c.Deadzone = 1 }},
		{"boost below one", "boost", func(c *Config) { c.BoostMultiplier = 0.5 }},
		{"slide factor above one", "slide_factor", func(c *Config) { c.SlideFactor = 1.5 }},
		{"zero friction", "friction", func(c *Config) { c.Friction = 0 }},
		{"negative interval", "poll_interval_ms", func(c *Config) { c.PollIntervalMS = -1 }},
		{"negative margin", "margin_ms", func(c *Config) { c.MarginMS = -1 }},
		{"zero scale", "scale", func(c *Config) { c.BaseScale = 0 }},
		{"no attempts", "connect.attempts", func(c *Config) { c.Connect.Attempts = 0 }},
		{"axis out of range", "bindings", func(c *Config) { c.Bindings.BoostAxis = 9 }},
		{"same stop buttons", "bindings", func(c *Config) { c.Bindings.StopButton = [2]int{3, 3} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.edit(&c)
			err := c.Validate()
			require.Error(t, err)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestValidateAcceptsEdges(t *testing.T) {
	c := Default()
	c.SlideFactor = 1
	c.Friction = 1
	c.PollIntervalMS = 0
	c.MarginMS = 0
	c.BoostMultiplier = 1
	assert.NoError(t, c.Validate())
}

func TestLoadDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse(nil))

	c, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadFlagsOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--deadzone=0.2", "--scale=10", "--device=/dev/ttyACM1", "-v"}))

	c, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, 0.2, c.Deadzone)
	assert.Equal(t, 10, c.BaseScale)
	assert.Equal(t, "/dev/ttyACM1", c.Device.Port)
	assert.True(t, c.Verbose)
}

func TestLoadTelemetryRateFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--telemetry=:9000", "--telemetry-rate=10"}))

	c, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Tele.Addr)
	assert.Equal(t, 10.0, c.Tele.RateHz)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--telemetry=:9000", "--telemetry-rate=0"}))
	_, err = Load(fs)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "telemetry.rate_hz", ce.Field)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axijoy.yaml")
	data := "boost: 3\nbindings:\n  pen_button: 2\n  stop_buttons: [4, 5]\ntelemetry:\n  addr: \":9000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	c, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, 3.0, c.BoostMultiplier)
	assert.Equal(t, 2, c.Bindings.PenButton)
	assert.Equal(t, [2]int{4, 5}, c.Bindings.StopButton)
	assert.Equal(t, ":9000", c.Tele.Addr)
	assert.Equal(t, 90.0, c.MaxSpeed())
}

func TestLoadInvalid(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--deadzone=1.5"}))

	_, err := Load(fs)
	assert.True(t, IsConfigError(err))
}
