// Package config loads the daemon configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/liveness"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/sensor"
	"gopkg.in/yaml.v2"
)

// Config is the full daemon configuration. Every field has a default, so
// an empty or missing section keeps the original install's behaviour.
type Config struct {
	GarageName  string `yaml:"garage_name"`
	VersionFile string `yaml:"version_file"`

	HTTP     HTTPConfig     `yaml:"http"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	I2C      I2CConfig      `yaml:"i2c"`
	Door     DoorConfig     `yaml:"door"`
	Liveness LivenessConfig `yaml:"liveness"`
}

// HTTPConfig holds the control page settings.
type HTTPConfig struct {
	Addr     string            `yaml:"addr"`
	Users    map[string]string `yaml:"users"` // name -> bcrypt hash
	TimeZone string            `yaml:"time_zone"`
}

// MQTTConfig holds broker connection settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Prefix        string `yaml:"prefix"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	BufferSize    int    `yaml:"buffer_size"`
	HeartbeatSecs int    `yaml:"heartbeat_secs"`
}

// GPIOConfig holds line offsets on the GPIO chip.
type GPIOConfig struct {
	Chip    string     `yaml:"chip"`
	Relay   int        `yaml:"relay"`
	Door    int        `yaml:"door"`
	Light   int        `yaml:"light"`
	LED     int        `yaml:"led"`
	Buttons ButtonPins `yaml:"buttons"`
}

// ButtonPins holds the active-low push button lines.
type ButtonPins struct {
	Up    int `yaml:"up"`
	Down  int `yaml:"down"`
	Vent  int `yaml:"vent"`
	Light int `yaml:"light"`
}

// I2CConfig selects the sensor bus.
type I2CConfig struct {
	Bus         string `yaml:"bus"`
	ClimateAddr uint16 `yaml:"climate_addr"`
}

// DoorConfig tunes the motion sequences.
type DoorConfig struct {
	HoldMs          int     `yaml:"hold_ms"`
	SettleMs        int     `yaml:"settle_ms"`
	RecoveryMs      int     `yaml:"recovery_ms"`
	DebounceMs      int     `yaml:"debounce_ms"`
	VentSetpoint    float64 `yaml:"vent_setpoint_in"`
	VentTimeoutSecs int     `yaml:"vent_timeout_secs"`
	PollMs          int     `yaml:"poll_ms"`
	SampleMs        int     `yaml:"sample_ms"` // idle status sampling
	OpenMax         float64 `yaml:"open_max_in"`
	ClosedMin       float64 `yaml:"closed_min_in"`
}

// LivenessConfig controls the remote ping.
type LivenessConfig struct {
	URL      string `yaml:"url"`
	StepSecs int    `yaml:"step_secs"`
	MaxSecs  int    `yaml:"max_secs"`
	Reboot   bool   `yaml:"reboot"`
}

// Default returns the configuration of the original install.
func Default() Config {
	return Config{
		GarageName:  "Garage",
		VersionFile: "version.json",
		HTTP:        HTTPConfig{Addr: ":80"},
		MQTT: MQTTConfig{
			ClientID:      "garage-door",
			Prefix:        mqtt.DefaultPrefix,
			BufferSize:    mqtt.DefaultBufferSize,
			HeartbeatSecs: 900,
		},
		GPIO: GPIOConfig{
			Chip:  gpio.DefaultChip,
			Relay: gpio.DefaultPinRelay,
			Door:  gpio.DefaultPinDoor,
			Light: gpio.DefaultPinLight,
			LED:   gpio.DefaultPinLED,
			Buttons: ButtonPins{
				Up:    gpio.DefaultPinButtonUp,
				Down:  gpio.DefaultPinButtonDown,
				Vent:  gpio.DefaultPinButtonVent,
				Light: gpio.DefaultPinButtonLight,
			},
		},
		I2C: I2CConfig{ClimateAddr: sensor.AddrClimate},
		Door: DoorConfig{
			HoldMs:          int(door.DefaultHold / time.Millisecond),
			SettleMs:        int(door.DefaultSettings.Settle / time.Millisecond),
			RecoveryMs:      int(door.DefaultSettings.Recovery / time.Millisecond),
			DebounceMs:      150,
			VentSetpoint:    door.DefaultSettings.VentSetpoint,
			VentTimeoutSecs: int(door.DefaultSettings.VentTimeout / time.Second),
			PollMs:          int(door.DefaultSettings.PollInterval / time.Millisecond),
			SampleMs:        1000,
			OpenMax:         logic.DefaultThresholds.OpenMax,
			ClosedMin:       logic.DefaultThresholds.ClosedMin,
		},
		Liveness: LivenessConfig{
			URL:      liveness.DefaultURL,
			StepSecs: int(liveness.DefaultStep / time.Second),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	pins := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"relay", c.GPIO.Relay},
		{"door", c.GPIO.Door},
		{"light", c.GPIO.Light},
		{"led", c.GPIO.LED},
		{"buttons.up", c.GPIO.Buttons.Up},
		{"buttons.down", c.GPIO.Buttons.Down},
		{"buttons.vent", c.GPIO.Buttons.Vent},
		{"buttons.light", c.GPIO.Buttons.Light},
	} {
		if p.pin < 0 {
			return fmt.Errorf("gpio.%s: negative line %d", p.name, p.pin)
		}
		if other, dup := pins[p.pin]; dup {
			return fmt.Errorf("gpio.%s: line %d already used by %s", p.name, p.pin, other)
		}
		pins[p.pin] = p.name
	}

	for _, d := range []struct {
		name string
		v    int
	}{
		{"door.hold_ms", c.Door.HoldMs},
		{"door.settle_ms", c.Door.SettleMs},
		{"door.recovery_ms", c.Door.RecoveryMs},
		{"door.debounce_ms", c.Door.DebounceMs},
		{"door.vent_timeout_secs", c.Door.VentTimeoutSecs},
		{"door.poll_ms", c.Door.PollMs},
		{"door.sample_ms", c.Door.SampleMs},
		{"liveness.step_secs", c.Liveness.StepSecs},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.name, d.v)
		}
	}
	if c.Liveness.MaxSecs < 0 {
		return fmt.Errorf("liveness.max_secs must not be negative")
	}

	if c.Door.OpenMax >= c.Door.ClosedMin {
		return fmt.Errorf("door.open_max_in (%v) must be below door.closed_min_in (%v)", c.Door.OpenMax, c.Door.ClosedMin)
	}
	if c.Door.VentSetpoint <= 0 {
		return fmt.Errorf("door.vent_setpoint_in must be positive")
	}
	if c.HTTP.TimeZone != "" {
		if _, err := time.LoadLocation(c.HTTP.TimeZone); err != nil {
			return fmt.Errorf("http.time_zone: %w", err)
		}
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Hold returns the actuator pulse hold.
func (c Config) Hold() time.Duration { return ms(c.Door.HoldMs) }

// Debounce returns the button debounce window.
func (c Config) Debounce() time.Duration { return ms(c.Door.DebounceMs) }

// SampleInterval returns the idle sensor sampling period.
func (c Config) SampleInterval() time.Duration { return ms(c.Door.SampleMs) }

// Heartbeat returns the MQTT heartbeat period, 0 when disabled.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.MQTT.HeartbeatSecs) * time.Second
}

// Settings returns the motion controller settings.
func (c Config) Settings() door.Settings {
	return door.Settings{
		Settle:       ms(c.Door.SettleMs),
		Recovery:     ms(c.Door.RecoveryMs),
		VentSetpoint: c.Door.VentSetpoint,
		VentTimeout:  time.Duration(c.Door.VentTimeoutSecs) * time.Second,
		PollInterval: ms(c.Door.PollMs),
	}
}

// Thresholds returns the door status classification.
func (c Config) Thresholds() logic.Thresholds {
	return logic.Thresholds{OpenMax: c.Door.OpenMax, ClosedMin: c.Door.ClosedMin}
}

// OutputPins returns the output line offsets.
func (c Config) OutputPins() gpio.OutputPins {
	return gpio.OutputPins{Relay: c.GPIO.Relay, Door: c.GPIO.Door, Light: c.GPIO.Light, LED: c.GPIO.LED}
}

// Bindings maps button lines to commands.
func (c Config) Bindings() map[int]logic.Command {
	return map[int]logic.Command{
		c.GPIO.Buttons.Up:    logic.CommandUp,
		c.GPIO.Buttons.Down:  logic.CommandDown,
		c.GPIO.Buttons.Vent:  logic.CommandVent,
		c.GPIO.Buttons.Light: logic.CommandLight,
	}
}

// PingConfig returns the liveness loop configuration.
func (c Config) PingConfig() liveness.Config {
	return liveness.Config{
		URL:  c.Liveness.URL,
		Step: time.Duration(c.Liveness.StepSecs) * time.Second,
		Max:  time.Duration(c.Liveness.MaxSecs) * time.Second,
	}
}

// Location returns the page time zone.
func (c Config) Location() *time.Location {
	if c.HTTP.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.HTTP.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
