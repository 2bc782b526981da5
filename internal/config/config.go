// Package config loads the recorder's YAML configuration. Command-line
// flags override whatever the file sets.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/gpio"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Backends accepted by GPIOConfig.Backend.
const (
	BackendFake     = "fake"
	BackendGPIOCdev = "gpiocdev"
	BackendPeriph   = "periph"
)

// Config represents the application configuration.
type Config struct {
	Session  SessionConfig                      `yaml:"session"`
	Channels map[waveform.Channel]ChannelConfig `yaml:"channels"`
	GPIO     GPIOConfig                         `yaml:"gpio"`
	Output   OutputConfig                       `yaml:"output"`
	MQTT     MQTTConfig                         `yaml:"mqtt"`
	HTTP     HTTPConfig                         `yaml:"http"`
}

// SessionConfig holds the blink loop limits.
type SessionConfig struct {
	Duration       time.Duration `yaml:"duration"`
	Cadence        time.Duration `yaml:"cadence"`
	Capacity       int           `yaml:"capacity"`
	Resolution     string        `yaml:"resolution"` // ms or us
	Timing         string        `yaml:"timing"`     // symmetric or legacy
	MaxFrequencyHz float64       `yaml:"max_frequency_hz"`
	PinCPU         bool          `yaml:"pin_cpu"`
	CPU            int           `yaml:"cpu"`
}

// ChannelConfig names and wires one LED.
type ChannelConfig struct {
	Label string `yaml:"label"`
	Pin   int    `yaml:"pin"` // BCM line offset
}

// GPIOConfig selects the output driver.
type GPIOConfig struct {
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`
}

// OutputConfig holds file locations.
type OutputConfig struct {
	CSV string `yaml:"csv"`
	PNG string `yaml:"png"`
}

// MQTTConfig configures lifecycle event publishing. An empty broker
// disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig configures the status page. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the lab board configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Duration:       session.DefaultDuration,
			Cadence:        session.DefaultCadence,
			Capacity:       session.DefaultCapacity,
			Resolution:     clock.Millisecond.String(),
			Timing:         waveform.TimingSymmetric.String(),
			MaxFrequencyHz: waveform.DefaultMaxFrequencyHz,
		},
		Channels: map[waveform.Channel]ChannelConfig{
			waveform.ChannelA: {Label: "Green", Pin: gpio.DefaultPinA},
			waveform.ChannelB: {Label: "Red", Pin: gpio.DefaultPinB},
		},
		GPIO: GPIOConfig{
			Backend: BackendGPIOCdev,
			Chip:    gpio.DefaultChip,
		},
		Output: OutputConfig{
			CSV: csvsink.DefaultPath,
			PNG: "displayPlot.png",
		},
		MQTT: MQTTConfig{
			ClientID: "pwm-recorder",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; missing fields are filled from them.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) ensureDefaults() {
	def := Default()

	if c.Session.Duration == 0 {
		c.Session.Duration = def.Session.Duration
	}
	if c.Session.Cadence == 0 {
		c.Session.Cadence = def.Session.Cadence
	}
	if c.Session.Capacity == 0 {
		c.Session.Capacity = def.Session.Capacity
	}
	if c.Session.Resolution == "" {
		c.Session.Resolution = def.Session.Resolution
	}
	if c.Session.Timing == "" {
		c.Session.Timing = def.Session.Timing
	}
	if c.Session.MaxFrequencyHz == 0 {
		c.Session.MaxFrequencyHz = def.Session.MaxFrequencyHz
	}

	if c.Channels == nil {
		c.Channels = make(map[waveform.Channel]ChannelConfig)
	}
	for ch, d := range def.Channels {
		cc := c.Channels[ch]
		if cc.Label == "" {
			cc.Label = d.Label
		}
		if cc.Pin == 0 {
			cc.Pin = d.Pin
		}
		c.Channels[ch] = cc
	}

	if c.GPIO.Backend == "" {
		c.GPIO.Backend = def.GPIO.Backend
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if c.Output.CSV == "" {
		c.Output.CSV = def.Output.CSV
	}
	if c.Output.PNG == "" {
		c.Output.PNG = def.Output.PNG
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.Session.Duration < 0 {
		err = multierr.Append(err, fmt.Errorf("session.duration %v is negative", c.Session.Duration))
	}
	if c.Session.Cadence <= 0 {
		err = multierr.Append(err, fmt.Errorf("session.cadence %v must be positive", c.Session.Cadence))
	}
	if c.Session.Capacity < 0 || c.Session.Capacity > waveform.MaxCapacity {
		err = multierr.Append(err, fmt.Errorf("session.capacity %d out of range 0..%d", c.Session.Capacity, waveform.MaxCapacity))
	}
	if _, e := clock.ParseResolution(c.Session.Resolution); e != nil {
		err = multierr.Append(err, fmt.Errorf("session.resolution: %w", e))
	}
	if _, e := waveform.ParseTiming(c.Session.Timing); e != nil {
		err = multierr.Append(err, fmt.Errorf("session.timing: %w", e))
	}
	if c.Session.CPU < 0 {
		err = multierr.Append(err, fmt.Errorf("session.cpu %d is negative", c.Session.CPU))
	}
	for ch, cc := range c.Channels {
		if !ch.Valid() {
			err = multierr.Append(err, fmt.Errorf("channels: unknown channel %q", ch))
		}
		if cc.Pin < 0 {
			err = multierr.Append(err, fmt.Errorf("channels.%s.pin %d is negative", ch, cc.Pin))
		}
	}
	switch c.GPIO.Backend {
	case BackendFake, BackendGPIOCdev, BackendPeriph:
	default:
		err = multierr.Append(err, fmt.Errorf("gpio.backend %q is not one of fake, gpiocdev, periph", c.GPIO.Backend))
	}
	return err
}

// SessionOptions converts the session section. Validate must have passed.
func (c *Config) SessionOptions() session.Options {
	res, _ := clock.ParseResolution(c.Session.Resolution)
	timing, _ := waveform.ParseTiming(c.Session.Timing)
	return session.Options{
		Duration:       c.Session.Duration,
		Cadence:        c.Session.Cadence,
		Capacity:       c.Session.Capacity,
		Resolution:     res,
		Timing:         timing,
		MaxFrequencyHz: c.Session.MaxFrequencyHz,
		PinCPU:         c.Session.PinCPU,
		CPU:            c.Session.CPU,
	}
}

// Labels returns the CSV column labels per channel.
func (c *Config) Labels() csvsink.Labels {
	l := make(csvsink.Labels, len(c.Channels))
	for ch, cc := range c.Channels {
		l[ch] = cc.Label
	}
	return l
}

// Pins returns the BCM line per channel.
func (c *Config) Pins() gpio.Pins {
	p := make(gpio.Pins, len(c.Channels))
	for ch, cc := range c.Channels {
		p[ch] = cc.Pin
	}
	return p
}
