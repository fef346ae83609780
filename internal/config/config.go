// Package config loads the daemon configuration: built-in defaults, then a
// TOML file, then BLINKER_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/sweeney/button-blinker/internal/adc"
	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/timer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLINKER_"

// Config is the full daemon configuration.
type Config struct {
	GPIO    GPIOConfig    `toml:"gpio"`
	Lines   LinesConfig   `toml:"lines"`
	Timers  TimersConfig  `toml:"timers"`
	ADC     ADCConfig     `toml:"adc"`
	MQTT    MQTTConfig    `toml:"mqtt"`
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
	Startup StartupConfig `toml:"startup"`
}

// GPIOConfig selects the GPIO chip and how lines are requested.
type GPIOConfig struct {
	Chip      string         `toml:"chip"`
	Consumer  string         `toml:"consumer"`
	ActiveLow bool           `toml:"active_low"`
	Bias      string         `toml:"bias"`
	Offsets   map[string]int `toml:"offsets"` // physical line -> chip offset
}

// LinesConfig binds logical roles to physical line numbers (0-19).
type LinesConfig struct {
	Output1           int  `toml:"output1"`
	Output2           int  `toml:"output2"`
	Input1            int  `toml:"input1"`
	Input2            int  `toml:"input2"`
	OutputStartActive bool `toml:"output_start_active"`
}

// TimersConfig binds timers to units (0-2) and sets their periods.
type TimersConfig struct {
	TickPeriodUs int `toml:"tick_period_us"`
	SettleUnit   int `toml:"settle_unit"`
	SettleMs     int `toml:"settle_ms"`
	Action1Unit  int `toml:"action1_unit"`
	Action1Ms    int `toml:"action1_ms"`
	Action2Unit  int `toml:"action2_unit"`
	Action2Ms    int `toml:"action2_ms"`
}

// ADCConfig configures the optional analog sampler.
type ADCConfig struct {
	Enabled          bool   `toml:"enabled"`
	Line             int    `toml:"line"`
	Device           string `toml:"device"`
	Bits             int    `toml:"bits"`
	PWMPeriodMs      int    `toml:"pwm_period_ms"`
	SampleIntervalMs int    `toml:"sample_interval_ms"`
}

// MQTTConfig configures event publishing. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker         string `toml:"broker"`
	ClientID       string `toml:"client_id"`
	TopicPrefix    string `toml:"topic_prefix"`
	HeartbeatSec   int    `toml:"heartbeat_sec"`
	PublishOutputs bool   `toml:"publish_outputs"`
	BufferSize     int    `toml:"buffer_size"`

	// WSBroker is the websocket URL the status page uses for live updates:
	// "=broker" derives ws://<broker host>:9001, "" or "off" disables.
	WSBroker string `toml:"ws_broker"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Journal bool   `toml:"journal"` // send to the systemd journal when available
}

// StartupConfig configures the power-on self test.
type StartupConfig struct {
	SelfTestMs int `toml:"self_test_ms"` // 0 disables
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		GPIO: GPIOConfig{
			Chip:     "gpiochip0",
			Consumer: "button-blinker",
			Bias:     string(gpio.BiasPullDown),
		},
		Lines: LinesConfig{
			Output1: 8,
			Output2: 9,
			Input1:  12,
			Input2:  13,
		},
		Timers: TimersConfig{
			TickPeriodUs: int(timer.DefaultTickPeriod / time.Microsecond),
			SettleUnit:   0,
			SettleMs:     300,
			Action1Unit:  1,
			Action1Ms:    100,
			Action2Unit:  2,
			Action2Ms:    100,
		},
		ADC: ADCConfig{
			Line:             14,
			Device:           "/sys/bus/iio/devices/iio:device0",
			Bits:             12,
			PWMPeriodMs:      int(adc.DefaultPWMPeriod / time.Millisecond),
			SampleIntervalMs: 1000,
		},
		MQTT: MQTTConfig{
			ClientID:     "button-blinker",
			TopicPrefix:  "blinker",
			HeartbeatSec: 900,
			BufferSize:   100,
			WSBroker:     "=broker",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text", Journal: true},
		Startup: StartupConfig{
			SelfTestMs: 150,
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithEnv is Load followed by ApplyEnv(os.Getenv).
func LoadWithEnv(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv applies BLINKER_* overrides using getenv (os.Getenv in production).
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"GPIO_CHIP":   &c.GPIO.Chip,
		"MQTT_BROKER": &c.MQTT.Broker,
		"HTTP_ADDR":   &c.HTTP.Addr,
		"WS_BROKER":   &c.MQTT.WSBroker,
		"LOG_LEVEL":   &c.Log.Level,
		"LOG_FORMAT":  &c.Log.Format,
	}
	for key, dst := range strs {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SETTLE_MS":      &c.Timers.SettleMs,
		"ACTION1_MS":     &c.Timers.Action1Ms,
		"ACTION2_MS":     &c.Timers.Action2Ms,
		"TICK_PERIOD_US": &c.Timers.TickPeriodUs,
		"HEARTBEAT_SEC":  &c.MQTT.HeartbeatSec,
	}
	for key, dst := range ints {
		v := getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

// field names a config value in messages, in file order.
type field struct {
	name  string
	value int
}

// Validate returns hard errors for values the daemon cannot run with and
// warnings for values that silently disable a function (unbound lines or
// timer units).
func (c Config) Validate() (warnings []string, err error) {
	var errs []error
	if c.Timers.TickPeriodUs <= 0 {
		errs = append(errs, fmt.Errorf("timers.tick_period_us must be positive, got %d", c.Timers.TickPeriodUs))
	}
	for _, f := range []field{
		{"timers.settle_ms", c.Timers.SettleMs},
		{"timers.action1_ms", c.Timers.Action1Ms},
		{"timers.action2_ms", c.Timers.Action2Ms},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.value))
		}
	}
	switch gpio.Bias(c.GPIO.Bias) {
	case gpio.BiasPullUp, gpio.BiasPullDown, gpio.BiasDisabled, "":
	default:
		errs = append(errs, fmt.Errorf("gpio.bias: unknown value %q", c.GPIO.Bias))
	}
	switch c.Log.Format {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown value %q", c.Log.Format))
	}
	for _, key := range slices.Sorted(maps.Keys(c.GPIO.Offsets)) {
		if _, err := strconv.Atoi(key); err != nil {
			errs = append(errs, fmt.Errorf("gpio.offsets: key %q is not a line number", key))
		}
	}

	for _, f := range []field{
		{"lines.output1", c.Lines.Output1},
		{"lines.output2", c.Lines.Output2},
		{"lines.input1", c.Lines.Input1},
		{"lines.input2", c.Lines.Input2},
	} {
		if _, _, ok := gpio.Resolve(f.value); !ok {
			warnings = append(warnings, fmt.Sprintf("%s: line %d is outside 0-%d, role disabled", f.name, f.value, gpio.NumLines-1))
		}
	}
	for _, f := range []field{
		{"timers.settle_unit", c.Timers.SettleUnit},
		{"timers.action1_unit", c.Timers.Action1Unit},
		{"timers.action2_unit", c.Timers.Action2Unit},
	} {
		if timer.UnitFromIndex(f.value) == timer.UnitNone {
			warnings = append(warnings, fmt.Sprintf("%s: unit %d is outside 0-2, timer disabled", f.name, f.value))
		}
	}
	units := []int{c.Timers.SettleUnit, c.Timers.Action1Unit, c.Timers.Action2Unit}
	for i := range units {
		for j := i + 1; j < len(units); j++ {
			if units[i] == units[j] && timer.UnitFromIndex(units[i]) != timer.UnitNone {
				errs = append(errs, fmt.Errorf("timers: unit %d assigned twice", units[i]))
			}
		}
	}
	if c.ADC.Enabled {
		if _, ok := adc.ChannelFor(c.ADC.Line); !ok {
			warnings = append(warnings, fmt.Sprintf("adc.line: line %d has no analog channel, sampling disabled", c.ADC.Line))
		}
	}

	return warnings, errors.Join(errs...)
}

// Offsets converts the GPIO offset table to line numbers. Invalid keys are
// skipped; Validate reports them.
func (c Config) Offsets() map[int]int {
	out := make(map[int]int, len(c.GPIO.Offsets))
	for key, off := range c.GPIO.Offsets {
		if line, err := strconv.Atoi(key); err == nil {
			out[line] = off
		}
	}
	return out
}

// TickPeriod returns the timer tick period.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.Timers.TickPeriodUs) * time.Microsecond
}

// SettleDuration returns the debounce window.
func (c Config) SettleDuration() time.Duration {
	return time.Duration(c.Timers.SettleMs) * time.Millisecond
}

// ActionDuration returns the blink half-period of channel 1 or 2.
func (c Config) ActionDuration(channel int) time.Duration {
	if channel == 2 {
		return time.Duration(c.Timers.Action2Ms) * time.Millisecond
	}
	return time.Duration(c.Timers.Action1Ms) * time.Millisecond
}

// ResolveWSBroker converts MQTT.WSBroker into a concrete URL; empty means
// live updates are disabled.
func (c Config) ResolveWSBroker() string {
	ws := c.MQTT.WSBroker
	if ws == "off" || c.MQTT.Broker == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(c.MQTT.Broker)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

// Heartbeat returns the MQTT heartbeat interval; zero disables it.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.MQTT.HeartbeatSec) * time.Second
}
