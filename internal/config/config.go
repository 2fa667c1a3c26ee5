// Package config loads daemon settings from defaults, an optional YAML file,
// the environment (WATERLEVEL_*, with .env support) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/water-level/internal/gpio"
	"github.com/sweeney/water-level/internal/logger"
	"github.com/sweeney/water-level/internal/logic"
	"github.com/sweeney/water-level/internal/sonar"
	"github.com/sweeney/water-level/internal/telemetry"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix is prepended to every environment override, e.g.
// WATERLEVEL_POLL_INTERVAL=10s.
const EnvPrefix = "WATERLEVEL"

// BrokerOff disables MQTT publishing when used as the broker address.
const BrokerOff = "off"

type PollConfig struct {
	Samples       int           `mapstructure:"samples"`
	Interval      time.Duration `mapstructure:"interval"`
	PulseDelay    time.Duration `mapstructure:"pulse_delay"`
	SampleTimeout time.Duration `mapstructure:"sample_timeout"`
}

type SensorConfig struct {
	Temperature float64 `mapstructure:"temperature"` // °C, for the speed of sound
}

type ThresholdConfig struct {
	Low  float64 `mapstructure:"low"`
	High float64 `mapstructure:"high"`
}

type TankConfig struct {
	Height float64         `mapstructure:"height"`
	Upper  ThresholdConfig `mapstructure:"upper"`
	Lower  ThresholdConfig `mapstructure:"lower"`
}

type TelemetryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type GPIOConfig struct {
	Chip       string `mapstructure:"chip"`
	Trigger    int    `mapstructure:"trigger"`
	Echo       int    `mapstructure:"echo"`
	RelayUpper int    `mapstructure:"relay_upper"`
	RelayLower int    `mapstructure:"relay_lower"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full daemon configuration.
type Config struct {
	Poll      PollConfig      `mapstructure:"poll"`
	Sensor    SensorConfig    `mapstructure:"sensor"`
	Tank      TankConfig      `mapstructure:"tank"`
	Schedule  []string        `mapstructure:"schedule"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	GPIO      GPIOConfig      `mapstructure:"gpio"`
	HTTP      string          `mapstructure:"http"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Heartbeat time.Duration   `mapstructure:"heartbeat"`
	Log       LogConfig       `mapstructure:"log"`

	// PrintState takes one reading, prints it and exits. Flag only.
	PrintState bool `mapstructure:"-"`
	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll.samples", 10)
	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("poll.pulse_delay", 100*time.Millisecond)
	v.SetDefault("poll.sample_timeout", time.Second)
	v.SetDefault("sensor.temperature", 20.0)
	v.SetDefault("tank.height", 2000.0)
	v.SetDefault("tank.upper.low", 8.0)
	v.SetDefault("tank.upper.high", 2.0)
	v.SetDefault("tank.lower.low", 8.0)
	v.SetDefault("tank.lower.high", 2.0)
	v.SetDefault("schedule", []string{"00:00-24:00"})
	v.SetDefault("telemetry.capacity", telemetry.DefaultCapacity)
	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.trigger", gpio.DefaultTrigger)
	v.SetDefault("gpio.echo", gpio.DefaultEcho)
	v.SetDefault("gpio.relay_upper", gpio.DefaultRelayUpper)
	v.SetDefault("gpio.relay_lower", gpio.DefaultRelayLower)
	v.SetDefault("http", ":8080")
	v.SetDefault("mqtt.broker", "tcp://192.168.1.200:1883")
	v.SetDefault("mqtt.client_id", "water-level")
	v.SetDefault("heartbeat", 15*time.Minute)
	v.SetDefault("log.level", "info")
}

// flagBindings maps command-line flags onto config keys.
var flagBindings = map[string]string{
	"broker":    "mqtt.broker",
	"http":      "http",
	"heartbeat": "heartbeat",
	"interval":  "poll.interval",
	"samples":   "poll.samples",
	"schedule":  "schedule",
	"log-level": "log.level",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("water-level", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	fs.Bool("print-state", false, "Take one reading, print it and exit")
	fs.String("broker", "tcp://192.168.1.200:1883", `MQTT broker address ("off" disables)`)
	fs.String("http", ":8080", "HTTP dashboard address (empty to disable)")
	fs.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.Duration("interval", 5*time.Second, "Update interval")
	fs.Int("samples", 10, "Samples per update interval")
	fs.StringSlice("schedule", []string{"00:00-24:00"}, "Fill windows, HH:MM-HH:MM local time")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	return fs
}

// Load builds a Config from args (without the program name). Precedence,
// highest first: flags, environment, config file, defaults.
func Load(args []string) (*Config, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	file, _ := flags.GetString("config")
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.PrintState, _ = flags.GetBool("print-state")
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks every field and returns all problems joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Poll.Samples <= 0 {
		errs = append(errs, invalid("poll.samples must be positive, got %d", c.Poll.Samples))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, invalid("poll.interval must be positive, got %v", c.Poll.Interval))
	}
	if c.Poll.PulseDelay < 0 {
		errs = append(errs, invalid("poll.pulse_delay must not be negative, got %v", c.Poll.PulseDelay))
	}
	if c.Poll.SampleTimeout <= 0 {
		errs = append(errs, invalid("poll.sample_timeout must be positive, got %v", c.Poll.SampleTimeout))
	}
	if c.Tank.Height <= 0 {
		errs = append(errs, invalid("tank.height must be positive, got %g", c.Tank.Height))
	}
	for name, th := range map[string]ThresholdConfig{"upper": c.Tank.Upper, "lower": c.Tank.Lower} {
		if th.High > th.Low {
			errs = append(errs, invalid("tank.%s.high (%g) must not exceed tank.%s.low (%g)", name, th.High, name, th.Low))
		}
	}
	if len(c.Schedule) == 0 {
		errs = append(errs, invalid("schedule must have at least one period"))
	} else if _, err := logic.ParseSchedule(c.Schedule); err != nil {
		errs = append(errs, invalid("schedule: %v", err))
	}
	if c.Telemetry.Capacity <= 0 {
		errs = append(errs, invalid("telemetry.capacity must be positive, got %d", c.Telemetry.Capacity))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, invalid("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, invalid(`mqtt.broker must be set (use "off" to disable)`))
	}
	if !logger.ValidLevel(c.Log.Level) {
		errs = append(errs, invalid("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	if c.GPIO.Chip == "" {
		errs = append(errs, invalid("gpio.chip must be set"))
	}
	pins := map[int]string{}
	for name, pin := range map[string]int{
		"trigger":     c.GPIO.Trigger,
		"echo":        c.GPIO.Echo,
		"relay_upper": c.GPIO.RelayUpper,
		"relay_lower": c.GPIO.RelayLower,
	} {
		if pin < 0 {
			errs = append(errs, invalid("gpio.%s must not be negative, got %d", name, pin))
			continue
		}
		if other, dup := pins[pin]; dup {
			errs = append(errs, invalid("gpio.%s and gpio.%s share line %d", other, name, pin))
		}
		pins[pin] = name
	}

	return errors.Join(errs...)
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return !strings.EqualFold(c.MQTT.Broker, BrokerOff)
}

// Logic returns the controller settings. The schedule must already be valid.
func (c *Config) Logic() (logic.Config, error) {
	schedule, err := logic.ParseSchedule(c.Schedule)
	if err != nil {
		return logic.Config{}, fmt.Errorf("%w: schedule: %v", ErrInvalid, err)
	}
	return logic.Config{
		Upper:      logic.Thresholds{Low: c.Tank.Upper.Low, High: c.Tank.Upper.High},
		Lower:      logic.Thresholds{Low: c.Tank.Lower.Low, High: c.Tank.Lower.High},
		Schedule:   schedule,
		TankHeight: c.Tank.Height,
	}, nil
}

// Sonar returns the sampling settings.
func (c *Config) Sonar() sonar.Config {
	return sonar.Config{
		Samples:       c.Poll.Samples,
		Interval:      c.Poll.Interval,
		PulseDelay:    c.Poll.PulseDelay,
		SampleTimeout: c.Poll.SampleTimeout,
	}
}

// Pins returns the GPIO wiring.
func (c *Config) Pins() gpio.Pins {
	return gpio.Pins{
		Chip:       c.GPIO.Chip,
		Trigger:    c.GPIO.Trigger,
		Echo:       c.GPIO.Echo,
		RelayUpper: c.GPIO.RelayUpper,
		RelayLower: c.GPIO.RelayLower,
	}
}
