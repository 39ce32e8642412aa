// Package config loads sensorsd settings from defaults, a TOML file,
// SENSORSD_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/sensorsd.toml"
	DefaultEnvPrefix  = "SENSORSD"
	DefaultInterval   = 10
	DefaultLogLevel   = "info"
	DefaultSubject    = "sensorsd"
)

type Config struct {
	// Interval is the scan period in seconds.
	Interval  int             `mapstructure:"interval"`
	LogLevel  string          `mapstructure:"log_level"`
	Hostname  string          `mapstructure:"hostname"`
	PIDFile   string          `mapstructure:"pid_file"`
	Sensors   SensorsConfig   `mapstructure:"sensors"`
	Store     StoreConfig     `mapstructure:"store"`
	Submit    SubmitConfig    `mapstructure:"submit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Command-line only.
	List bool `mapstructure:"-"`
	Once bool `mapstructure:"-"`
	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

type SensorsConfig struct {
	Provider   Provider `mapstructure:"provider"`
	HwmonRoot  string   `mapstructure:"hwmon_root"`
	ConfigFile string   `mapstructure:"config_file"`
	// Options are ordered key/value pairs, for example
	// [["Sensor", "it87-temp1"], ["IgnoreSelected", "true"]].
	Options [][]string `mapstructure:"options"`
}

type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DBPath    string `mapstructure:"db_path"`
	BackupDir string `mapstructure:"backup_dir"`
	BatchSize int    `mapstructure:"batch_size"`
	// BatchTimeout is in seconds.
	BatchTimeout int `mapstructure:"batch_timeout"`
}

type SubmitConfig struct {
	Mode    SubmitMode `mapstructure:"mode"`
	URL     string     `mapstructure:"url"`
	Subject string     `mapstructure:"subject"`
	// Receive also subscribes to Subject and stores what arrives.
	Receive bool `mapstructure:"receive"`
}

type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// IntervalDuration returns Interval as a time.Duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// SensorOptions returns the sensor options as pairs.
func (c *Config) SensorOptions() [][2]string {
	pairs := make([][2]string, 0, len(c.Sensors.Options))
	for _, kv := range c.Sensors.Options {
		pairs = append(pairs, [2]string{kv[0], kv[1]})
	}

	return pairs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("hostname", "")
	v.SetDefault("pid_file", "")

	v.SetDefault("sensors.provider", string(ProviderHwmon))
	v.SetDefault("sensors.hwmon_root", "/sys/class/hwmon")
	v.SetDefault("sensors.config_file", "/etc/sensors3.conf")
	v.SetDefault("sensors.options", [][]string{})

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.db_path", "/var/lib/sensorsd/samples.db")
	v.SetDefault("store.backup_dir", "/var/lib/sensorsd/backups")
	v.SetDefault("store.batch_size", 64)
	v.SetDefault("store.batch_timeout", 30)

	v.SetDefault("submit.mode", string(SubmitLocal))
	v.SetDefault("submit.url", "nats://127.0.0.1:4222")
	v.SetDefault("submit.subject", DefaultSubject)
	v.SetDefault("submit.receive", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.address", "127.0.0.1:9465")
	v.SetDefault("telemetry.path", "/metrics")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sensorsd", pflag.ContinueOnError)

	fs.StringP("config", "c", "", "Path to the configuration file")
	fs.IntP("interval", "i", DefaultInterval, "Seconds between scans")
	fs.StringP("log-level", "l", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("hostname", "", "Host name attached to every record")
	fs.String("pid-file", "", "PID file path")
	fs.StringP("provider", "p", string(ProviderHwmon), "Sensor provider (hwmon, nvml)")
	fs.String("hwmon-root", "/sys/class/hwmon", "Root of the sysfs hwmon class")
	fs.String("sensors-config", "/etc/sensors3.conf", "lm-sensors configuration file, empty for none")
	fs.Bool("list", false, "Print the sensor catalog and exit")
	fs.Bool("once", false, "Run a single scan cycle and exit")

	return fs
}

var flagKeys = map[string]string{
	"interval":       "interval",
	"log-level":      "log_level",
	"hostname":       "hostname",
	"pid-file":       "pid_file",
	"provider":       "sensors.provider",
	"hwmon-root":     "sensors.hwmon_root",
	"sensors-config": "sensors.config_file",
}

// Load parses args (without the program name) and builds the configuration.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		configPath: DefaultConfigPath,
		envPrefix:  DefaultEnvPrefix,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, explicit := o.configPath, false
	if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" {
		path, explicit = env, true
	}
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		path, explicit = flagPath, true
	}

	cfg := &Config{}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")

		if err := v.ReadInConfig(); err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
			logger.Debug().Str("path", path).Msg("No configuration file, using defaults")
		} else {
			cfg.ConfigFile = path
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	cfg.List, _ = fs.GetBool("list")
	cfg.Once, _ = fs.GetBool("once")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if !c.Sensors.Provider.IsValid() {
		return errFactory.WithData(errors.ErrInvalidProvider, c.Sensors.Provider)
	}

	for i, kv := range c.Sensors.Options {
		if len(kv) != 2 {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Field string
				Index int
			}{Field: "sensors.options", Index: i})
		}
	}

	if !c.Submit.Mode.IsValid() {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value string
		}{Field: "submit.mode", Value: string(c.Submit.Mode)})
	}

	if (c.Submit.Mode == SubmitNATS || c.Submit.Receive) && c.Submit.URL == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "submit.url")
	}

	if c.Store.BatchTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{Field: "store.batch_timeout", Value: c.Store.BatchTimeout})
	}

	return nil
}
