package config

// Option customises Load.
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile replaces DefaultConfigPath. --config and the CONFIG
// environment variable still take precedence.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "SENSORSD"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// Provider names a sensor backend.
type Provider string

const (
	ProviderHwmon Provider = "hwmon"
	ProviderNVML  Provider = "nvml"
)

// IsValid returns whether the provider is known
func (p Provider) IsValid() bool {
	switch p {
	case ProviderHwmon, ProviderNVML:
		return true
	default:
		return false
	}
}

// SubmitMode selects where readings go.
type SubmitMode string

const (
	// SubmitLocal writes readings straight into the local store.
	SubmitLocal SubmitMode = "local"
	// SubmitNATS publishes readings to a NATS server.
	SubmitNATS SubmitMode = "nats"
)

// IsValid returns whether the mode is known
func (m SubmitMode) IsValid() bool {
	return m == SubmitLocal || m == SubmitNATS
}
