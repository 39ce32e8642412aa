package telemetry

import (
	"net"
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

const (
	defaultAddress = "127.0.0.1:9465"
	defaultPath    = "/metrics"
)

type Config struct {
	Enabled bool
	// Address is the listen address of the metrics server.
	Address string
	Path    string
}

func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Address: defaultAddress,
		Path:    defaultPath,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}

	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errFactory.Wrap(ErrInvalidAddress, err)
	}

	if !strings.HasPrefix(c.Path, "/") || c.Path == "/health" {
		return errFactory.WithData(ErrInvalidConfig, c.Path)
	}

	return nil
}
