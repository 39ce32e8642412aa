package sensors

import (
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

// Recognised option keys, matched case-insensitively.
const (
	KeySensor               = "Sensor"
	KeyIgnoreSelected       = "IgnoreSelected"
	KeyExtendedSensorNaming = "ExtendedSensorNaming"
)

// Options carries the per-instance settings shared by the catalog and the
// writer.
type Options struct {
	Selection SelectionList
	Scheme    Scheme
}

// ConfigKeys lists the keys Configure understands.
func ConfigKeys() []string {
	return []string{KeySensor, KeyIgnoreSelected, KeyExtendedSensorNaming}
}

// Configure applies one key/value pair. Unknown keys return
// ErrUnknownConfigKey and leave the options untouched; the caller decides
// whether that is fatal.
func (o *Options) Configure(key, value string) error {
	switch {
	case strings.EqualFold(key, KeySensor):
		o.Selection.Patterns = append(o.Selection.Patterns, value)
	case strings.EqualFold(key, KeyIgnoreSelected):
		o.Selection.Invert = isTrue(value)
	case strings.EqualFold(key, KeyExtendedSensorNaming):
		if isTrue(value) {
			o.Scheme = Extended
		} else {
			o.Scheme = Legacy
		}
	default:
		return errors.New().WithData(ErrUnknownConfigKey, key)
	}

	return nil
}

// ConfigureAll applies pairs in order and stops at the first failure.
func (o *Options) ConfigureAll(pairs [][2]string) error {
	for _, kv := range pairs {
		if err := o.Configure(kv[0], kv[1]); err != nil {
			return err
		}
	}

	return nil
}

func isTrue(value string) bool {
	return strings.EqualFold(value, "True") ||
		strings.EqualFold(value, "Yes") ||
		strings.EqualFold(value, "On")
}
