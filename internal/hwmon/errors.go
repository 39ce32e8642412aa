package hwmon

import "codeberg.org/mutker/sensorsd/internal/errors"

const (
	// Discovery Errors
	ErrRootUnavailable = errors.ErrorCode("hwmon_root_unavailable")
	ErrUnknownChip     = errors.ErrorCode("hwmon_unknown_chip")

	// Native Config Errors
	ErrParseConfig = errors.ErrorCode("hwmon_parse_config_failed")

	// Read Errors
	ErrReadAttribute = errors.ErrorCode("hwmon_read_attribute_failed")
)
