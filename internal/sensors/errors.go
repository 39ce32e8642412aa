package sensors

import "codeberg.org/mutker/sensorsd/internal/errors"

const (
	// Provider Errors
	ErrProviderUnavailable = errors.ErrorCode("sensors_provider_unavailable")
	ErrNativeConfig        = errors.ErrorCode("sensors_native_config_failed")

	// Naming Errors
	ErrIdentifierOverflow = errors.ErrorCode("sensors_identifier_overflow")
	ErrInvalidLabelTable  = errors.ErrorCode("sensors_invalid_label_table")

	// Configuration Errors
	ErrUnknownConfigKey = errors.ErrorCode("sensors_unknown_config_key")

	// Catalog Errors
	ErrStaleRef = errors.ErrorCode("sensors_stale_ref")

	// Record Errors
	ErrInvalidRecord = errors.ErrorCode("sensors_invalid_record")
)
