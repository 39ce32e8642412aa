package telemetry

import "codeberg.org/mutker/sensorsd/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig  = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidAddress = errors.ErrorCode("telemetry_invalid_address")

	// Collection Errors
	ErrInvalidSnapshot = errors.ErrorCode("telemetry_invalid_snapshot")
	ErrRegisterFailed  = errors.ErrorCode("telemetry_register_failed")

	// Server Errors
	ErrServerRunning = errors.ErrorCode("telemetry_server_running")
	ErrListenFailed  = errors.ErrorCode("telemetry_listen_failed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrorCode("telemetry_operation_timeout")
	ErrServiceShutdown  = errors.ErrorCode("telemetry_service_shutdown_failed")
)
