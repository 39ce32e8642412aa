package submit

import "codeberg.org/mutker/sensorsd/internal/errors"

const (
	ErrUnknownModule  = errors.ErrorCode("submit_unknown_module")
	ErrClosed         = errors.ErrorCode("submit_closed")
	ErrConnectFailed  = errors.ErrorCode("submit_connect_failed")
	ErrPublishFailed  = errors.ErrorCode("submit_publish_failed")
	ErrInvalidMessage = errors.ErrorCode("submit_invalid_message")
	ErrSubscribe      = errors.ErrorCode("submit_subscribe_failed")
)
