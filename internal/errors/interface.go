// Package errors provides coded errors shared by all sensorsd packages.
// Packages declare their own prefixed ErrorCode values in an errors.go file
// and build errors through a Factory.
package errors

// ErrorCode identifies a failure independently of its message.
type ErrorCode string

// Error is an error carrying an ErrorCode and optional structured data.
// Derived errors keep the code and the wrapped cause.
type Error interface {
	error
	Code() ErrorCode
	GetData() any
	Unwrap() error

	WithMessage(msg string) Error
	WithData(data any) Error
}

// Factory builds coded errors. A zero cause or message falls back to the
// code's registered message.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

// CodeOf returns the outermost code in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var coded Error
	if As(err, &coded) {
		return coded.Code(), true
	}

	return "", false
}
