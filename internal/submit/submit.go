// Package submit delivers formatted readings either to the local writer or
// across NATS to a receiving collector.
package submit

import (
	"sync"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/sensors"
)

// Module is the submission module name used for every reading.
const Module = "sensors"

// Submitter accepts one reading at a time.
type Submitter interface {
	Submit(module, instance, record string) error
	Close() error
}

// Local hands readings straight to a Writer.
type Local struct {
	host   string
	writer *sensors.Writer

	mu     sync.Mutex
	closed bool
}

func NewLocal(host string, w *sensors.Writer) *Local {
	return &Local{host: host, writer: w}
}

func (l *Local) Submit(module, instance, record string) error {
	errFactory := errors.New()

	if module != Module {
		return errFactory.WithData(ErrUnknownModule, module)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errFactory.New(ErrClosed)
	}

	return l.writer.Write(l.host, instance, record)
}

// Close stops accepting readings. The writer's sink is owned by the caller.
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	return nil
}
