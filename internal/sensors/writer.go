package sensors

import (
	"fmt"
	"strings"
)

// ValueSchema names the stored series layout. Column is the single value
// column of the series.
type ValueSchema struct {
	Name   string
	Column string
}

var (
	// GenericSchema stores any reading under "value".
	GenericSchema = ValueSchema{Name: "generic", Column: "value"}
	// VoltageSchema stores voltages under "voltage".
	VoltageSchema = ValueSchema{Name: "voltage", Column: "voltage"}
)

const (
	legacyFileTemplate   = "sensors-%s"
	extendedFileTemplate = "lm_sensors-%s"
)

// Sink persists formatted records. file carries no extension; the sink
// appends its own.
type Sink interface {
	Update(host, file, record string, schema ValueSchema) error
}

// Writer maps submitted records onto sink files and schemas.
type Writer struct {
	options Options
	sink    Sink
}

// NewWriter returns a Writer using the same options as the catalog.
func NewWriter(options Options, sink Sink) *Writer {
	return &Writer{
		options: options,
		sink:    sink,
	}
}

// FileName returns the sink file for instance under scheme.
func FileName(instance string, scheme Scheme) string {
	if scheme == Extended {
		return fmt.Sprintf(extendedFileTemplate, instance)
	}

	return fmt.Sprintf(legacyFileTemplate, instance)
}

// SchemaFor picks the value schema for instance. The boolean is false when
// an extended instance carries no category segment.
func SchemaFor(instance string, scheme Scheme) (ValueSchema, bool) {
	if scheme != Extended {
		return GenericSchema, true
	}

	i := strings.LastIndexByte(instance, '/')
	if i < 0 {
		return ValueSchema{}, false
	}

	if strings.HasPrefix(instance[i+1:], Voltage.Suffix()) {
		return VoltageSchema, true
	}

	return GenericSchema, true
}

// Write stores record for instance. Instances rejected by the selection
// list, file names at or over MaxIdentifierLen and extended instances
// without a category segment are dropped without error. Sink failures are
// returned.
func (w *Writer) Write(host, instance, record string) error {
	if !w.options.Selection.IsAccepted(instance) {
		return nil
	}

	file := FileName(instance, w.options.Scheme)
	if len(file) >= MaxIdentifierLen {
		return nil
	}

	schema, ok := SchemaFor(instance, w.options.Scheme)
	if !ok {
		return nil
	}

	return w.sink.Update(host, file, record, schema)
}
