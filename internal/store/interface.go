// Package store persists sensor records into SQLite. It is the Sink behind
// the sensors Writer: every record lands in one table per value schema,
// keyed by host, series file and timestamp.
package store

import "codeberg.org/mutker/sensorsd/internal/sensors"

// Store is a sensors.Sink with a lifecycle.
type Store interface {
	sensors.Sink
	// Flush writes buffered samples immediately.
	Flush() error
	// Samples returns the stored samples of one series, oldest first.
	Samples(host, file string, schema sensors.ValueSchema) ([]Sample, error)
	Close() error
}

// Sample is one stored value.
type Sample struct {
	Host      string
	File      string
	Timestamp int64
	Value     float64
}
