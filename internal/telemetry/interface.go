// Package telemetry exports scan cycle statistics as Prometheus metrics and
// serves them over HTTP.
package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *ScanSnapshot) error
	Close() error
}

// ScanSnapshot summarises one scan cycle.
type ScanSnapshot struct {
	Timestamp time.Time
	Duration  time.Duration
	Catalog   CatalogMetrics
	Cycle     CycleMetrics
}

type CatalogMetrics struct {
	Generation uint64
	Entries    int
}

type CycleMetrics struct {
	Emitted        int
	ReadFailures   int
	Overflows      int
	Filtered       int
	SubmitFailures int
	Abandoned      bool
}
