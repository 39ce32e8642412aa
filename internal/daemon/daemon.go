// Package daemon drives the sensor catalog: it rebuilds it on start and on
// reload, runs a scan cycle every interval, and hands each reading to a
// submitter.
package daemon

import (
	"context"
	"os"
	"time"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"codeberg.org/mutker/sensorsd/internal/submit"
	"codeberg.org/mutker/sensorsd/internal/telemetry"
	"github.com/shirou/gopsutil/v3/host"
)

// Cycle is the outcome of one scan cycle.
type Cycle struct {
	Stats          sensors.CycleStats
	SubmitFailures int
	Duration       time.Duration
}

type Daemon struct {
	catalog   *sensors.Catalog
	submitter submit.Submitter
	collector telemetry.Collector
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time
	reload    chan struct{}
}

type Option func(*Daemon)

// WithCollector records every cycle with c.
func WithCollector(c telemetry.Collector) Option {
	return func(d *Daemon) {
		d.collector = c
	}
}

// WithClock replaces time.Now for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		d.now = now
	}
}

func New(catalog *sensors.Catalog, submitter submit.Submitter, interval time.Duration, log logger.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		catalog:   catalog,
		submitter: submitter,
		interval:  interval,
		log:       log.With("daemon"),
		now:       time.Now,
		reload:    make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Reload asks the running loop to rebuild the catalog before its next
// cycle. Requests made while one is pending are merged.
func (d *Daemon) Reload() {
	select {
	case d.reload <- struct{}{}:
	default:
	}
}

// Run rebuilds the catalog and scans every interval until ctx is done.
// A provider failure leaves the catalog empty; the loop keeps running so
// that a later reload can recover.
func (d *Daemon) Run(ctx context.Context) error {
	if d.interval <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, d.interval)
	}

	d.rebuild()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info().Dur("interval", d.interval).Msg("Collecting sensor readings")

	d.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.reload:
			d.log.Info().Msg("Reloading sensor catalog")
			d.rebuild()
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// Once rebuilds the catalog and performs a single scan cycle.
func (d *Daemon) Once(ctx context.Context) Cycle {
	d.rebuild()
	return d.RunOnce(ctx)
}

func (d *Daemon) rebuild() {
	if err := d.catalog.Rebuild(); err != nil {
		d.log.Warn().Err(err).Msg("Catalog rebuild failed, no readings until the next reload")
	}
}

// RunOnce performs a single scan cycle over the current catalog.
func (d *Daemon) RunOnce(ctx context.Context) Cycle {
	start := time.Now()
	failures := 0

	for reading := range d.catalog.Collect(d.now) {
		if ctx.Err() != nil {
			break
		}

		if err := d.submitter.Submit(submit.Module, reading.Identifier, reading.Record()); err != nil {
			failures++
			d.log.Debug().Err(err).Str("instance", reading.Identifier).Msg("Submit failed")
		}
	}

	cycle := Cycle{
		Stats:          d.catalog.LastCycle(),
		SubmitFailures: failures,
		Duration:       time.Since(start),
	}

	if failures > 0 {
		d.log.Warn().Int("failures", failures).Int("emitted", cycle.Stats.Emitted).Msg("Some readings could not be submitted")
	}

	d.log.Debug().
		Uint64("generation", cycle.Stats.Generation).
		Int("emitted", cycle.Stats.Emitted).
		Int("read_failures", cycle.Stats.ReadFailures).
		Int("filtered", cycle.Stats.Filtered).
		Dur("duration", cycle.Duration).
		Msg("Scan cycle complete")

	d.record(ctx, start, cycle)

	return cycle
}

func (d *Daemon) record(ctx context.Context, start time.Time, cycle Cycle) {
	if d.collector == nil {
		return
	}

	snapshot := &telemetry.ScanSnapshot{
		Timestamp: start,
		Duration:  cycle.Duration,
		Catalog: telemetry.CatalogMetrics{
			Generation: d.catalog.Generation(),
			Entries:    d.catalog.Len(),
		},
		Cycle: telemetry.CycleMetrics{
			Emitted:        cycle.Stats.Emitted,
			ReadFailures:   cycle.Stats.ReadFailures,
			Overflows:      cycle.Stats.Overflows,
			Filtered:       cycle.Stats.Filtered,
			SubmitFailures: cycle.SubmitFailures,
			Abandoned:      cycle.Stats.Abandoned,
		},
	}

	if err := d.collector.Record(ctx, snapshot); err != nil {
		d.log.Warn().Err(err).Msg("Failed to record telemetry")
	}
}

// Hostname returns configured when set, otherwise the host name reported
// by the system.
func Hostname(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	if info, err := host.InfoWithContext(ctx); err == nil && info.Hostname != "" {
		return info.Hostname, nil
	}

	name, err := os.Hostname()
	if err != nil {
		return "", errors.New().Wrap(errors.ErrInitApp, err)
	}

	return name, nil
}
