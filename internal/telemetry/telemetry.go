package telemetry

import (
	"context"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sensorsd"

type metrics struct {
	cycles         prometheus.Counter
	abandoned      prometheus.Counter
	readings       *prometheus.CounterVec
	entries        prometheus.Gauge
	generation     prometheus.Gauge
	lastCycle      prometheus.Gauge
	cycleDuration  prometheus.Histogram
	submitFailures prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycles_total",
			Help:      "Total number of scan cycles",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "abandoned_cycles_total",
			Help:      "Scan cycles cut short by a catalog rebuild",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "readings_total",
			Help:      "Catalog entries visited, by outcome",
		}, []string{"outcome"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "entries",
			Help:      "Features in the current catalog",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "generation",
			Help:      "Catalog rebuild counter",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last completed scan cycle",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "failures_total",
			Help:      "Readings the submitter rejected",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.cycles, m.abandoned, m.readings, m.entries,
		m.generation, m.lastCycle, m.cycleDuration, m.submitFailures,
	}
}

// Service records scan snapshots into a private Prometheus registry.
type Service struct {
	registry *prometheus.Registry
	metrics  *metrics
	server   *Server
	log      logger.Logger
}

// NewService registers the scan metrics. When cfg is enabled the HTTP
// server is started as well.
func NewService(cfg Config, log logger.Logger) (*Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	s := &Service{
		registry: prometheus.NewRegistry(),
		metrics:  newMetrics(),
		log:      log,
	}

	for _, c := range s.metrics.collectors() {
		if err := s.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	if !cfg.Enabled {
		log.Debug().Msg("Telemetry server disabled")
		return s, nil
	}

	s.server = NewServer(cfg.Address, cfg.Path, s.registry)
	if err := s.server.Start(); err != nil {
		return nil, err
	}

	log.Info().Str("address", s.server.Address()).Msg("Telemetry server listening")

	return s, nil
}

// Registry returns the registry holding the scan metrics.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Server returns the running HTTP server, or nil when disabled.
func (s *Service) Server() *Server {
	return s.server
}

func (s *Service) Record(ctx context.Context, snapshot *ScanSnapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	m := s.metrics
	m.cycles.Inc()
	if snapshot.Cycle.Abandoned {
		m.abandoned.Inc()
	}

	m.readings.WithLabelValues("emitted").Add(float64(snapshot.Cycle.Emitted))
	m.readings.WithLabelValues("read_failed").Add(float64(snapshot.Cycle.ReadFailures))
	m.readings.WithLabelValues("overflow").Add(float64(snapshot.Cycle.Overflows))
	m.readings.WithLabelValues("filtered").Add(float64(snapshot.Cycle.Filtered))
	m.submitFailures.Add(float64(snapshot.Cycle.SubmitFailures))

	m.entries.Set(float64(snapshot.Catalog.Entries))
	m.generation.Set(float64(snapshot.Catalog.Generation))
	m.lastCycle.Set(float64(snapshot.Timestamp.Unix()))
	m.cycleDuration.Observe(snapshot.Duration.Seconds())

	return nil
}

func (s *Service) Close() error {
	errFactory := errors.New()

	if s.server == nil {
		return nil
	}

	if err := s.server.Stop(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	return nil
}
