package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/sensorsd/internal/config"
	"codeberg.org/mutker/sensorsd/internal/daemon"
	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/gpu"
	"codeberg.org/mutker/sensorsd/internal/hwmon"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/pid"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"codeberg.org/mutker/sensorsd/internal/store"
	"codeberg.org/mutker/sensorsd/internal/submit"
	"codeberg.org/mutker/sensorsd/internal/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"
)

// app holds everything that must be closed on exit.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	provider  sensors.Provider
	catalog   *sensors.Catalog
	store     store.Store
	conn      *nats.Conn
	submitter submit.Submitter
	telemetry *telemetry.Service
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, logger.IsService())
	logger.Debug().Str("file", cfg.ConfigFile).Msg("Config loaded")

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	log := logger.Default()

	a, err := newApp(cfg, log)
	if err != nil {
		logError(log, errors.New().Wrap(errors.ErrInitApp, err), "Failed to initialize")
		return 1
	}

	if cfg.List {
		defer a.provider.Cleanup()
		if err := printCatalog(os.Stdout, a.catalog); err != nil {
			logError(log, errors.New().Wrap(errors.ErrListFailed, err), "Failed to list sensor features")
			return 1
		}
		return 0
	}

	if err := pid.Write(cfg.PIDFile); err != nil {
		logError(log, err, "Failed to write PID file")
		return 1
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.connect(ctx); err != nil {
		logError(log, err, "Failed to initialize")
		a.close()
		return 1
	}
	defer a.close()

	var opts []daemon.Option
	if a.telemetry != nil {
		opts = append(opts, daemon.WithCollector(a.telemetry))
	}
	d := daemon.New(a.catalog, a.submitter, cfg.IntervalDuration(), log, opts...)

	if cfg.Once {
		d.Once(ctx)
		return 0
	}

	go handleSignals(cancel, d, log)

	if err := d.Run(ctx); err != nil {
		logError(log, errors.New().Wrap(errors.ErrMainLoop, err), "Error in main loop")
		return 1
	}

	log.Info().Msg("Exiting...")

	return 0
}

func newApp(cfg *config.Config, log logger.Logger) (*app, error) {
	var options sensors.Options
	if err := options.ConfigureAll(cfg.SensorOptions()); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	catalogOpts := []sensors.CatalogOption{sensors.WithLogger(log.With("catalog"))}

	switch cfg.Sensors.Provider {
	case config.ProviderNVML:
		a.provider = gpu.New(nil, log.With("nvml"))
	default:
		a.provider = hwmon.New(cfg.Sensors.HwmonRoot, hwmon.WithLogger(log.With("hwmon")))
		catalogOpts = append(catalogOpts, sensors.WithNativeConfig(cfg.Sensors.ConfigFile))
	}

	a.catalog = sensors.NewCatalog(a.provider, options, catalogOpts...)

	return a, nil
}

// connect opens the store, the NATS connection and the metrics server as
// the configuration requires, and builds the submitter.
func (a *app) connect(ctx context.Context) error {
	cfg := a.cfg

	host, err := daemon.Hostname(ctx, cfg.Hostname)
	if err != nil {
		return err
	}
	a.log.Info().Str("host", host).Str("provider", string(cfg.Sensors.Provider)).Msg("Starting sensorsd")

	needStore := cfg.Submit.Mode == config.SubmitLocal || cfg.Submit.Receive
	a.store, err = store.New(store.Config{
		Enabled:      cfg.Store.Enabled && needStore,
		DBPath:       cfg.Store.DBPath,
		BackupDir:    cfg.Store.BackupDir,
		BatchSize:    cfg.Store.BatchSize,
		BatchTimeout: time.Duration(cfg.Store.BatchTimeout) * time.Second,
	}, a.log.With("store"))
	if err != nil {
		return err
	}

	writer := sensors.NewWriter(a.catalog.Options(), a.store)

	if cfg.Submit.Mode == config.SubmitNATS || cfg.Submit.Receive {
		a.conn, err = submit.Dial(cfg.Submit.URL, "sensorsd-"+host, a.log.With("nats"))
		if err != nil {
			return err
		}
	}

	if cfg.Submit.Receive {
		receiver := submit.NewReceiver(writer, a.log)
		if _, err := receiver.Subscribe(a.conn, cfg.Submit.Subject); err != nil {
			return err
		}
	}

	switch cfg.Submit.Mode {
	case config.SubmitNATS:
		a.submitter = submit.NewPublisher(a.conn, cfg.Submit.Subject, host, a.log)
	default:
		a.submitter = submit.NewLocal(host, writer)
	}

	if cfg.Telemetry.Enabled {
		a.telemetry, err = telemetry.NewService(telemetry.Config{
			Enabled: true,
			Address: cfg.Telemetry.Address,
			Path:    cfg.Telemetry.Path,
		}, a.log.With("telemetry"))
		if err != nil {
			return err
		}
	}

	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	if a.telemetry != nil {
		if err := a.telemetry.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to stop telemetry")
		}
	}

	if a.submitter != nil {
		if err := a.submitter.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close submitter")
		}
	}

	// Publisher.Close drains the connection already.
	if a.conn != nil && !a.conn.IsClosed() && !a.conn.IsDraining() {
		if err := a.conn.Drain(); err != nil {
			a.conn.Close()
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close sample store")
		}
	}

	a.provider.Cleanup()
}

func handleSignals(cancel context.CancelFunc, d *daemon.Daemon, log logger.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigs {
		if sig == syscall.SIGHUP {
			log.Info().Msg("Received SIGHUP, rebuilding sensor catalog")
			d.Reload()
			continue
		}

		log.Info().Str("signal", sig.String()).Msg("Received termination signal")
		signal.Stop(sigs)
		cancel()

		return
	}
}

func logError(log logger.Logger, err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		log.ErrorWithCode(coded).Msg(msg)
		return
	}
	log.Error().Err(err).Msg(msg)
}
