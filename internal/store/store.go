package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	_ "github.com/mattn/go-sqlite3"
)

// maxPendingBatches bounds the buffer while flushes keep failing. The
// oldest samples are dropped first.
const maxPendingBatches = 16

type pending struct {
	sample Sample
	table  seriesTable
}

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []pending
	closed        bool
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// No-op implementation
type noopStore struct{}

// New opens the store described by cfg. A disabled store accepts and drops
// every record.
func New(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Sample store disabled, using no-op store")
		return noopStore{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Sample store initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]pending, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

// Update buffers one record. The file gets the series extension appended.
func (r *repository) Update(host, file, record string, schema sensors.ValueSchema) error {
	errFactory := errors.New()

	table, err := tableFor(schema)
	if err != nil {
		return err
	}

	timestamp, value, err := sensors.ParseRecord(record)
	if err != nil {
		return errFactory.Wrap(ErrInvalidSample, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errFactory.New(ErrClosed)
	}

	if limit := r.cfg.BatchSize * maxPendingBatches; len(r.buffer) >= limit {
		dropped := len(r.buffer) - limit + 1
		r.buffer = append(r.buffer[:0], r.buffer[dropped:]...)
		r.logger.Warn().Int("dropped", dropped).Msg("Sample buffer full, dropping oldest samples")
	}

	r.buffer = append(r.buffer, pending{
		sample: Sample{
			Host:      host,
			File:      file + seriesExtension,
			Timestamp: timestamp,
			Value:     value,
		},
		table: table,
	})

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flush()
}

func (r *repository) Samples(host, file string, schema sensors.ValueSchema) ([]Sample, error) {
	errFactory := errors.New()

	table, err := tableFor(schema)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(selectSQL(table), host, file+seriesExtension)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Host, &s.File, &s.Timestamp, &s.Value); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return samples, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for the flusher to finish its final flush
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()
	if flushErr != nil {
		r.logger.Warn().Err(flushErr).Msg("Dropping unflushed samples")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Sample store closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu. A row the
// database refuses is logged and dropped; when the transaction itself
// fails the buffer is kept for the next attempt.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	statements := map[seriesTable]*sql.Stmt{}
	defer func() {
		for _, stmt := range statements {
			stmt.Close()
		}
	}()

	rejected := 0

	for _, p := range r.buffer {
		stmt, ok := statements[p.table]
		if !ok {
			stmt, err = tx.Prepare(insertSQL(p.table))
			if err != nil {
				r.logger.Error().Err(err).Msg("Failed to prepare statement")
				r.rollback(tx)
				return errFactory.Wrap(ErrTransactionFailed, err)
			}
			statements[p.table] = stmt
		}

		if _, err := stmt.Exec(p.sample.Host, p.sample.File, p.sample.Timestamp, p.sample.Value); err != nil {
			rejected++
			r.logger.Warn().
				Err(err).
				Str("host", p.sample.Host).
				Str("file", p.sample.File).
				Int64("timestamp", p.sample.Timestamp).
				Msg("Dropping sample rejected by database")
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)-rejected).Int("rejected", rejected).Msg("Flushed samples to database")
	r.buffer = r.buffer[:0]

	return nil
}

func (r *repository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to roll back transaction")
	}
}

// No-op implementation
func (noopStore) Update(string, string, string, sensors.ValueSchema) error {
	return nil
}

func (noopStore) Flush() error {
	return nil
}

func (noopStore) Samples(string, string, sensors.ValueSchema) ([]Sample, error) {
	return nil, nil
}

func (noopStore) Close() error {
	return nil
}
