package store

import (
	"time"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/sensorsd/samples.db"
	defaultBackupDir    = "/var/lib/sensorsd/backups"
	defaultBatchSize    = 64
	defaultBatchTimeout = 30 * time.Second
)

type Config struct {
	DBPath    string
	BackupDir string
	// BatchSize is the number of buffered samples that forces a flush.
	BatchSize int
	// BatchTimeout flushes a partial batch. Zero disables the flusher.
	BatchTimeout time.Duration
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BackupDir:    defaultBackupDir,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}

	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be at least 1")
	}

	if c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch timeout must not be negative")
	}

	return nil
}
