package store_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"codeberg.org/mutker/sensorsd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) store.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := store.DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "db", "samples.db")
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.BatchSize = 2
	cfg.BatchTimeout = 0

	return cfg
}

func TestUpdateAndSamples(t *testing.T) {
	s, err := store.New(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Update("host", "sensors-it87-temp1", "1700000000:42.500", sensors.GenericSchema))
	require.NoError(t, s.Update("host", "sensors-it87-temp1", "1700000010:43.000", sensors.GenericSchema))
	require.NoError(t, s.Update("host", "lm_sensors-it87-isa-0290/voltage-in0", "1700000000:1.104", sensors.VoltageSchema))
	require.NoError(t, s.Flush())

	samples, err := s.Samples("host", "sensors-it87-temp1", sensors.GenericSchema)
	require.NoError(t, err)
	assert.Equal(t, []store.Sample{
		{Host: "host", File: "sensors-it87-temp1.rrd", Timestamp: 1700000000, Value: 42.5},
		{Host: "host", File: "sensors-it87-temp1.rrd", Timestamp: 1700000010, Value: 43},
	}, samples)

	volts, err := s.Samples("host", "lm_sensors-it87-isa-0290/voltage-in0", sensors.VoltageSchema)
	require.NoError(t, err)
	require.Len(t, volts, 1)
	assert.InDelta(t, 1.104, volts[0].Value, 1e-9)

	none, err := s.Samples("host", "lm_sensors-it87-isa-0290/voltage-in0", sensors.GenericSchema)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBatchFlushesAtSize(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.New(cfg, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Update("host", "f", "1:1.000", sensors.GenericSchema))

	samples, err := s.Samples("host", "f", sensors.GenericSchema)
	require.NoError(t, err)
	assert.Empty(t, samples)

	require.NoError(t, s.Update("host", "f", "2:2.000", sensors.GenericSchema))

	samples, err = s.Samples("host", "f", sensors.GenericSchema)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestCloseFlushes(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.New(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Update("host", "f", "1:1.000", sensors.GenericSchema))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Update("host", "f", "2:2.000", sensors.GenericSchema)
	assert.True(t, errors.HasCode(err, store.ErrClosed))

	reopened, err := store.New(cfg, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	samples, err := reopened.Samples("host", "f", sensors.GenericSchema)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestRejectsBadInput(t *testing.T) {
	s, err := store.New(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	err = s.Update("host", "f", "garbage", sensors.GenericSchema)
	assert.True(t, errors.HasCode(err, store.ErrInvalidSample))

	err = s.Update("host", "f", "1:1.000", sensors.ValueSchema{Name: "counter", Column: "value"})
	assert.True(t, errors.HasCode(err, store.ErrUnknownSchema))

	err = s.Update("host", "f", "1:1.000", sensors.ValueSchema{Name: "generic", Column: "value) VALUES (0,0,0,0); --"})
	assert.True(t, errors.HasCode(err, store.ErrUnknownSchema))

	_, err = s.Samples("host", "f", sensors.ValueSchema{Name: "voltage", Column: "value"})
	assert.True(t, errors.HasCode(err, store.ErrUnknownSchema))
}

func TestNonFiniteSampleDoesNotBlockLaterOnes(t *testing.T) {
	s, err := store.New(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	for _, record := range []string{"1700000000:nan", "1700000000:+Inf", "1700000000:-inf"} {
		err = s.Update("peer", "sensors-x", record, sensors.GenericSchema)
		assert.True(t, errors.HasCode(err, store.ErrInvalidSample), record)
	}

	require.NoError(t, s.Update("peer", "sensors-x", "1700000010:1.000", sensors.GenericSchema))
	require.NoError(t, s.Update("peer", "sensors-x", "1700000020:2.000", sensors.GenericSchema))
	require.NoError(t, s.Update("peer", "sensors-x", "1700000030:3.000", sensors.GenericSchema))
	require.NoError(t, s.Flush())

	samples, err := s.Samples("peer", "sensors-x", sensors.GenericSchema)
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestBufferIsBoundedWhileFlushesFail(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.New(cfg, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	side, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer side.Close()

	_, err = side.Exec("DROP TABLE gauge_samples")
	require.NoError(t, err)

	// BatchSize 2 keeps at most 32 samples pending.
	for ts := 1; ts <= 40; ts++ {
		_ = s.Update("host", "f", sensors.FormatRecord(int64(ts), float64(ts)), sensors.GenericSchema)
	}

	_, err = side.Exec(`CREATE TABLE gauge_samples (
		host      TEXT NOT NULL,
		file      TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		value     REAL NOT NULL,
		PRIMARY KEY (host, file, timestamp))`)
	require.NoError(t, err)

	require.NoError(t, s.Flush())

	samples, err := s.Samples("host", "f", sensors.GenericSchema)
	require.NoError(t, err)
	require.Len(t, samples, 32)
	assert.Equal(t, int64(9), samples[0].Timestamp)
	assert.Equal(t, int64(40), samples[31].Timestamp)
}

func TestMigrationBacksUpOldSchema(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := store.New(cfg, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "samples_v99_")
}

func TestDisabledStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false

	s, err := store.New(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Update("host", "f", "garbage", sensors.GenericSchema))
	require.NoError(t, s.Close())

	_, err = os.Stat(cfg.DBPath)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigValidate(t *testing.T) {
	cfg := store.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.DBPath = ""
	assert.True(t, errors.HasCode(cfg.Validate(), store.ErrInvalidDBPath))

	cfg = store.DefaultConfig()
	cfg.BatchSize = 0
	assert.True(t, errors.HasCode(cfg.Validate(), store.ErrInvalidConfig))

	cfg.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestWriterIntoStore(t *testing.T) {
	s, err := store.New(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	w := sensors.NewWriter(sensors.Options{Scheme: sensors.Extended}, s)
	require.NoError(t, w.Write("host", "it87-isa-0290/voltage-in0", sensors.FormatRecord(10, 3.3)))
	require.NoError(t, w.Write("host", "it87-isa-0290/temperature-temp1", sensors.FormatRecord(10, 40)))
	require.NoError(t, s.Flush())

	volts, err := s.Samples("host", "lm_sensors-it87-isa-0290/voltage-in0", sensors.VoltageSchema)
	require.NoError(t, err)
	require.Len(t, volts, 1)
	assert.InDelta(t, 3.3, volts[0].Value, 1e-9)

	temps, err := s.Samples("host", "lm_sensors-it87-isa-0290/temperature-temp1", sensors.GenericSchema)
	require.NoError(t, err)
	require.Len(t, temps, 1)
}
