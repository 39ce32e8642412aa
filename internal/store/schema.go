package store

import (
	"database/sql"
	"fmt"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
)

const (
	SchemaVersion = 1

	// seriesExtension is appended to every file handed in by the writer.
	seriesExtension = ".rrd"

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS gauge_samples (
	       host      TEXT NOT NULL,
	       file      TEXT NOT NULL,
	       timestamp INTEGER NOT NULL CHECK (typeof(timestamp) = 'integer'),
	       value     REAL NOT NULL,
	       PRIMARY KEY (host, file, timestamp)
	   );
	   CREATE TABLE IF NOT EXISTS voltage_samples (
	       host      TEXT NOT NULL,
	       file      TEXT NOT NULL,
	       timestamp INTEGER NOT NULL CHECK (typeof(timestamp) = 'integer'),
	       voltage   REAL NOT NULL,
	       PRIMARY KEY (host, file, timestamp)
	   );`
)

// seriesTable is where one value schema is stored.
type seriesTable struct {
	name   string
	column string
}

// tables maps value schema names onto their table and value column. Only
// names listed here ever reach SQL text.
var tables = map[string]seriesTable{
	sensors.GenericSchema.Name: {name: "gauge_samples", column: "value"},
	sensors.VoltageSchema.Name: {name: "voltage_samples", column: "voltage"},
}

func tableFor(schema sensors.ValueSchema) (seriesTable, error) {
	table, ok := tables[schema.Name]
	if !ok || table.column != schema.Column {
		return seriesTable{}, errors.New().WithData(ErrUnknownSchema, struct {
			Name   string
			Column string
		}{Name: schema.Name, Column: schema.Column})
	}

	return table, nil
}

func insertSQL(t seriesTable) string {
	return fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (host, file, timestamp, %s) VALUES (?, ?, ?, ?)",
		t.name, t.column)
}

func selectSQL(t seriesTable) string {
	return fmt.Sprintf(
		"SELECT host, file, timestamp, %s FROM %s WHERE host = ? AND file = ? ORDER BY timestamp",
		t.column, t.name)
}

// inTx runs fn inside a transaction. Any failure rolls back and is reported
// under code.
func inTx(db *sql.DB, log logger.Logger, code errors.ErrorCode, fn func(*sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(code, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(code, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(code, err)
	}

	return nil
}

// InitSchema creates the sample tables and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Msg("Creating sample tables")

	err := inTx(db, log, ErrSchemaInitFailed, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return err
		}

		_, err := tx.Exec(
			"INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))",
			SchemaVersion)

		return err
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("Sample schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, or zero for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
