package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// sqliteStore is the embedded file backend. SQLite does not support
// concurrent writers, so the pool is capped at a single connection; callers
// queue on the pool rather than on an in-process lock.
type sqliteStore struct {
	conn             *sql.DB
	sb               sq.StatementBuilderType
	formatter        *Formatter
	path             string
	strictMigrations bool
	logQueries       bool
	state            atomic.Int32
}

func newSQLiteStore(conf Config, formatter *Formatter) *sqliteStore {
	return &sqliteStore{
		sb:               sq.StatementBuilder.PlaceholderFormat(sq.Question),
		formatter:        formatter,
		path:             conf.Path,
		strictMigrations: conf.StrictMigrations,
		logQueries:       conf.LogQueries,
	}
}

// Connect opens the database file, backing it up first before any schema
// creation or migration touches it.
func (db *sqliteStore) Connect(ctx context.Context) error {
	if db.State() == Closed {
		return ErrNotReady
	}

	if db.path != ":memory:" {
		if errBackup := BackupFlatFile(db.path); errBackup != nil {
			slog.Warn("Failed to backup database file", slog.String("path", db.path),
				slog.String("error", errBackup.Error()))
		}
	}

	dsn := db.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	dbConn, errOpen := sql.Open("sqlite", dsn)
	if errOpen != nil {
		return errors.Join(errOpen, ErrOpenFailed)
	}

	// Single writer at a time.
	dbConn.SetMaxOpenConns(1)

	if errPing := dbConn.PingContext(ctx); errPing != nil {
		logCloser(dbConn)

		return errors.Join(errPing, ErrPingFailed)
	}

	db.conn = dbConn

	if !db.Created(ctx) {
		if errCreate := db.ExecScript(ctx, "schema/sqlite_schema.sql"); errCreate != nil {
			return errors.Join(errCreate, ErrCreateSchema)
		}

		if errVersion := db.SetSchemaVersion(ctx, LatestVersion()); errVersion != nil {
			return errVersion
		}
	} else if errMigrate := PerformMigrations(ctx, db, db.strictMigrations); errMigrate != nil {
		return errMigrate
	}

	db.state.Store(int32(Ready))

	return nil
}

func (db *sqliteStore) Close() error {
	db.state.Store(int32(Closed))

	if db.conn != nil {
		if errClose := db.conn.Close(); errClose != nil {
			return fmt.Errorf("failed to close database file: %w", errClose)
		}
	}

	return nil
}

func (db *sqliteStore) State() State {
	return State(db.state.Load())
}

func (db *sqliteStore) Type() Type {
	return SQLite
}

func (db *sqliteStore) Builder() sq.StatementBuilderType {
	return db.sb
}

func (db *sqliteStore) TableName(table Table) string {
	return db.formatter.Name(table)
}

func (db *sqliteStore) available() error {
	if db.conn == nil || db.State() == Closed {
		return ErrNotReady
	}

	return nil
}

func (db *sqliteStore) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if errState := db.available(); errState != nil {
		return nil, errState
	}

	if db.logQueries {
		slog.Debug("Executing query", slog.String("sql", query))
	}

	rows, errQuery := db.conn.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return nil, errQuery //nolint:wrapcheck
	}

	return sqlRows{Rows: rows}, nil
}

func (db *sqliteStore) QueryRow(ctx context.Context, query string, args ...any) Row { //nolint:ireturn
	if errState := db.available(); errState != nil {
		return errRow{err: errState}
	}

	if db.logQueries {
		slog.Debug("Executing query", slog.String("sql", query))
	}

	return db.conn.QueryRowContext(ctx, query, args...)
}

func (db *sqliteStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if errState := db.available(); errState != nil {
		return 0, errState
	}

	if db.logQueries {
		slog.Debug("Executing statement", slog.String("sql", query))
	}

	result, errExec := db.conn.ExecContext(ctx, query, args...)
	if errExec != nil {
		return 0, errExec //nolint:wrapcheck
	}

	affected, errAffected := result.RowsAffected()
	if errAffected != nil {
		return 0, errAffected //nolint:wrapcheck
	}

	return affected, nil
}

func (db *sqliteStore) ExecScript(ctx context.Context, name string) error {
	statements, errStatements := scriptStatements(db.formatter, name)
	if errStatements != nil {
		return errStatements
	}

	for _, statement := range statements {
		if _, errExec := db.Exec(ctx, statement); errExec != nil {
			return fmt.Errorf("failed to execute script statement: %w", errExec)
		}
	}

	return nil
}

func (db *sqliteStore) WrapTx(ctx context.Context, txFunc func(Executor) error) error {
	if errState := db.available(); errState != nil {
		return errState
	}

	transaction, errTx := db.conn.BeginTx(ctx, nil)
	if errTx != nil {
		return DBErr(errTx)
	}

	if err := txFunc(sqlTxExecutor{tx: transaction}); err != nil {
		if errRollback := transaction.Rollback(); errRollback != nil {
			return DBErr(errRollback)
		}

		return err
	}

	if err := transaction.Commit(); err != nil {
		return DBErr(err)
	}

	return nil
}

func (db *sqliteStore) Created(ctx context.Context) bool {
	var name string

	errScan := db.QueryRow(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		db.formatter.Name(TableUserData)).Scan(&name)

	return errScan == nil
}

// SchemaVersion reads the stored migration watermark. A missing metadata
// table or row reads as version 0; any other failure is surfaced so a
// transport blip cannot masquerade as a fresh schema.
func (db *sqliteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int

	errScan := db.QueryRow(ctx,
		fmt.Sprintf("SELECT schema_version FROM %s LIMIT 1", db.formatter.Name(TableMetaData))).
		Scan(&version)
	if errScan != nil {
		if missingSchema(errScan) {
			slog.Debug("Schema version unavailable, assuming 0", slog.String("error", errScan.Error()))

			return 0, nil
		}

		return 0, DBErr(errScan)
	}

	return version, nil
}

func (db *sqliteStore) SetSchemaVersion(ctx context.Context, version int) error {
	table := db.formatter.Name(TableMetaData)

	affected, errUpdate := db.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET schema_version = ?", table), version)
	if errUpdate != nil {
		return DBErr(errUpdate)
	}

	if affected == 0 {
		if _, errInsert := db.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (schema_version) VALUES (?)", table), version); errInsert != nil {
			return DBErr(errInsert)
		}
	}

	return nil
}

// sqlRows adapts *sql.Rows to the Rows contract.
type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	logCloser(r.Rows)
}

// sqlTxExecutor adapts a database/sql transaction to the Executor contract.
type sqlTxExecutor struct {
	tx *sql.Tx
}

func (e sqlTxExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, errQuery := e.tx.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return nil, errQuery //nolint:wrapcheck
	}

	return sqlRows{Rows: rows}, nil
}

func (e sqlTxExecutor) QueryRow(ctx context.Context, query string, args ...any) Row { //nolint:ireturn
	return e.tx.QueryRowContext(ctx, query, args...)
}

func (e sqlTxExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, errExec := e.tx.ExecContext(ctx, query, args...)
	if errExec != nil {
		return 0, errExec //nolint:wrapcheck
	}

	affected, errAffected := result.RowsAffected()
	if errAffected != nil {
		return 0, errAffected //nolint:wrapcheck
	}

	return affected, nil
}
