package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresStore is the networked backend. Concurrency control is delegated
// to the pgx connection pool.
type postgresStore struct {
	conn *pgxpool.Pool
	// Use $ for pg based queries.
	sb               sq.StatementBuilderType
	formatter        *Formatter
	dsn              string
	strictMigrations bool
	logQueries       bool
	state            atomic.Int32
}

func newPostgresStore(conf Config, formatter *Formatter) *postgresStore {
	return &postgresStore{
		sb:               sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		formatter:        formatter,
		dsn:              conf.DSN,
		strictMigrations: conf.StrictMigrations,
		logQueries:       conf.LogQueries,
	}
}

type dbQueryTracer struct{}

func (tracer *dbQueryTracer) TraceQueryStart(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryStartData,
) context.Context {
	slog.Debug("Executing query", slog.String("sql", data.SQL), slog.Any("args", data.Args))

	return ctx
}

func (tracer *dbQueryTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
}

// Connect sets up the pool, then creates the schema on first run or brings
// an existing schema up to date.
func (db *postgresStore) Connect(ctx context.Context) error {
	if db.State() == Closed {
		return ErrNotReady
	}

	cfg, errConfig := pgxpool.ParseConfig(db.dsn)
	if errConfig != nil {
		return fmt.Errorf("unable to parse db config/dsn: %w", errConfig)
	}

	if db.logQueries {
		cfg.ConnConfig.Tracer = &dbQueryTracer{}
	}

	dbConn, errConnectConfig := pgxpool.NewWithConfig(ctx, cfg)
	if errConnectConfig != nil {
		return errors.Join(errConnectConfig, ErrPoolFailed)
	}

	if errPing := dbConn.Ping(ctx); errPing != nil {
		dbConn.Close()

		return errors.Join(errPing, ErrPingFailed)
	}

	db.conn = dbConn

	if !db.Created(ctx) {
		if errCreate := db.ExecScript(ctx, "schema/postgresql_schema.sql"); errCreate != nil {
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

// Close will close the underlying database connection if it exists.
func (db *postgresStore) Close() error {
	if db.conn != nil {
		db.conn.Close()
	}

	db.state.Store(int32(Closed))

	return nil
}

func (db *postgresStore) State() State {
	return State(db.state.Load())
}

func (db *postgresStore) Type() Type {
	return Postgres
}

func (db *postgresStore) Builder() sq.StatementBuilderType {
	return db.sb
}

func (db *postgresStore) TableName(table Table) string {
	return db.formatter.Name(table)
}

func (db *postgresStore) available() error {
	if db.conn == nil || db.State() == Closed {
		return ErrNotReady
	}

	return nil
}

func (db *postgresStore) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if errState := db.available(); errState != nil {
		return nil, errState
	}

	return db.conn.Query(ctx, query, args...) //nolint:wrapcheck
}

func (db *postgresStore) QueryRow(ctx context.Context, query string, args ...any) Row { //nolint:ireturn
	if errState := db.available(); errState != nil {
		return errRow{err: errState}
	}

	return db.conn.QueryRow(ctx, query, args...)
}

func (db *postgresStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if errState := db.available(); errState != nil {
		return 0, errState
	}

	tag, errExec := db.conn.Exec(ctx, query, args...)
	if errExec != nil {
		return 0, errExec //nolint:wrapcheck
	}

	return tag.RowsAffected(), nil
}

func (db *postgresStore) ExecScript(ctx context.Context, name string) error {
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

func (db *postgresStore) WrapTx(ctx context.Context, txFunc func(Executor) error) error {
	if errState := db.available(); errState != nil {
		return errState
	}

	transaction, errTx := db.conn.Begin(ctx)
	if errTx != nil {
		return DBErr(errTx)
	}

	if err := txFunc(pgxTxExecutor{tx: transaction}); err != nil {
		if errRollback := transaction.Rollback(ctx); errRollback != nil {
			return DBErr(errRollback)
		}

		return err
	}

	if err := transaction.Commit(ctx); err != nil {
		return DBErr(err)
	}

	return nil
}

func (db *postgresStore) Created(ctx context.Context) bool {
	var name string

	errScan := db.QueryRow(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_name = $1",
		db.formatter.Name(TableUserData)).Scan(&name)

	return errScan == nil
}

// SchemaVersion reads the stored migration watermark. A missing metadata
// table or row reads as version 0 so that the v0 migration, which creates
// the metadata table itself, can run against legacy schemas; any other
// failure is surfaced so a transport blip cannot masquerade as a fresh
// schema.
func (db *postgresStore) SchemaVersion(ctx context.Context) (int, error) {
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

func (db *postgresStore) SetSchemaVersion(ctx context.Context, version int) error {
	table := db.formatter.Name(TableMetaData)

	affected, errUpdate := db.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET schema_version = $1", table), version)
	if errUpdate != nil {
		return DBErr(errUpdate)
	}

	if affected == 0 {
		if _, errInsert := db.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (schema_version) VALUES ($1)", table), version); errInsert != nil {
			return DBErr(errInsert)
		}
	}

	return nil
}

// pgxTxExecutor adapts a pgx transaction to the Executor contract.
type pgxTxExecutor struct {
	tx pgx.Tx
}

func (e pgxTxExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return e.tx.Query(ctx, query, args...) //nolint:wrapcheck
}

func (e pgxTxExecutor) QueryRow(ctx context.Context, query string, args ...any) Row { //nolint:ireturn
	return e.tx.QueryRow(ctx, query, args...)
}

func (e pgxTxExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, errExec := e.tx.Exec(ctx, query, args...)
	if errExec != nil {
		return 0, errExec //nolint:wrapcheck
	}

	return tag.RowsAffected(), nil
}

// errRow defers a lookup error until Scan so that QueryRow keeps its
// chainable signature.
type errRow struct {
	err error
}

func (r errRow) Scan(_ ...any) error {
	return r.err
}
