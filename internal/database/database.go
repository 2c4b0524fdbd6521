// Package database owns the versioned schema and the backend engines used to
// persist homes, warps, users and cross-server teleport state.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"path"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNoResult is returned on successful queries which return no rows.
	ErrNoResult = errors.New("no results found")
	// ErrDuplicate is returned when a duplicate row result is attempted to be inserted.
	ErrDuplicate = errors.New("entity already exists")

	ErrPoolFailed    = errors.New("could not create store pool")
	ErrOpenFailed    = errors.New("could not open database file")
	ErrPingFailed    = errors.New("could not reach the database")
	ErrCreateQuery   = errors.New("failed to generate query")
	ErrCreateSchema  = errors.New("failed to create database schema")
	ErrNotReady      = errors.New("database is not ready")
	ErrUnknownType   = errors.New("unknown database type")
	ErrUnknownScript = errors.New("unknown database script")
)

//go:embed scripts
var scripts embed.FS

// Type identifies a backend dialect. It gates which migrations apply and
// which schema scripts are loaded.
type Type string

const (
	Postgres Type = "postgresql"
	SQLite   Type = "sqlite"
)

// Protocol is the lowercase identifier used in script file names.
func (t Type) Protocol() string {
	return string(t)
}

func (t Type) DisplayName() string {
	switch t {
	case Postgres:
		return "PostgreSQL"
	case SQLite:
		return "SQLite"
	default:
		return string(t)
	}
}

// ParseType resolves a configured backend name to a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", ErrUnknownType
	}
}

// State is the explicit lifecycle of a backend. Executor calls made outside
// Ready fail with ErrNotReady instead of panicking on a nil pool.
type State int32

const (
	Uninitialized State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Row is a single result row, satisfied by both pgx and database/sql rows.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a cursor over multiple result rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Executor runs statements against a pool or an open transaction. Exec
// reports the number of affected rows.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Database is the engine contract shared by all backends. Repositories are
// written against this and the common dialect subset (ON CONFLICT upserts,
// RETURNING) that both engines support.
type Database interface {
	Executor
	// Connect establishes the connection, creates missing schema objects
	// and runs pending migrations. Failure here is fatal to startup.
	Connect(ctx context.Context) error
	Close() error
	State() State
	Type() Type
	Builder() sq.StatementBuilderType
	// TableName resolves a logical table to its configured physical name.
	TableName(table Table) string
	// ExecScript loads an embedded script by name, resolves its table
	// placeholders and executes each `;` separated statement.
	ExecScript(ctx context.Context, name string) error
	WrapTx(ctx context.Context, fn func(Executor) error) error
	// Created reports whether the expected schema objects already exist.
	Created(ctx context.Context) bool
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, version int) error
}

// Config is the connection surface consumed from the configuration file.
type Config struct {
	Type             Type
	DSN              string
	Path             string
	TableNames       map[string]string
	StrictMigrations bool
	LogQueries       bool
}

// New selects and constructs a backend. The instance is unusable until
// Connect succeeds.
func New(conf Config) (Database, error) {
	formatter, errFormatter := NewFormatter(conf.TableNames)
	if errFormatter != nil {
		return nil, errFormatter
	}

	switch conf.Type {
	case Postgres:
		return newPostgresStore(conf, formatter), nil
	case SQLite:
		return newSQLiteStore(conf, formatter), nil
	default:
		return nil, ErrUnknownType
	}
}

// DBErr wraps driver specific errors in our own error types so that callers
// can distinguish "nothing found" from "write failed" without knowing which
// backend is active.
func DBErr(rootError error) error {
	if rootError == nil {
		return nil
	}

	if errors.Is(rootError, pgx.ErrNoRows) || errors.Is(rootError, sql.ErrNoRows) {
		return ErrNoResult
	}

	var pgErr *pgconn.PgError

	if errors.As(rootError, &pgErr) {
		if pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}

		return rootError
	}

	var sqliteErr *sqlite.Error

	if errors.As(rootError, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrDuplicate
		default:
			return rootError
		}
	}

	return rootError
}

// missingSchema reports whether the error means the metadata table or its
// row does not exist yet, as opposed to a transport failure. Only the former
// may be read as schema version 0.
func missingSchema(rootError error) bool {
	if errors.Is(rootError, pgx.ErrNoRows) || errors.Is(rootError, sql.ErrNoRows) {
		return true
	}

	var pgErr *pgconn.PgError

	if errors.As(rootError, &pgErr) {
		return pgErr.Code == pgerrcode.UndefinedTable
	}

	var sqliteErr *sqlite.Error

	if errors.As(rootError, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), "no such table")
	}

	return false
}

// scriptStatements loads an embedded script, resolves table placeholders and
// splits it into individual statements.
func scriptStatements(formatter *Formatter, name string) ([]string, error) {
	raw, errRead := scripts.ReadFile(path.Join("scripts", name))
	if errRead != nil {
		return nil, errors.Join(errRead, ErrUnknownScript)
	}

	formatted, errFormat := formatter.Format(string(raw))
	if errFormat != nil {
		return nil, errFormat
	}

	var statements []string

	for _, statement := range strings.Split(formatted, ";") {
		if trimmed := strings.TrimSpace(statement); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}

	return statements, nil
}

// QueryBuilder executes a select builder, returning the result rows.
func QueryBuilder(ctx context.Context, database Executor, builder sq.SelectBuilder) (Rows, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return nil, errors.Join(errQuery, ErrCreateQuery)
	}

	return database.Query(ctx, query, args...)
}

// QueryRowBuilder executes a select builder expected to return a single row.
func QueryRowBuilder(ctx context.Context, database Executor, builder sq.SelectBuilder) (Row, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return nil, errors.Join(errQuery, ErrCreateQuery)
	}

	return database.QueryRow(ctx, query, args...), nil
}

func ExecInsertBuilder(ctx context.Context, database Executor, builder sq.InsertBuilder) error {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return errors.Join(errQuery, ErrCreateQuery)
	}

	_, errExec := database.Exec(ctx, query, args...)

	return errExec
}

// ExecInsertBuilderWithReturnValue executes an insert carrying a RETURNING
// clause and scans the generated value into outID.
func ExecInsertBuilderWithReturnValue(ctx context.Context, database Executor, builder sq.InsertBuilder, outID any) error {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return errors.Join(errQuery, ErrCreateQuery)
	}

	return database.QueryRow(ctx, query, args...).Scan(outID)
}

// ExecUpdateBuilder executes an update builder and reports affected rows.
func ExecUpdateBuilder(ctx context.Context, database Executor, builder sq.UpdateBuilder) (int64, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return 0, errors.Join(errQuery, ErrCreateQuery)
	}

	return database.Exec(ctx, query, args...)
}

// ExecDeleteBuilder executes a delete builder and reports affected rows.
func ExecDeleteBuilder(ctx context.Context, database Executor, builder sq.DeleteBuilder) (int64, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return 0, errors.Join(errQuery, ErrCreateQuery)
	}

	return database.Exec(ctx, query, args...)
}

func GetCount(ctx context.Context, database Executor, builder sq.SelectBuilder) (int64, error) {
	countQuery, argsCount, errCountQuery := builder.ToSql()
	if errCountQuery != nil {
		return 0, errors.Join(errCountQuery, ErrCreateQuery)
	}

	var count int64
	if errCount := database.
		QueryRow(ctx, countQuery, argsCount...).
		Scan(&count); errCount != nil {
		return 0, errCount
	}

	return count, nil
}
