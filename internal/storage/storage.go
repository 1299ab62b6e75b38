package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/qwertyz15/expense-app/internal/config"
	"github.com/qwertyz15/expense-app/internal/contextutil"
	"github.com/qwertyz15/expense-app/logging"
)

const (
	DefaultOperationTimeout = 5 * time.Second

	connectAttempts = 15
	connectInterval = 3 * time.Second
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns     int
	OperationTimeout time.Duration
}

// SQLStorage implements every persistence interface of the application on
// top of database/sql. Each call gets its own deadline so a saturated pool
// fails instead of blocking forever.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
}

// Open connects to the storage selected in cfg and brings its schema up to
// date.
func Open(ctx context.Context, cfg *config.Config) (*SQLStorage, error) {
	opts := Options{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		OperationTimeout: cfg.DBAcquireTimeout,
	}
	switch cfg.StorageType {
	case config.StorageMySQL:
		return OpenMySQL(ctx, cfg.MySQLDSN(), opts)
	case config.StorageSQLite:
		return OpenSQLite(ctx, cfg.SQLiteDBPath, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

// OpenMySQL creates the target database when it is missing, connects to
// it and runs migrations.
func OpenMySQL(ctx context.Context, dsn string, opts Options) (*SQLStorage, error) {
	dbConfig, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	dbConfig.ParseTime = true
	dbConfig.Loc = time.UTC
	dbname := dbConfig.DBName
	if dbname == "" {
		return nil, fmt.Errorf("mysql dsn has no database name")
	}

	adminConfig := dbConfig.Clone()
	adminConfig.DBName = ""

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", adminConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %v", err)
	}
	defer adminDb.Close()

	if err := waitForDatabase(ctx, adminDb); err != nil {
		return nil, err
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRowContext(ctx, checkDbnameExistQuery, dbname).Scan(&dbnameExistence)
	if errors.Is(err, sql.ErrNoRows) {
		logging.Logger.Infof("Database '%s' does not exist, creating...", dbname)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_bin;", dbname)
		if _, err := adminDb.ExecContext(ctx, createDbSql); err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	logging.Logger.Info("Connecting to database...")
	db, err := sql.Open("mysql", dbConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %v", err)
	}
	applyPool(db, opts)
	db.SetConnMaxLifetime(5 * time.Minute)

	return finishOpen(ctx, db, mysqlDialect, opts)
}

// OpenSQLite opens a database file, or a private in-process database for
// ":memory:", and runs migrations.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLStorage, error) {
	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		applyPool(db, opts)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}

	return finishOpen(ctx, db, sqliteDialect, opts)
}

func finishOpen(ctx context.Context, db *sql.DB, d dialect, opts Options) (*SQLStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Logger.Info("Connected to database successfully")
	logging.Logger.Info("Running migrations...")
	if err := runMigrations(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &SQLStorage{db: db, dialect: d, timeout: timeout}, nil
}

func applyPool(db *sql.DB, opts Options) {
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
}

func waitForDatabase(ctx context.Context, db *sql.DB) error {
	for i := 0; i < connectAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/%d)", i+1, connectAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectInterval):
		}
	}
	return fmt.Errorf("database unreachable after multiple attempts")
}

func (s *SQLStorage) GetStorageType() string {
	return s.dialect.name
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s *SQLStorage) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// internalError logs err with the trace id, and the caller's user id when
// known, and hides it from the client behind message.
func internalError(ctx context.Context, function, action, message string, err error) error {
	traceID := contextutil.TraceIDFromContext(ctx)
	if userID, ok := contextutil.UserIDFromContext(ctx); ok {
		logging.Logger.Errorf("[TraceID=%s] [UserID=%d] | failed to %s in Storage.%s() function | Error: %v", traceID, userID, action, function, err)
	} else {
		logging.Logger.Errorf("[TraceID=%s] | failed to %s in Storage.%s() function | Error: %v", traceID, action, function, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		message = "Database is busy, try again later."
	}
	return appErrors.Wrap(appErrors.ErrInternal, message, err)
}

func notFound(message string) error {
	return appErrors.New(appErrors.ErrNotFound, message)
}

func conflict(message string) error {
	return appErrors.New(appErrors.ErrConflict, message)
}
