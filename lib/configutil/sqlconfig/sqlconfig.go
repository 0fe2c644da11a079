package sqlconfig

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	devenv "portalgrades/dev/env"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverSqlite = "sqlite"
	DriverLibsql = "libsql"
	DriverPgx    = "pgx"
)

// Struct is the "database" section of a config file.
type Struct struct {
	Driver string `json:"driver" env:"DRIVER" validate:"omitempty,oneof=sqlite libsql pgx"`
	// for sqlite this is a file path (may start with <dev_state>), otherwise a url
	Dsn string `json:"dsn" env:"DSN" validate:"required"`
}

func (config Struct) driver() string {
	if config.Driver == "" {
		return DriverSqlite
	}
	return config.Driver
}

func openSqlite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		dbpath, err := devenv.ResolvePath(path)
		if err != nil {
			return nil, err
		}
		path = dbpath

		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open(DriverSqlite, path)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer, see
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// OpenDB opens the configured database and applies schema when it is
// non-empty.
func (config Struct) OpenDB(ctx context.Context, schema string) (*sqlx.DB, error) {
	if config.Dsn == "" {
		return nil, fmt.Errorf("a database dsn was not specified")
	}

	var (
		raw *sql.DB
		err error
	)
	switch config.driver() {
	case DriverSqlite:
		raw, err = openSqlite(config.Dsn)
	case DriverLibsql, DriverPgx:
		raw, err = sql.Open(config.driver(), config.Dsn)
	default:
		return nil, fmt.Errorf("unknown database driver '%s'", config.Driver)
	}
	if err != nil {
		return nil, err
	}

	db := sqlx.NewDb(raw, config.driver())
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", config.driver(), err)
	}

	if schema != "" {
		_, err = db.ExecContext(ctx, schema)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}
