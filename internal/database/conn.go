// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/newsletter/internal/log"
)

const (
	driverName     = "sqlite3"
	changelogTable = "database_changelog"
)

//go:embed migrations/*.sql
var migrationFolder embed.FS

func init() {
	viper.SetDefault("storage.database.filename", ".blogr/newsletter.db")
	viper.SetDefault("storage.database.journalmode", "wal")
}

// Queryer is the common interface of connections and transactions.
type Queryer interface {
	sqlx.ExtContext
}

// Tx is a database transaction.
type Tx interface {
	Queryer
	Commit() error
	Rollback() error
	// RollbackWith rolls back the transaction and invokes the callback, unless the transaction
	// was already committed or rolled back.
	RollbackWith(func()) error
}

type tx struct {
	*sqlx.Tx
}

func (t tx) RollbackWith(callback func()) error {
	err := t.Rollback()

	if !errors.Is(err, sql.ErrTxDone) {
		callback()
	}

	return err
}

// Conn is an open database with an applied schema.
type Conn interface {
	Queryer
	Begin(context.Context) (Tx, error)
	Close() error
}

type conn struct {
	*sqlx.DB
}

func (c conn) Begin(ctx context.Context) (Tx, error) {
	rawTx, err := c.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return tx{rawTx}, nil
}

// OpenConnection opens the configured sqlite database and migrates the schema to the latest
// version.
func OpenConnection() (Conn, error) {
	sqliteVersion, _, _ := sqlite3.Version()

	if err := ensureDirectory(); err != nil {
		return nil, err
	}

	dsn := createDataSourceName()
	log.Info().
		Str("driver", driverName).
		Str("version", sqliteVersion).
		Str("dataSourceName", dsn).
		Msg("connecting to database")

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer and every ":memory:" connection is a distinct database.
	db.SetMaxOpenConns(1)

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewConn(db), nil
}

// NewConn wraps an already opened database without touching its schema.
func NewConn(db *sqlx.DB) Conn {
	return conn{db}
}

func ensureDirectory() error {
	filename := viper.GetString("storage.database.filename")
	if filename == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create database folder %q: %w", dir, err)
	}

	return nil
}

func createDataSourceName() string {
	opts := make(url.Values)
	opts.Add("_foreign_keys", "true")
	opts.Add("_journal_mode", viper.GetString("storage.database.journalmode"))

	dsn := url.URL{
		Scheme:   "file",
		Opaque:   viper.GetString("storage.database.filename"),
		RawQuery: opts.Encode(),
	}

	return dsn.String()
}

func migrateSchema(db *sqlx.DB) error {
	source := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFolder,
		Root:       "migrations",
	}

	migrate.SetTable(changelogTable)

	n, err := migrate.Exec(db.DB, driverName, source, migrate.Up)
	if err != nil {
		return fmt.Errorf("could not migrate database schema: %w", err)
	}

	if n > 0 {
		log.Info().Int("migrations", n).Msg("applied database migrations")
	}

	return nil
}
