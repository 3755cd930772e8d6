// Package sqlstore keeps registries in a relational table, one row per entry, with a per-resource
// version row that every write bumps. It works with the pure-Go SQLite driver and with
// PostgreSQL through pgx's database/sql adapter.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"kwrelay/internal/types"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var createTableStmts = []string{`
CREATE TABLE IF NOT EXISTS registry_entries (
	resource TEXT NOT NULL,
	entry    TEXT NOT NULL,
	PRIMARY KEY (resource, entry)
);`, `
CREATE TABLE IF NOT EXISTS registry_versions (
	resource TEXT   NOT NULL PRIMARY KEY,
	version  BIGINT NOT NULL
);`}

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects with driver ("sqlite" or "pgx") and creates the table if needed.
func Open(driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, types.Err(types.ErrInvalidBackend, nil, "unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection serialises writers and avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range createTableStmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create registry tables: %w", err)
		}
	}
	log.WithField("driver", driver).Debug("registry tables ready")
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, resource string) ([]string, error) {
	return s.entries(ctx, resource)
}

// LoadVersion reads the version row before the entries: a snapshot newer than its version
// only makes the following SaveIfVersion fail.
func (s *Store) LoadVersion(ctx context.Context, resource string) ([]string, string, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT version FROM registry_versions WHERE resource = ?"), resource).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", types.Err(types.ErrPersistence, err, "query version of %s", resource)
	}
	entries, err := s.entries(ctx, resource)
	if err != nil {
		return nil, "", err
	}
	if version == 0 {
		return entries, "", nil
	}
	return entries, strconv.FormatInt(version, 10), nil
}

// Save deletes and re-inserts the resource's rows in one transaction.
func (s *Store) Save(ctx context.Context, resource string, entries []string) error {
	return s.write(ctx, resource, entries, func(tx *sql.Tx) (bool, error) {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO registry_versions (resource, version) VALUES (?, 1)
ON CONFLICT (resource) DO UPDATE SET version = registry_versions.version + 1`), resource)
		return err == nil, err
	})
}

// SaveIfVersion bumps the version row with a compare-and-set first; zero affected rows means
// another writer got there before us.
func (s *Store) SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error {
	return s.write(ctx, resource, entries, func(tx *sql.Tx) (bool, error) {
		var (
			res sql.Result
			err error
		)
		if version == "" {
			res, err = tx.ExecContext(ctx, s.rebind("INSERT INTO registry_versions (resource, version) VALUES (?, 1) ON CONFLICT (resource) DO NOTHING"), resource)
		} else {
			expected, perr := strconv.ParseInt(version, 10, 64)
			if perr != nil {
				return false, types.Err(types.ErrInvalidArgument, perr, "version %q of %s", version, resource)
			}
			res, err = tx.ExecContext(ctx, s.rebind("UPDATE registry_versions SET version = version + 1 WHERE resource = ? AND version = ?"), resource, expected)
		}
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err
	})
}

// write runs bump and, when it claimed the next version, replaces the entries in the same
// transaction.
func (s *Store) write(ctx context.Context, resource string, entries []string, bump func(tx *sql.Tx) (bool, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Err(types.ErrPersistence, err, "begin tx for %s", resource)
	}
	claimed, err := bump(tx)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, types.ErrInvalidArgument) {
			return err
		}
		return types.Err(types.ErrPersistence, err, "bump version of %s", resource)
	}
	if !claimed {
		_ = tx.Rollback()
		return types.Err(types.ErrConflict, nil, "%s changed since it was read", resource)
	}
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM registry_entries WHERE resource = ?"), resource); err != nil {
		_ = tx.Rollback()
		return types.Err(types.ErrPersistence, err, "clear %s", resource)
	}
	insert := s.rebind("INSERT INTO registry_entries (resource, entry) VALUES (?, ?)")
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, insert, resource, e); err != nil {
			_ = tx.Rollback()
			return types.Err(types.ErrPersistence, err, "insert into %s", resource)
		}
	}
	if err := tx.Commit(); err != nil {
		return types.Err(types.ErrPersistence, err, "commit %s", resource)
	}
	return nil
}

func (s *Store) entries(ctx context.Context, resource string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT entry FROM registry_entries WHERE resource = ? ORDER BY entry"), resource)
	if err != nil {
		return nil, types.Err(types.ErrPersistence, err, "query %s", resource)
	}
	defer rows.Close()

	entries := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, types.Err(types.ErrPersistence, err, "scan %s", resource)
		}
		if e = strings.TrimRight(e, " \t\r\n"); e != "" {
			entries = append(entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.Err(types.ErrPersistence, err, "iterate %s", resource)
	}
	return entries, nil
}

// rebind turns "?" placeholders into "$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
