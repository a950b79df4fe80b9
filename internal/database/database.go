package database

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// Connect opens the store backend. A postgres:// or postgresql:// dsn selects PostgreSQL;
// otherwise the SQLite file at path is used (created if missing).
func Connect(dsn, path string) (*sqlx.DB, Dialect, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sqlx.Connect(string(Postgres), dsn)
		return db, Postgres, err
	}

	db, err := sqlx.Connect(string(SQLite), sqliteDSN(path))
	if err != nil {
		return nil, SQLite, err
	}
	return db, SQLite, nil
}

// uriPath escapes the characters that would end the path part of a file: URI.
// SQLite decodes %XX sequences back when it opens the file.
var uriPath = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// sqliteDSN enables WAL so readers are not blocked by the single writer.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_txlock", "immediate")
	return fmt.Sprintf("file:%s?%s", uriPath.Replace(path), q.Encode())
}
