// Package dialect defines the database engine tags supported by akita and
// the capability interfaces the executor depends on.
//
// A dialect identifies the SQL rendering rules of one engine (identifier
// quoting, placeholder style, clause syntax). Engine selection happens once,
// at configuration time; the rest of the core is polymorphic over these
// interfaces and never inspects driver objects at runtime.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Engine tags for the supported dialects.
const (
	// MySQL is a networked server engine.
	MySQL = "mysql"
	// SQLite is an embedded file engine.
	SQLite = "sqlite"
	// Postgres is a networked server engine.
	Postgres = "postgres"
)

// All lists every supported dialect.
var All = []string{MySQL, SQLite, Postgres}

// Valid reports whether name is a supported dialect tag.
func Valid(name string) bool {
	for _, d := range All {
		if d == name {
			return true
		}
	}
	return false
}

// Normalize maps a driver name such as "mysql+tls" or "sqlite3" to its
// canonical dialect tag. It returns an error for unknown engines.
func Normalize(name string) (string, error) {
	for _, d := range All {
		if strings.HasPrefix(name, d) {
			return d, nil
		}
	}
	return "", fmt.Errorf("dialect: unsupported engine %q", name)
}

// ExecQuerier wraps the statement execution methods a live connection or an
// open transaction must provide. Both *sql.Conn and *sql.Tx satisfy it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn is the capability set the pool and executor require from one live
// engine connection. A Conn is exclusively owned by one caller (or the pool,
// while idle) at all times.
type Conn interface {
	ExecQuerier

	// BeginTx opens a transaction on this connection.
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)

	// PingContext verifies the connection is still alive.
	PingContext(ctx context.Context) error

	// Close tears the connection down.
	Close() error
}
