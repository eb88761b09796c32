package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/syssam/akita/dialect"
)

// Conn wraps one dedicated driver connection with its engine tag. While idle
// it is owned by the pool; while checked out, by exactly one caller.
type Conn struct {
	*sql.Conn
	dialect string
}

// Dialect returns the canonical dialect tag of the connection's engine.
func (c *Conn) Dialect() string {
	for _, name := range dialect.All {
		if strings.HasPrefix(c.dialect, name) {
			return name
		}
	}
	return c.dialect
}

var _ dialect.Conn = (*Conn)(nil)

// Provider opens dedicated connections from an underlying *sql.DB. It
// satisfies the pool's connection-provider capability: Open, Alive, Close.
type Provider struct {
	db      *sql.DB
	dialect string
}

// NewProvider wraps an existing *sql.DB. The database handle is configured to
// keep no idle connections of its own: lifecycle management belongs to the
// akita pool, not to database/sql.
func NewProvider(d string, db *sql.DB) *Provider {
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(0)
	return &Provider{db: db, dialect: d}
}

// OpenProvider opens a database handle for the given driver name and source
// and wraps it in a Provider.
func OpenProvider(driverName, source string) (*Provider, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open %s: %w", driverName, err)
	}
	return NewProvider(driverName, db), nil
}

// Open dials one dedicated connection.
func (p *Provider) Open(ctx context.Context) (*Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open connection: %w", err)
	}
	return &Conn{Conn: c, dialect: p.dialect}, nil
}

// Alive reports whether the connection still answers a ping.
func (p *Provider) Alive(ctx context.Context, c *Conn) bool {
	return c.PingContext(ctx) == nil
}

// Close tears one connection down.
func (p *Provider) Close(c *Conn) error {
	return c.Conn.Close()
}

// Shutdown closes the underlying database handle. Call it after the pool has
// drained.
func (p *Provider) Shutdown() error {
	return p.db.Close()
}

// DB exposes the underlying handle, mainly for tests.
func (p *Provider) DB() *sql.DB { return p.db }
