// Package akita is a lightweight ORM core: typed, backend-agnostic CRUD and
// query operations over multiple relational engines through one API. It pairs
// a fluent condition builder with per-dialect SQL rendering, a bounded
// connection pool, and transaction semantics that behave identically on every
// supported engine (MySQL, SQLite, Postgres).
//
// Struct-to-table mapping is an external contract: the core consumes
// Descriptor and Mapper implementations (usually generated) and never
// inspects record internals.
package akita

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/syssam/akita/dialect"
	sqld "github.com/syssam/akita/dialect/sql"
	"github.com/syssam/akita/pool"
)

// Client is the executor: it owns one connection pool for one engine and
// orchestrates acquire, render, bind, execute, map and release for every
// operation. Construct it once at startup and share it; Client is safe for
// concurrent use, bounded only by pool capacity.
type Client struct {
	dialect  string
	provider *sqld.Provider
	pool     *pool.Pool[*sqld.Conn]
	sub      Subscriber
	closed   atomic.Bool
}

// Session is the common surface of *Client and *Tx: every operation in this
// package runs against either.
type Session interface {
	// Dialect returns the engine tag the session renders for.
	Dialect() string

	exec(ctx context.Context, stmt *sqld.Statement) (sql.Result, error)
	query(ctx context.Context, stmt *sqld.Statement, scan func(rows *sql.Rows) error) error
	subscriber() Subscriber
}

// Open connects to the engine selected by cfg.URL and builds its pool.
// Connections are opened lazily, up to cfg.MaxSize.
func Open(cfg Config) (*Client, error) {
	dialectTag, driverName, source, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	provider, err := sqld.OpenProvider(driverName, source)
	if err != nil {
		return nil, err
	}
	return newClient(dialectTag, provider, cfg), nil
}

// NewClient wraps an existing database handle. Intended for callers that
// configure the handle themselves and for tests.
func NewClient(dialectName string, db *sql.DB, cfg Config) (*Client, error) {
	tag, err := dialect.Normalize(dialectName)
	if err != nil {
		return nil, err
	}
	return newClient(tag, sqld.NewProvider(tag, db), cfg), nil
}

func newClient(tag string, provider *sqld.Provider, cfg Config) *Client {
	c := &Client{dialect: tag, provider: provider, sub: cfg.Telemetry}
	if c.sub == nil {
		c.sub = NopSubscriber{}
	}
	c.pool = pool.New[*sqld.Conn](provider, cfg.poolConfig(c.sub.PoolCheckout))
	return c
}

// Dialect returns the active engine tag.
func (c *Client) Dialect() string { return c.dialect }

// Stats returns the pool accounting snapshot.
func (c *Client) Stats() pool.Stats { return c.pool.Stats() }

// Close drains the pool, waits for outstanding checkouts (bounded by ctx)
// and closes the underlying handle.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.pool.Close(ctx); err != nil {
		return err
	}
	return c.provider.Shutdown()
}

func (c *Client) subscriber() Subscriber { return c.sub }

// exec runs one statement on a freshly checked-out connection and returns it
// to the pool. Any driver failure or in-flight cancellation marks the
// connection unhealthy so it is destroyed instead of reused.
func (c *Client) exec(ctx context.Context, stmt *sqld.Statement) (sql.Result, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	args, err := stmt.Args()
	if err != nil {
		return nil, err
	}
	pc, err := c.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := pc.Raw().ExecContext(ctx, stmt.SQL, args...)
	c.sub.StatementExecuted(ctx, stmt.Shape(), time.Since(start), err)
	pc.Release(err == nil && ctx.Err() == nil)
	if err != nil {
		return nil, driverErr(c.dialect, stmt.Shape(), err)
	}
	return res, nil
}

// query runs one statement and streams the rows to scan while the connection
// is held; it is released once scan returns.
func (c *Client) query(ctx context.Context, stmt *sqld.Statement, scan func(rows *sql.Rows) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	args, err := stmt.Args()
	if err != nil {
		return err
	}
	pc, err := c.pool.Checkout(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	rows, err := pc.Raw().QueryContext(ctx, stmt.SQL, args...)
	c.sub.StatementExecuted(ctx, stmt.Shape(), time.Since(start), err)
	if err != nil {
		pc.Release(false)
		return driverErr(c.dialect, stmt.Shape(), err)
	}
	scanErr := scan(rows)
	rowsErr := rows.Err()
	closeErr := rows.Close()
	pc.Release(ctx.Err() == nil && rowsErr == nil && closeErr == nil)
	switch {
	case scanErr != nil:
		return scanErr
	case rowsErr != nil:
		return driverErr(c.dialect, stmt.Shape(), rowsErr)
	case closeErr != nil:
		return driverErr(c.dialect, stmt.Shape(), closeErr)
	}
	return nil
}

// render times a statement rendering on behalf of an operation.
func render(ctx context.Context, s Session, build func() (*sqld.Statement, error)) (*sqld.Statement, error) {
	start := time.Now()
	stmt, err := build()
	if err != nil {
		return nil, err
	}
	s.subscriber().StatementRendered(ctx, stmt.Shape(), time.Since(start))
	return stmt, nil
}
