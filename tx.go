package akita

import (
	"context"
	"database/sql"
	"sync"
	"time"

	sqld "github.com/syssam/akita/dialect/sql"
	"github.com/syssam/akita/pool"
)

// Tx owns one checked-out connection for its whole lifetime. Operations
// issued on the same Tx are strictly ordered; the connection returns to the
// pool only when the transaction resolves. A Tx that is closed without an
// explicit Commit rolls back — it never silently commits.
type Tx struct {
	client *Client
	pc     *pool.Conn[*sqld.Conn]
	tx     *sql.Tx

	mu        sync.Mutex
	done      bool
	unhealthy bool
}

// Begin checks a connection out and opens a transaction on it.
func (c *Client) Begin(ctx context.Context) (*Tx, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	pc, err := c.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := pc.Raw().BeginTx(ctx, nil)
	if err != nil {
		// The connection state after a failed BEGIN is unknown.
		pc.Release(false)
		return nil, driverErr(c.dialect, "BEGIN", err)
	}
	return &Tx{client: c, pc: pc, tx: tx}, nil
}

// WithTx runs fn inside a transaction: commit on success, rollback on any
// failure. A mid-sequence failure is returned as a TransactionAbortedError
// carrying the original error; if the rollback fails too, both are reported
// and the original is never masked.
func (c *Client) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Close()
	if err := fn(tx); err != nil {
		aborted := &TransactionAbortedError{Err: err}
		if rbErr := tx.rollback(ctx); rbErr != nil && rbErr != ErrTxDone {
			aborted.RollbackErr = rbErr
		}
		return aborted
	}
	return tx.Commit()
}

// Dialect returns the engine tag of the owning client.
func (t *Tx) Dialect() string { return t.client.dialect }

func (t *Tx) subscriber() Subscriber { return t.client.sub }

// Commit commits the transaction and returns the connection to the pool.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	err := t.tx.Commit()
	t.client.sub.TxResolved(context.Background(), true, err)
	t.pc.Release(err == nil && !t.unhealthy)
	if err != nil {
		return driverErr(t.client.dialect, "COMMIT", err)
	}
	return nil
}

// Rollback aborts the transaction and returns the connection to the pool.
func (t *Tx) Rollback() error {
	return t.rollback(context.Background())
}

func (t *Tx) rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	err := t.tx.Rollback()
	t.client.sub.TxResolved(ctx, false, err)
	t.pc.Release(err == nil && !t.unhealthy)
	if err != nil {
		return driverErr(t.client.dialect, "ROLLBACK", err)
	}
	return nil
}

// Close rolls the transaction back unless it was explicitly resolved. Safe
// to defer right after Begin.
func (t *Tx) Close() error {
	err := t.Rollback()
	if err == ErrTxDone {
		return nil
	}
	return err
}

func (t *Tx) exec(ctx context.Context, stmt *sqld.Statement) (sql.Result, error) {
	args, err := stmt.Args()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, ErrTxDone
	}
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, stmt.SQL, args...)
	t.client.sub.StatementExecuted(ctx, stmt.Shape(), time.Since(start), err)
	if err != nil || ctx.Err() != nil {
		t.unhealthy = true
	}
	if err != nil {
		return nil, driverErr(t.client.dialect, stmt.Shape(), err)
	}
	return res, nil
}

func (t *Tx) query(ctx context.Context, stmt *sqld.Statement, scan func(rows *sql.Rows) error) error {
	args, err := stmt.Args()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	start := time.Now()
	rows, err := t.tx.QueryContext(ctx, stmt.SQL, args...)
	t.client.sub.StatementExecuted(ctx, stmt.Shape(), time.Since(start), err)
	if err != nil {
		t.unhealthy = true
		return driverErr(t.client.dialect, stmt.Shape(), err)
	}
	scanErr := scan(rows)
	rowsErr := rows.Err()
	closeErr := rows.Close()
	if ctx.Err() != nil || rowsErr != nil || closeErr != nil {
		t.unhealthy = true
	}
	switch {
	case scanErr != nil:
		return scanErr
	case rowsErr != nil:
		return driverErr(t.client.dialect, stmt.Shape(), rowsErr)
	case closeErr != nil:
		return driverErr(t.client.dialect, stmt.Shape(), closeErr)
	}
	return nil
}

var (
	_ Session = (*Client)(nil)
	_ Session = (*Tx)(nil)
)
