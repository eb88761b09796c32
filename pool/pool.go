// Package pool implements a bounded pool of live engine connections, generic
// over a connection-provider capability. The pool owns idle connections;
// a checked-out connection is exclusively owned by one caller until returned.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrExhausted is returned when a checkout times out waiting for
	// capacity. The pool never grows past its configured maximum.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrClosed is returned when checking out from a closed pool.
	ErrClosed = errors.New("pool: closed")
)

// Provider opens, validates and closes connections of type C on behalf of the
// pool. Implementations must be safe for concurrent use.
type Provider[C any] interface {
	// Open dials a new connection. The context carries the connect timeout.
	Open(ctx context.Context) (C, error)

	// Alive reports whether the connection can still serve statements.
	Alive(ctx context.Context, conn C) bool

	// Close tears the connection down.
	Close(conn C) error
}

// Config holds the pool sizing parameters. The zero value is usable; see the
// field defaults.
type Config struct {
	// MaxSize bounds open connections (idle + checked out). Default 8.
	MaxSize int

	// MinIdle is the idle floor the background sweep maintains. Default 0.
	MinIdle int

	// IdleTimeout closes idle connections older than this. Default 5m.
	IdleTimeout time.Duration

	// MaxLifetime closes connections regardless of activity. Default 30m.
	MaxLifetime time.Duration

	// ConnectTimeout bounds each Provider.Open call. Default 5s.
	ConnectTimeout time.Duration

	// SweepInterval is the period of the idle eviction sweep. Default 30s.
	SweepInterval time.Duration

	// CheckoutHook, if set, observes the wait time of every successful
	// checkout. Absence of a hook does not change behavior.
	CheckoutHook func(wait time.Duration)
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 8
	}
	if c.MinIdle < 0 {
		c.MinIdle = 0
	}
	if c.MinIdle > c.MaxSize {
		c.MinIdle = c.MaxSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 30 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	return c
}

type entry[C any] struct {
	conn      C
	createdAt time.Time
	idleSince time.Time
}

// Pool is a bounded connection pool. Construct it with New; the zero value is
// not usable.
type Pool[C any] struct {
	provider Provider[C]
	cfg      Config
	sem      *semaphore.Weighted

	mu     sync.Mutex
	idle   []*entry[C] // LIFO: most recently used first
	size   int         // open connections, idle included
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds a pool over the given provider. Connections are created lazily
// up to Config.MaxSize. The background sweep starts immediately.
func New[C any](provider Provider[C], cfg Config) *Pool[C] {
	p := &Pool[C]{
		provider: provider,
		cfg:      cfg.withDefaults(),
		done:     make(chan struct{}),
	}
	p.sem = semaphore.NewWeighted(int64(p.cfg.MaxSize))
	p.wg.Add(1)
	go p.sweep()
	return p
}

// Conn is a checked-out pooled connection, exclusively owned by its holder
// until released.
type Conn[C any] struct {
	pool  *Pool[C]
	entry *entry[C]
	once  sync.Once
}

// Raw returns the underlying connection.
func (c *Conn[C]) Raw() C { return c.entry.conn }

// Release hands the connection back. A healthy connection re-enters the idle
// set; an unhealthy one is closed and its slot freed so a future checkout can
// open a replacement. Release is idempotent.
func (c *Conn[C]) Release(healthy bool) {
	c.once.Do(func() { c.pool.put(c.entry, healthy) })
}

// Checkout blocks until a validated connection is available, the context is
// done, or the pool is exhausted. The caller bounds the wait through ctx; on
// expiry the error wraps ErrExhausted.
func (p *Pool[C]) Checkout(ctx context.Context) (*Conn[C], error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	// Capacity held from here on; every exit path must release it on failure.
	for {
		e, ok, err := p.popIdle()
		if err != nil {
			p.sem.Release(1)
			return nil, err
		}
		if !ok {
			break
		}
		if p.expired(e, time.Now()) || !p.provider.Alive(ctx, e.conn) {
			p.discard(e)
			continue
		}
		return p.checkedOut(e, start), nil
	}
	openCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	conn, err := p.provider.Open(openCtx)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("pool: open connection: %w", err)
	}
	e := &entry[C]{conn: conn, createdAt: time.Now()}
	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	return p.checkedOut(e, start), nil
}

func (p *Pool[C]) checkedOut(e *entry[C], start time.Time) *Conn[C] {
	// The connection is busy from here on; idle accounting restarts when it
	// is released, so IdleTimeout never counts checked-out time.
	e.idleSince = time.Time{}
	if hook := p.cfg.CheckoutHook; hook != nil {
		hook(time.Since(start))
	}
	return &Conn[C]{pool: p, entry: e}
}

func (p *Pool[C]) popIdle() (*entry[C], bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, ErrClosed
	}
	n := len(p.idle)
	if n == 0 {
		return nil, false, nil
	}
	e := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	return e, true, nil
}

// put re-inserts a returned connection, or closes it when unhealthy or the
// pool has shut down. Size accounting and the idle set change under one lock.
func (p *Pool[C]) put(e *entry[C], healthy bool) {
	p.mu.Lock()
	if !healthy || p.closed || p.expired(e, time.Now()) {
		p.size--
		p.mu.Unlock()
		_ = p.provider.Close(e.conn)
	} else {
		e.idleSince = time.Now()
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}
	p.sem.Release(1)
}

// discard closes a connection that failed validation while being checked out.
// Capacity is kept by the caller, which retries or opens a replacement.
func (p *Pool[C]) discard(e *entry[C]) {
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
	_ = p.provider.Close(e.conn)
}

func (p *Pool[C]) expired(e *entry[C], now time.Time) bool {
	if now.Sub(e.createdAt) >= p.cfg.MaxLifetime {
		return true
	}
	return !e.idleSince.IsZero() && now.Sub(e.idleSince) >= p.cfg.IdleTimeout
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	Open int // connections open (idle + checked out)
	Idle int // connections in the idle set
}

// Stats returns the current pool accounting.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Open: p.size, Idle: len(p.idle)}
}

// sweep periodically evicts idle connections past IdleTimeout or MaxLifetime
// and tops the idle set back up to MinIdle, keeping the live count within
// [MinIdle, MaxSize].
func (p *Pool[C]) sweep() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			p.evictExpired(now)
			p.fillMinIdle()
		}
	}
}

func (p *Pool[C]) evictExpired(now time.Time) {
	p.mu.Lock()
	var kept, expired []*entry[C]
	for _, e := range p.idle {
		if p.expired(e, now) {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	p.idle = kept
	p.size -= len(expired)
	p.mu.Unlock()
	for _, e := range expired {
		_ = p.provider.Close(e.conn)
	}
}

func (p *Pool[C]) fillMinIdle() {
	for {
		p.mu.Lock()
		need := !p.closed && p.size < p.cfg.MinIdle
		p.mu.Unlock()
		if !need || !p.sem.TryAcquire(1) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
		conn, err := p.provider.Open(ctx)
		cancel()
		if err != nil {
			p.sem.Release(1)
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = p.provider.Close(conn)
			p.sem.Release(1)
			return
		}
		p.size++
		p.idle = append(p.idle, &entry[C]{conn: conn, createdAt: time.Now(), idleSince: time.Now()})
		p.mu.Unlock()
		p.sem.Release(1)
	}
}

// Close shuts the pool down: the sweep stops, idle connections close, and
// Close waits for outstanding checkouts to be released before returning.
// The wait is bounded by ctx.
func (p *Pool[C]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.size -= len(idle)
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	for _, e := range idle {
		_ = p.provider.Close(e.conn)
	}
	// Outstanding checkouts still hold capacity; draining the semaphore
	// waits for each of them to be released.
	if err := p.sem.Acquire(ctx, int64(p.cfg.MaxSize)); err != nil {
		return fmt.Errorf("pool: close: %w", err)
	}
	p.sem.Release(int64(p.cfg.MaxSize))
	return nil
}
