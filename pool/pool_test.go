package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id int
}

type fakeProvider struct {
	mu      sync.Mutex
	opened  int
	closed  int
	openErr error
	dead    map[int]bool
}

func (p *fakeProvider) Open(ctx context.Context) (*fakeConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opened++
	return &fakeConn{id: p.opened}, nil
}

func (p *fakeProvider) Alive(ctx context.Context, c *fakeConn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead[c.id]
}

func (p *fakeProvider) Close(c *fakeConn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakeProvider) kill(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead == nil {
		p.dead = map[int]bool{}
	}
	p.dead[id] = true
}

func (p *fakeProvider) counts() (opened, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened, p.closed
}

func newTestPool(t *testing.T, cfg Config) (*Pool[*fakeConn], *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{}
	p := New[*fakeConn](provider, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p, provider
}

func TestCheckoutReusesIdle(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{MaxSize: 4})

	c1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	first := c1.Raw()
	c1.Release(true)

	c2, err := p.Checkout(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, c2.Raw())
	c2.Release(true)

	opened, _ := provider.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, Stats{Open: 1, Idle: 1}, p.Stats())
}

func TestCheckoutBoundedByMaxSize(t *testing.T) {
	t.Parallel()
	p, _ := newTestPool(t, Config{MaxSize: 2})

	c1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c2, err := p.Checkout(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	// A release frees capacity for the next waiter.
	c1.Release(true)
	c3, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c3.Release(true)
	c2.Release(true)
}

func TestUnhealthyReleaseClosesConn(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{MaxSize: 2})

	c1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	first := c1.Raw()
	c1.Release(false)

	_, closed := provider.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, Stats{Open: 0, Idle: 0}, p.Stats())

	// The freed slot admits a fresh connection.
	c2, err := p.Checkout(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, c2.Raw())
	c2.Release(true)
}

func TestReleaseIdempotent(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{MaxSize: 2})

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c.Release(true)
	c.Release(false)
	c.Release(true)

	_, closed := provider.counts()
	assert.Equal(t, 0, closed)
	assert.Equal(t, Stats{Open: 1, Idle: 1}, p.Stats())
}

func TestDeadIdleConnRevalidated(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{MaxSize: 2})

	c1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	id := c1.Raw().id
	c1.Release(true)
	provider.kill(id)

	c2, err := p.Checkout(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, id, c2.Raw().id)
	c2.Release(true)

	opened, closed := provider.counts()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, closed)
}

func TestOpenFailureReleasesCapacity(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{MaxSize: 1})

	provider.mu.Lock()
	provider.openErr = errors.New("dial refused")
	provider.mu.Unlock()

	_, err := p.Checkout(context.Background())
	require.Error(t, err)

	provider.mu.Lock()
	provider.openErr = nil
	provider.mu.Unlock()

	// The failed attempt must not leak its capacity slot.
	c, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c.Release(true)
}

func TestSweepEvictsIdle(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{
		MaxSize:       2,
		IdleTimeout:   10 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c.Release(true)

	require.Eventually(t, func() bool {
		return p.Stats().Open == 0
	}, time.Second, 5*time.Millisecond)
	_, closed := provider.counts()
	assert.Equal(t, 1, closed)
}

func TestSweepMaintainsMinIdle(t *testing.T) {
	t.Parallel()
	p, _ := newTestPool(t, Config{
		MaxSize:       4,
		MinIdle:       2,
		SweepInterval: 5 * time.Millisecond,
	})

	require.Eventually(t, func() bool {
		return p.Stats().Idle >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestHeldConnOutlivesIdleTimeout(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{
		MaxSize:       2,
		IdleTimeout:   30 * time.Millisecond,
		SweepInterval: time.Hour,
	})

	c1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c1.Release(true)

	// Hold the connection past IdleTimeout: busy time is not idle time, so
	// a healthy return must re-enter the idle set.
	c2, err := p.Checkout(context.Background())
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	c2.Release(true)

	assert.Equal(t, Stats{Open: 1, Idle: 1}, p.Stats())
	_, closed := provider.counts()
	assert.Equal(t, 0, closed)
}

func TestExpiredLifetimeNotReused(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{
		MaxSize:     2,
		MaxLifetime: 20 * time.Millisecond,
		// Keep the sweep out of the way so the checkout path does the eviction.
		SweepInterval: time.Hour,
	})

	c1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	id := c1.Raw().id
	c1.Release(true)

	time.Sleep(30 * time.Millisecond)
	c2, err := p.Checkout(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, id, c2.Raw().id)
	c2.Release(true)

	opened, _ := provider.counts()
	assert.Equal(t, 2, opened)
}

func TestCheckoutHookObservesWait(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var waits []time.Duration
	provider := &fakeProvider{}
	p := New[*fakeConn](provider, Config{
		MaxSize: 1,
		CheckoutHook: func(wait time.Duration) {
			mu.Lock()
			waits = append(waits, wait)
			mu.Unlock()
		},
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Close(ctx)
	}()

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c.Release(true)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, waits, 1)
}

func TestCloseWaitsForOutstanding(t *testing.T) {
	t.Parallel()
	p, provider := newTestPool(t, Config{MaxSize: 2})

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Release(true)
		close(released)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	<-released

	_, closed := provider.counts()
	assert.Equal(t, 1, closed)
}

func TestCheckoutAfterClose(t *testing.T) {
	t.Parallel()
	p, _ := newTestPool(t, Config{MaxSize: 2})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))

	_, err := p.Checkout(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestCloseTimesOutOnHeldConn(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	p := New[*fakeConn](provider, Config{MaxSize: 1})

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, p.Close(ctx))
	c.Release(true)
}
