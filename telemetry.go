package akita

import (
	"context"
	"log/slog"
	"time"
)

// Subscriber observes structured events emitted by the core. Implementations
// must be safe for concurrent use. The absence of a subscriber never changes
// behavior; events carry statement shapes, not bind values.
type Subscriber interface {
	// PoolCheckout reports the wait time of one successful pool checkout.
	PoolCheckout(wait time.Duration)

	// StatementRendered reports the time spent rendering one statement.
	StatementRendered(ctx context.Context, shape string, d time.Duration)

	// StatementExecuted reports one statement execution, with its error
	// if it failed.
	StatementExecuted(ctx context.Context, shape string, d time.Duration, err error)

	// TxResolved reports a transaction outcome.
	TxResolved(ctx context.Context, committed bool, err error)
}

// NopSubscriber discards every event. It is the default.
type NopSubscriber struct{}

// PoolCheckout implements Subscriber.
func (NopSubscriber) PoolCheckout(time.Duration) {}

// StatementRendered implements Subscriber.
func (NopSubscriber) StatementRendered(context.Context, string, time.Duration) {}

// StatementExecuted implements Subscriber.
func (NopSubscriber) StatementExecuted(context.Context, string, time.Duration, error) {}

// TxResolved implements Subscriber.
func (NopSubscriber) TxResolved(context.Context, bool, error) {}

// SlogSubscriber logs events through log/slog. Executions slower than
// SlowThreshold log at Warn, everything else at Debug.
type SlogSubscriber struct {
	Logger *slog.Logger

	// SlowThreshold marks slow statements. Default 100ms.
	SlowThreshold time.Duration
}

// NewSlogSubscriber returns a SlogSubscriber over the given logger, or the
// default logger when nil.
func NewSlogSubscriber(logger *slog.Logger) *SlogSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSubscriber{Logger: logger, SlowThreshold: 100 * time.Millisecond}
}

// PoolCheckout implements Subscriber.
func (s *SlogSubscriber) PoolCheckout(wait time.Duration) {
	s.Logger.Debug("pool checkout", "wait", wait)
}

// StatementRendered implements Subscriber.
func (s *SlogSubscriber) StatementRendered(ctx context.Context, shape string, d time.Duration) {
	s.Logger.DebugContext(ctx, "statement rendered", "statement", shape, "duration", d)
}

// StatementExecuted implements Subscriber.
func (s *SlogSubscriber) StatementExecuted(ctx context.Context, shape string, d time.Duration, err error) {
	switch {
	case err != nil:
		s.Logger.ErrorContext(ctx, "statement failed", "statement", shape, "duration", d, "error", err)
	case d >= s.SlowThreshold:
		s.Logger.WarnContext(ctx, "slow statement detected", "statement", shape, "duration", d)
	default:
		s.Logger.DebugContext(ctx, "statement executed", "statement", shape, "duration", d)
	}
}

// TxResolved implements Subscriber.
func (s *SlogSubscriber) TxResolved(ctx context.Context, committed bool, err error) {
	switch {
	case err != nil:
		s.Logger.ErrorContext(ctx, "transaction failed", "committed", committed, "error", err)
	case committed:
		s.Logger.DebugContext(ctx, "transaction committed")
	default:
		s.Logger.DebugContext(ctx, "transaction rolled back")
	}
}

var (
	_ Subscriber = NopSubscriber{}
	_ Subscriber = (*SlogSubscriber)(nil)
)
