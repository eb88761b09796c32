package akita

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogSubscriberLevels(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sub := NewSlogSubscriber(logger)
	ctx := context.Background()

	sub.StatementExecuted(ctx, "SELECT 1 [0 binds]", time.Millisecond, nil)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "statement executed")
	buf.Reset()

	sub.StatementExecuted(ctx, "SELECT 1 [0 binds]", 200*time.Millisecond, nil)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "slow statement")
	buf.Reset()

	sub.StatementExecuted(ctx, "SELECT 1 [0 binds]", time.Millisecond, assert.AnError)
	assert.Contains(t, buf.String(), "level=ERROR")
	buf.Reset()

	sub.TxResolved(ctx, true, nil)
	assert.Contains(t, buf.String(), "transaction committed")
	buf.Reset()

	sub.TxResolved(ctx, false, nil)
	assert.Contains(t, buf.String(), "transaction rolled back")
}

func TestNewSlogSubscriberDefaults(t *testing.T) {
	t.Parallel()
	sub := NewSlogSubscriber(nil)
	require.NotNil(t, sub.Logger)
	assert.Equal(t, 100*time.Millisecond, sub.SlowThreshold)
}
