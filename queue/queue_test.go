package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherwood-quant/core/models"
)

func newTestQueue(account string) *Queue {
	cfg := DefaultConfig(account)
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = time.Second
	return New(NewMemStore(), cfg)
}

func TestPublishConsumeAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")

	ok, err := q.Publish(ctx, models.Signal{Symbol: "AAPL.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 72}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	sig, ok, err := q.Consume(ctx, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL.US", sig.Symbol)
	assert.NotEmpty(t, sig.OriginalJSON)

	require.NoError(t, q.Ack(ctx, *sig))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(1), stats.Succeeded)
}

// TestPriorityMonotonicity checks that a higher-priority pending signal
// is consumed strictly before a lower-priority one.
func TestPriorityMonotonicity(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")

	_, err := q.Publish(ctx, models.Signal{Symbol: "WEAK.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 40}, nil)
	require.NoError(t, err)
	_, err = q.Publish(ctx, models.Signal{Symbol: "STRONG.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 90}, nil)
	require.NoError(t, err)

	first, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "STRONG.US", first.Symbol)

	second, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "WEAK.US", second.Symbol)
}

// TestExitOutranksBuy checks that exit signals are boosted above any BUY.
func TestExitOutranksBuy(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")

	_, err := q.Publish(ctx, models.Signal{Symbol: "AAPL.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 99}, nil)
	require.NoError(t, err)
	_, err = q.Publish(ctx, models.Signal{Symbol: "MSFT.US", Side: models.SignalSideSell, Type: models.SignalStopLoss, Score: 10}, nil)
	require.NoError(t, err)

	first, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "MSFT.US", first.Symbol)
}

func TestNackRetryThenFail(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")
	q.cfg.MaxRetries = 1

	_, err := q.Publish(ctx, models.Signal{Symbol: "AAPL.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 50}, nil)
	require.NoError(t, err)

	sig, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, q.Nack(ctx, *sig, errors.New("transient"), true))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "retried signal waits in pending behind its retry_after")

	time.Sleep(5 * time.Millisecond)
	sig2, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, sig2.RetryCount)

	// second nack exceeds MaxRetries=1, must go to failed
	require.NoError(t, q.Nack(ctx, *sig2, errors.New("still failing"), true))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

// TestZombieRecovery checks that a signal stuck in processing past its
// lease is recovered back onto the pending queue.
func TestZombieRecovery(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")
	q.cfg.MaxRetries = 3

	_, err := q.Publish(ctx, models.Signal{Symbol: "AAPL.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 50}, nil)
	require.NoError(t, err)
	sig, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, sig.RetryCount)

	recovered, err := q.RecoverZombieSignals(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestRetryAllFailed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")
	q.cfg.MaxRetries = 0

	_, err := q.Publish(ctx, models.Signal{Symbol: "AAPL.US", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 50}, nil)
	require.NoError(t, err)
	sig, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.Nack(ctx, *sig, errors.New("bad"), true))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Failed)

	moved, err := q.RetryAllFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(1), stats.Pending)
}

// TestNackWithRetryAfter covers the trading-window gate's reschedule path:
// a delayed signal does not count against the retry cap.
func TestNackWithRetryAfter(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("acct1")
	q.cfg.MaxRetries = 1

	_, err := q.Publish(ctx, models.Signal{Symbol: "700.HK", Side: models.SignalSideBuy, Type: models.SignalBuy, Score: 50}, nil)
	require.NoError(t, err)

	sig, ok, err := q.Consume(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	retryAt := time.Now().Add(time.Hour)
	require.NoError(t, q.NackWithRetryAfter(ctx, *sig, retryAt))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(0), stats.Failed)

	delayed, err := q.GetDelayedSignals(ctx)
	require.NoError(t, err)
	require.Len(t, delayed, 1)
	assert.Equal(t, 0, delayed[0].RetryCount, "market-closed reschedule must not count as a retry")
}

func TestClearInvalidPartition(t *testing.T) {
	q := newTestQueue("acct1")
	err := q.Clear(context.Background(), Partition("bogus"))
	assert.Error(t, err)
}

func TestBackoffMonotoneAndCapped(t *testing.T) {
	cfg := DefaultConfig("acct1")
	cfg.BaseBackoff = 30 * time.Second
	cfg.MaxBackoff = 30 * time.Minute

	prev := time.Duration(0)
	for n := 0; n <= 8; n++ {
		d := cfg.Backoff(n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, cfg.MaxBackoff)
		prev = d
	}
	assert.Equal(t, cfg.MaxBackoff, cfg.Backoff(6))
	assert.Equal(t, cfg.MaxBackoff, cfg.Backoff(7))
}
