// Package queue implements the durable, per-account priority queue that
// decouples signal generation from order execution.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/tracing"
)

// Config tunes queue behaviour; it is a record, not a singleton, so every
// Queue is constructed with its own copy rather than sharing global state.
type Config struct {
	// Account namespaces every key this Queue touches.
	Account string
	// MaxRetries is the retry cap before a signal moves to failed.
	MaxRetries int
	// BaseBackoff is the base duration for backoff(n) = BaseBackoff * 2^min(n, 6).
	BaseBackoff time.Duration
	// MaxBackoff caps the computed backoff.
	MaxBackoff time.Duration
	// ZombieTimeout is the default age after which a processing signal is
	// considered stranded.
	ZombieTimeout time.Duration
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig(account string) Config {
	return Config{
		Account:       account,
		MaxRetries:    5,
		BaseBackoff:   30 * time.Second,
		MaxBackoff:    30 * time.Minute,
		ZombieTimeout: 5 * time.Minute,
	}
}

// Backoff computes the monotone, capped retry delay: base*2^min(n,6).
func (c Config) Backoff(retryCount int) time.Duration {
	shift := retryCount
	if shift > 6 {
		shift = 6
	}
	d := c.BaseBackoff * time.Duration(1<<uint(shift))
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Stats reports the size of each partition plus lifetime counters.
type Stats struct {
	Pending    int64
	Processing int64
	Failed     int64
	Processed  int64
	Succeeded  int64
}

// Partition names accepted by Clear.
type Partition string

const (
	PartitionPending    Partition = "pending"
	PartitionProcessing Partition = "processing"
	PartitionFailed     Partition = "failed"
)

// Store is the durable backend a Queue is built on. A Redis sorted-set
// implementation (RedisStore) and an in-memory test double both satisfy
// it; Queue itself holds no store-specific logic.
type Store interface {
	// Insert adds payload into partition with the given score (priority
	// for pending, take-time for processing, fail-time for failed).
	Insert(ctx context.Context, account string, partition Partition, payload []byte, score float64) error
	// PopMin atomically removes and returns the lowest-scored member of
	// partition, or ok=false if partition is empty. SQ stores priority as
	// a negated score so "pop min" yields "highest priority".
	PopMin(ctx context.Context, account string, partition Partition) (payload []byte, score float64, ok bool, err error)
	// Remove deletes the exact payload from partition; used by ack/nack/
	// zombie-recovery. Returns whether a member was actually removed.
	Remove(ctx context.Context, account string, partition Partition, payload []byte) (bool, error)
	// RangeOlderThan returns every member of partition with score <= cutoff.
	RangeOlderThan(ctx context.Context, account string, partition Partition, cutoff float64) ([][]byte, error)
	// RangeAll returns every member of partition, most-recently-inserted first.
	RangeAll(ctx context.Context, account string, partition Partition) ([][]byte, error)
	// Card returns the number of members in partition.
	Card(ctx context.Context, account string, partition Partition) (int64, error)
	// Clear deletes every member of partition.
	Clear(ctx context.Context, account string, partition Partition) error
	// IncrCounter increments a named lifetime counter (processed, succeeded).
	IncrCounter(ctx context.Context, account string, name string) error
	// GetCounter reads a named lifetime counter.
	GetCounter(ctx context.Context, account string, name string) (int64, error)
}

// Queue is the per-account priority queue sitting between signal
// generation and order execution. All operations are safe to call from
// multiple goroutines/processes sharing the same Store and account
// namespace.
type Queue struct {
	store Store
	cfg   Config
}

// New constructs a Queue bound to store for the account in cfg.
func New(store Store, cfg Config) *Queue {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig(cfg.Account).MaxRetries
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = DefaultConfig(cfg.Account).BaseBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultConfig(cfg.Account).MaxBackoff
	}
	if cfg.ZombieTimeout == 0 {
		cfg.ZombieTimeout = DefaultConfig(cfg.Account).ZombieTimeout
	}
	return &Queue{store: store, cfg: cfg}
}

// Publish validates and inserts signal into pending. priority, when
// non-nil, overrides signal's own DefaultPriority. Publish never blocks
// and never returns a store error to the caller as fatal; it reports
// success as a bool instead.
func (q *Queue) Publish(ctx context.Context, signal models.Signal, priority *float64) (bool, error) {
	if signal.Symbol == "" || (signal.Side == "" && signal.Type == "") {
		return false, fmt.Errorf("queue: signal missing symbol or side/type")
	}
	signal.Account = q.cfg.Account
	signal.QueuedAt = time.Now()
	if signal.TraceID == "" {
		signal.TraceID = tracing.TraceIDFromCtx(ctx)
	}

	p := signal.DefaultPriority()
	if priority != nil {
		p = *priority
	}
	signal.QueuePriority = p

	payload, err := json.Marshal(signal)
	if err != nil {
		return false, fmt.Errorf("queue: marshal signal: %w", err)
	}

	// Store priority negated so PopMin (lowest score) returns the highest
	// priority signal; ties broken by enqueue time via a tiny fractional
	// offset so earlier-queued signals sort first among equal priorities.
	storeScore := -p + float64(signal.QueuedAt.UnixNano())/1e18

	if err := q.store.Insert(ctx, q.cfg.Account, PartitionPending, payload, storeScore); err != nil {
		return false, fmt.Errorf("queue: insert pending: %w", err)
	}
	return true, nil
}

// Consume atomically moves the highest-priority pending signal into
// processing and returns it. When autoRecover is true and pending is
// empty, it first recovers zombie signals and retries once.
func (q *Queue) Consume(ctx context.Context, autoRecover bool) (*models.Signal, bool, error) {
	sig, ok, err := q.popPending(ctx)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return sig, true, nil
	}
	if !autoRecover {
		return nil, false, nil
	}
	if _, err := q.RecoverZombieSignals(ctx, 0); err != nil {
		return nil, false, err
	}
	return q.popPending(ctx)
}

func (q *Queue) popPending(ctx context.Context) (*models.Signal, bool, error) {
	payload, _, ok, err := q.store.PopMin(ctx, q.cfg.Account, PartitionPending)
	if err != nil {
		return nil, false, fmt.Errorf("queue: pop pending: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var sig models.Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return nil, false, fmt.Errorf("queue: unmarshal pending signal: %w", err)
	}
	if sig.RetryAfter != nil && sig.RetryAfter.After(time.Now()) {
		// Not due yet; reinsert and report empty rather than busy-loop here
		// — the caller's poll backoff handles re-checking.
		if err := q.store.Insert(ctx, q.cfg.Account, PartitionPending, payload, -sig.QueuePriority); err != nil {
			return nil, false, fmt.Errorf("queue: reinsert delayed signal: %w", err)
		}
		return nil, false, nil
	}
	sig.OriginalJSON = payload

	processingPayload, err := json.Marshal(sig)
	if err != nil {
		return nil, false, fmt.Errorf("queue: marshal processing signal: %w", err)
	}
	if err := q.store.Insert(ctx, q.cfg.Account, PartitionProcessing, processingPayload, float64(time.Now().Unix())); err != nil {
		return nil, false, fmt.Errorf("queue: insert processing: %w", err)
	}
	if err := q.store.IncrCounter(ctx, q.cfg.Account, "processed"); err != nil {
		return nil, false, fmt.Errorf("queue: incr processed counter: %w", err)
	}
	return &sig, true, nil
}

// Ack removes signal from processing using its OriginalJSON for exact
// match, and increments the success counter.
func (q *Queue) Ack(ctx context.Context, signal models.Signal) error {
	if len(signal.OriginalJSON) == 0 {
		return fmt.Errorf("queue: ack requires OriginalJSON")
	}
	removed, err := q.store.Remove(ctx, q.cfg.Account, PartitionProcessing, signal.OriginalJSON)
	if err != nil {
		return fmt.Errorf("queue: remove from processing: %w", err)
	}
	if !removed {
		return fmt.Errorf("queue: ack: signal not found in processing")
	}
	return q.store.IncrCounter(ctx, q.cfg.Account, "succeeded")
}

// Nack removes signal from processing. If retry is true and the signal
// hasn't exhausted MaxRetries, it is reinserted into pending with a later
// retry_after and decreased priority; otherwise it moves to failed.
func (q *Queue) Nack(ctx context.Context, signal models.Signal, cause error, retry bool) error {
	if len(signal.OriginalJSON) == 0 {
		return fmt.Errorf("queue: nack requires OriginalJSON")
	}
	if _, err := q.store.Remove(ctx, q.cfg.Account, PartitionProcessing, signal.OriginalJSON); err != nil {
		return fmt.Errorf("queue: remove from processing: %w", err)
	}

	if retry && signal.RetryCount < q.cfg.MaxRetries {
		signal.RetryCount++
		if cause != nil {
			signal.LastError = cause.Error()
		}
		retryAt := time.Now().Add(q.cfg.Backoff(signal.RetryCount))
		signal.RetryAfter = &retryAt
		signal.QueuePriority = signal.QueuePriority - float64(signal.RetryCount)

		payload, err := json.Marshal(signal)
		if err != nil {
			return fmt.Errorf("queue: marshal retry signal: %w", err)
		}
		score := -signal.QueuePriority + float64(time.Now().UnixNano())/1e18
		if err := q.store.Insert(ctx, q.cfg.Account, PartitionPending, payload, score); err != nil {
			return fmt.Errorf("queue: reinsert pending: %w", err)
		}
		return nil
	}

	if cause != nil {
		signal.LastError = cause.Error()
	}
	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("queue: marshal failed signal: %w", err)
	}
	return q.store.Insert(ctx, q.cfg.Account, PartitionFailed, payload, float64(time.Now().Unix()))
}

// NackWithRetryAfter removes signal from processing and reinserts it into
// pending with an explicit retry_after, without incrementing RetryCount or
// consulting MaxRetries — used for the trading-window gate, where the
// delay reflects the market's schedule rather than a failure.
func (q *Queue) NackWithRetryAfter(ctx context.Context, signal models.Signal, retryAfter time.Time) error {
	if len(signal.OriginalJSON) == 0 {
		return fmt.Errorf("queue: nack requires OriginalJSON")
	}
	if _, err := q.store.Remove(ctx, q.cfg.Account, PartitionProcessing, signal.OriginalJSON); err != nil {
		return fmt.Errorf("queue: remove from processing: %w", err)
	}

	signal.RetryAfter = &retryAfter
	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("queue: marshal delayed signal: %w", err)
	}
	score := -signal.QueuePriority + float64(time.Now().UnixNano())/1e18
	return q.store.Insert(ctx, q.cfg.Account, PartitionPending, payload, score)
}

// GetDelayedSignals returns pending signals whose retry_after is in the
// future.
func (q *Queue) GetDelayedSignals(ctx context.Context) ([]models.Signal, error) {
	raw, err := q.store.RangeAll(ctx, q.cfg.Account, PartitionPending)
	if err != nil {
		return nil, fmt.Errorf("queue: range pending: %w", err)
	}
	now := time.Now()
	var out []models.Signal
	for _, payload := range raw {
		var sig models.Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			continue
		}
		if sig.RetryAfter != nil && sig.RetryAfter.After(now) {
			out = append(out, sig)
		}
	}
	return out, nil
}

// RecoverZombieSignals moves every processing signal older than timeout
// back to pending (or to failed once it has exhausted retries). timeout=0
// means "all", used at OE startup to reclaim a crashed worker's signals.
func (q *Queue) RecoverZombieSignals(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := float64(time.Now().Unix())
	if timeout > 0 {
		cutoff = float64(time.Now().Add(-timeout).Unix())
	}
	stale, err := q.store.RangeOlderThan(ctx, q.cfg.Account, PartitionProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("queue: range processing: %w", err)
	}

	recovered := 0
	for _, payload := range stale {
		var sig models.Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			// Can't even parse it; move straight to failed so it isn't lost.
			_, _ = q.store.Remove(ctx, q.cfg.Account, PartitionProcessing, payload)
			_ = q.store.Insert(ctx, q.cfg.Account, PartitionFailed, payload, float64(time.Now().Unix()))
			continue
		}
		if _, err := q.store.Remove(ctx, q.cfg.Account, PartitionProcessing, payload); err != nil {
			return recovered, fmt.Errorf("queue: remove zombie from processing: %w", err)
		}

		if sig.RetryCount >= q.cfg.MaxRetries {
			if err := q.store.Insert(ctx, q.cfg.Account, PartitionFailed, payload, float64(time.Now().Unix())); err != nil {
				return recovered, fmt.Errorf("queue: move zombie to failed: %w", err)
			}
			continue
		}

		sig.OriginalJSON = nil
		newPayload, err := json.Marshal(sig)
		if err != nil {
			return recovered, fmt.Errorf("queue: marshal recovered signal: %w", err)
		}
		score := -sig.QueuePriority + float64(time.Now().UnixNano())/1e18
		if err := q.store.Insert(ctx, q.cfg.Account, PartitionPending, newPayload, score); err != nil {
			return recovered, fmt.Errorf("queue: reinsert recovered signal: %w", err)
		}
		recovered++
	}
	return recovered, nil
}

// Stats reports partition sizes and lifetime counters.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pending, err := q.store.Card(ctx, q.cfg.Account, PartitionPending)
	if err != nil {
		return Stats{}, err
	}
	processing, err := q.store.Card(ctx, q.cfg.Account, PartitionProcessing)
	if err != nil {
		return Stats{}, err
	}
	failed, err := q.store.Card(ctx, q.cfg.Account, PartitionFailed)
	if err != nil {
		return Stats{}, err
	}
	processed, err := q.store.GetCounter(ctx, q.cfg.Account, "processed")
	if err != nil {
		return Stats{}, err
	}
	succeeded, err := q.store.GetCounter(ctx, q.cfg.Account, "succeeded")
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Pending:    pending,
		Processing: processing,
		Failed:     failed,
		Processed:  processed,
		Succeeded:  succeeded,
	}, nil
}

// Clear is an administrative operation that empties one partition.
func (q *Queue) Clear(ctx context.Context, partition Partition) error {
	switch partition {
	case PartitionPending, PartitionProcessing, PartitionFailed:
		return q.store.Clear(ctx, q.cfg.Account, partition)
	default:
		return fmt.Errorf("queue: invalid partition %q", partition)
	}
}

// RetryAllFailed moves every failed signal back to pending: a bulk
// salvage operation distinct from per-signal retry.
func (q *Queue) RetryAllFailed(ctx context.Context) (int, error) {
	failed, err := q.store.RangeAll(ctx, q.cfg.Account, PartitionFailed)
	if err != nil {
		return 0, fmt.Errorf("queue: range failed: %w", err)
	}
	moved := 0
	for _, payload := range failed {
		var sig models.Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			continue
		}
		sig.RetryCount = 0
		sig.RetryAfter = nil
		sig.LastError = ""
		newPayload, err := json.Marshal(sig)
		if err != nil {
			continue
		}
		score := -sig.QueuePriority + float64(time.Now().UnixNano())/1e18
		if err := q.store.Insert(ctx, q.cfg.Account, PartitionPending, newPayload, score); err != nil {
			return moved, fmt.Errorf("queue: reinsert failed signal: %w", err)
		}
		if _, err := q.store.Remove(ctx, q.cfg.Account, PartitionFailed, payload); err != nil {
			return moved, fmt.Errorf("queue: remove retried failed signal: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Recent peeks at up to limit of the most recently published pending
// signals without consuming them.
func (q *Queue) Recent(ctx context.Context, limit int) ([]models.Signal, error) {
	raw, err := q.store.RangeAll(ctx, q.cfg.Account, PartitionPending)
	if err != nil {
		return nil, fmt.Errorf("queue: range pending: %w", err)
	}
	var out []models.Signal
	for i := len(raw) - 1; i >= 0 && len(out) < limit; i-- {
		var sig models.Signal
		if err := json.Unmarshal(raw[i], &sig); err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}
