package models

import "time"

// SignalSide is the trade direction a signal calls for.
type SignalSide string

const (
	SignalSideBuy  SignalSide = "BUY"
	SignalSideSell SignalSide = "SELL"
)

// SignalType refines Side with the specific reason a signal was produced.
// OE and the notifier branch on this to decide sizing and wording; SQ reads
// it, together with Score, to compute queue priority (see DefaultPriority).
type SignalType string

const (
	SignalBuy       SignalType = "BUY"
	SignalStrongBuy SignalType = "STRONG_BUY"
	SignalWeakBuy   SignalType = "WEAK_BUY"

	SignalSell       SignalType = "SELL"
	SignalStopLoss   SignalType = "STOP_LOSS"
	SignalTakeProfit SignalType = "TAKE_PROFIT"
	SignalPartialExit SignalType = "PARTIAL_EXIT"
	SignalGradualExit SignalType = "GRADUAL_EXIT"
	SignalUrgentSell  SignalType = "URGENT_SELL"

	SignalAddPosition SignalType = "ADD_POSITION"

	SignalRotationSell SignalType = "ROTATION_SELL"
	SignalRotationBuy  SignalType = "ROTATION_BUY"

	// SignalHold is never queued; strategies return it to mean "no action".
	SignalHold SignalType = "HOLD"
)

// exitSeverity ranks exit signal types for the "10_000 - severity" queue
// priority boost — lower severity sorts first.
var exitSeverity = map[SignalType]int{
	SignalStopLoss:     0,
	SignalTakeProfit:   0,
	SignalUrgentSell:   10,
	SignalRotationSell: 10,
	SignalPartialExit:  20,
	SignalGradualExit:  30,
}

// IsExit reports whether t is one of the exit-class signal types that must
// outrank ordinary BUY signals in the queue.
func (t SignalType) IsExit() bool {
	_, ok := exitSeverity[t]
	return ok
}

// Severity returns the exit severity used to compute queue priority; it is
// only meaningful when IsExit() is true.
func (t SignalType) Severity() int {
	return exitSeverity[t]
}

// Signal is the structured record that flows end-to-end through the queue,
// from a strategy's OnData call through to the executor's ack/nack.
type Signal struct {
	Symbol string     `json:"symbol"`
	Side   SignalSide `json:"side"`
	Type   SignalType `json:"type"`

	// Score is 0-100, higher meaning stronger/more urgent.
	Score int     `json:"score"`
	Price float64 `json:"price"`
	// Quantity is optional; when zero the executor computes its own size.
	Quantity float64 `json:"quantity,omitempty"`

	Reasons  []string `json:"reasons"`
	Strategy string   `json:"strategy"`

	// Risk hints, all optional.
	StopLoss       float64 `json:"stop_loss,omitempty"`
	TakeProfit     float64 `json:"take_profit,omitempty"`
	BudgetPct      float64 `json:"budget_pct,omitempty"`
	BudgetNotional float64 `json:"budget_notional,omitempty"`

	// SQ bookkeeping. Set by the queue, not by the producer.
	Account      string     `json:"account,omitempty"`
	QueuedAt     time.Time  `json:"queued_at,omitempty"`
	QueuePriority float64   `json:"queue_priority,omitempty"`
	RetryCount   int        `json:"retry_count,omitempty"`
	RetryAfter   *time.Time `json:"retry_after,omitempty"`
	LastError    string     `json:"last_error,omitempty"`

	// TraceID carries the producing tick's trace ID across the queue so the
	// consuming OE can correlate its log lines back to the SG tick that
	// generated the signal, even though SG and OE never call each other
	// directly.
	TraceID string `json:"trace_id,omitempty"`

	// OriginalJSON is the exact serialized form SQ stored the signal under;
	// ack/nack use it for exact-match removal from the processing set. It
	// is never round-tripped through JSON itself.
	OriginalJSON []byte `json:"-"`
}

// DefaultPriority computes the queue priority: exit signals are boosted
// above every BUY, BUY priority is the signal's score.
func (s Signal) DefaultPriority() float64 {
	if s.Type.IsExit() {
		return float64(10_000 - s.Type.Severity())
	}
	return float64(s.Score)
}
