// Package execution provides trade execution, risk-gated order sizing,
// and the Order Executor consume loop.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/position"
	"github.com/sherwood-quant/core/queue"
	"github.com/sherwood-quant/core/tracing"
)

// Store persists the subset of order/position state the executor itself
// must read back: OrderRecord rows and PositionStop lifecycle.
type Store interface {
	SaveOrderRecord(ctx context.Context, rec models.OrderRecord) error
	SavePositionStop(ctx context.Context, stop models.PositionStop) error
	ClosePositionStop(ctx context.Context, symbol string) error
}

// BoardLotLookup resolves a symbol's HK board lot from static instrument
// info; the executor falls back to 100 when this returns 0 or is nil.
type BoardLotLookup func(symbol string) int

// ReferencePriceLookup returns a reference mid price for the
// price-deviation check, or ok=false when unavailable (market closed,
// thin book) — in which case the deviation check is skipped.
type ReferencePriceLookup func(ctx context.Context, symbol string) (price float64, ok bool)

// RegimeProvider supplies the current regime for sizing.
type RegimeProvider func() models.Regime

// Notifier surfaces fill/reject events to whatever subscribes to them
// (operator dashboard, on-call channel); the executor never renders a
// notification itself, it only raises one. *notifications.Manager
// satisfies this without execution importing the notifications package.
type Notifier interface {
	Info(title, message string)
	Warning(title, message string)
	Error(title, message string)
}

// HistoryProvider supplies the account's trade history for the Kelly
// overlay.
type HistoryProvider func() TradeHistory

// Config tunes the OE consume loop.
type Config struct {
	Account string

	FeePct            float64
	PriceDeviationPct float64
	MinUsableFunds    float64
	SameSideDailyCap  int
	Coalesce          bool // if true, replace a duplicate same-side order instead of skipping
}

// DefaultConfig returns the loop's default tuning.
func DefaultConfig(account string) Config {
	return Config{
		Account:           account,
		FeePct:            0.001,
		PriceDeviationPct: 0.01,
		MinUsableFunds:    1000.0,
		SameSideDailyCap:  3,
		Coalesce:          false,
	}
}

// Executor is the per-account Order Executor: the only component
// permitted to call the trading gateway, single-consumer per account.
type Executor struct {
	cfg      Config
	gateway  TradingGateway
	queue    *queue.Queue
	pm       *position.Manager
	store    Store
	sizing   *SizingPolicy
	assessor *RiskAssessor
	hours    MarketHours
	boardLot BoardLotLookup
	refPrice ReferencePriceLookup
	regime   RegimeProvider
	history  HistoryProvider
	notifier Notifier
}

// NewExecutor builds an Executor. boardLot, refPrice, regime, history,
// and notifier may be nil; sensible defaults are substituted (fallback
// lot of 100, no deviation check, RANGE regime, an empty trade history
// that never activates the Kelly overlay, and a no-op notifier).
func NewExecutor(
	cfg Config,
	gateway TradingGateway,
	q *queue.Queue,
	pm *position.Manager,
	store Store,
	sizing *SizingPolicy,
	assessor *RiskAssessor,
	hours MarketHours,
	boardLot BoardLotLookup,
	refPrice ReferencePriceLookup,
	regime RegimeProvider,
	history HistoryProvider,
	notifier Notifier,
) *Executor {
	if boardLot == nil {
		boardLot = func(string) int { return 0 }
	}
	if refPrice == nil {
		refPrice = func(context.Context, string) (float64, bool) { return 0, false }
	}
	if regime == nil {
		regime = func() models.Regime { return models.Regime{State: models.RegimeRange} }
	}
	if history == nil {
		history = func() TradeHistory { return TradeHistory{} }
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Executor{
		cfg: cfg, gateway: gateway, queue: q, pm: pm, store: store,
		sizing: sizing, assessor: assessor, hours: hours,
		boardLot: boardLot, refPrice: refPrice, regime: regime, history: history,
		notifier: notifier,
	}
}

type noopNotifier struct{}

func (noopNotifier) Info(string, string)    {}
func (noopNotifier) Warning(string, string) {}
func (noopNotifier) Error(string, string)   {}

// Startup reclaims anything stranded by a crash, then cold-syncs PM from
// the broker's authoritative position list.
func (e *Executor) Startup(ctx context.Context) error {
	if _, err := e.queue.RecoverZombieSignals(ctx, 0); err != nil {
		return fmt.Errorf("executor: recover zombie signals: %w", err)
	}
	positions, err := e.gateway.StockPositions(ctx)
	if err != nil {
		return fmt.Errorf("executor: fetch positions: %w", err)
	}
	if err := e.pm.SyncFromBroker(ctx, positions); err != nil {
		return fmt.Errorf("executor: sync pm: %w", err)
	}
	return nil
}

// Run drives the consume loop until ctx is cancelled, sleeping pollEvery
// between empty polls.
func (e *Executor) Run(ctx context.Context, pollEvery time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		handled, err := e.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Str("account", e.cfg.Account).Msg("executor: consume loop error")
		}
		if !handled {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollEvery):
			}
		}
	}
}

// RunOnce claims and fully processes at most one signal. It returns
// handled=false when the queue was empty.
func (e *Executor) RunOnce(ctx context.Context) (bool, error) {
	sig, ok, err := e.queue.Consume(ctx, true)
	if err != nil {
		return false, fmt.Errorf("executor: consume: %w", err)
	}
	if !ok {
		return false, nil
	}
	// The signal's trace ID was stamped by the SG tick that published it;
	// restore it here so OE log lines correlate back to that tick even
	// though the two never call each other directly.
	ctx = tracing.WithTraceID(ctx, sig.TraceID)
	return true, e.process(ctx, *sig)
}

func (e *Executor) process(ctx context.Context, sig models.Signal) error {
	return e.processAt(ctx, sig, time.Now())
}

// processAt is process with the decision clock injected, so tests can
// drive the trading-window gate deterministically instead of depending on
// wall-clock time.
func (e *Executor) processAt(ctx context.Context, sig models.Signal, now time.Time) error {
	// Step 2: trading-window gate.
	market := MarketOf(sig.Symbol)
	if !e.hours.IsOpen(market, now) {
		nextOpen := e.hours.NextOpen(sig.Symbol, now)
		untilOpen := nextOpen.Sub(now)
		retryAt := nextOpen
		if untilOpen > 2*time.Hour {
			retryAt = nextOpen.Add(-30 * time.Minute)
		}
		return e.queue.NackWithRetryAfter(ctx, sig, retryAt)
	}

	// Step 3: refresh state.
	account, err := e.gateway.AccountBalance(ctx)
	if err != nil {
		return e.nackTransient(ctx, sig, err)
	}

	if sig.Side == models.SignalSideBuy || sig.Type == models.SignalAddPosition {
		return e.processBuy(ctx, sig, account)
	}
	return e.processSell(ctx, sig, account)
}

func (e *Executor) processBuy(ctx context.Context, sig models.Signal, account models.AccountSnapshot) error {
	// Step 4: duplicate-open gate.
	held, err := e.pm.Has(ctx, sig.Symbol)
	if err != nil || held.Aborted {
		return e.nackTransient(ctx, sig, fmt.Errorf("pm.has aborted: %w", err))
	}
	if held.Held && sig.Type != models.SignalAddPosition {
		return e.queue.Nack(ctx, sig, errors.New("already held"), false)
	}

	// Step 5: today's-orders gate.
	todays, err := e.gateway.TodayOrders(ctx, sig.Symbol)
	if err != nil {
		return e.nackTransient(ctx, sig, err)
	}
	sameSide := 0
	var openOrderID string
	for _, o := range todays {
		if o.Side == models.OrderSideBuy && o.Status != models.OrderStatusCancelled && o.Status != models.OrderStatusRejected {
			sameSide++
			if o.Status != models.OrderStatusFilled && openOrderID == "" {
				openOrderID = o.ID
			}
		}
	}
	if openOrderID != "" && !e.cfg.Coalesce {
		return e.queue.Nack(ctx, sig, errors.New("duplicate same-side order open"), false)
	}
	if openOrderID == "" && e.cfg.SameSideDailyCap > 0 && sameSide >= e.cfg.SameSideDailyCap {
		return e.queue.Nack(ctx, sig, errors.New("same-side daily cap reached"), false)
	}

	currency := currencyFor(sig.Symbol)
	netAssets := account.NetAssetsByCurrency[currency]

	// Step 6: sizing.
	notional := e.sizing.BudgetNotional(sig.Score, e.regime().State, netAssets, e.history())
	if sig.BudgetNotional > 0 {
		notional = sig.BudgetNotional
	} else if sig.BudgetPct > 0 {
		notional = sig.BudgetPct * netAssets
	}
	if notional <= 0 || sig.Price <= 0 {
		return e.queue.Nack(ctx, sig, errors.New("zero sizing"), false)
	}
	rawQuantity := notional / sig.Price

	// Step 7: lot/tick normalization.
	lot := e.boardLot(sig.Symbol)
	quantity := SnapQuantity(sig.Symbol, rawQuantity, lot)
	if quantity <= 0 {
		return e.queue.Nack(ctx, sig, errors.New("lot rounding produced zero quantity"), false)
	}
	price := SnapTick(sig.Symbol, sig.Price)

	if ref, ok := e.refPrice(ctx, sig.Symbol); ok {
		if PriceDeviationExceeded(price, ref, e.cfg.PriceDeviationPct) {
			return e.queue.Nack(ctx, sig, errors.New("price_deviation"), true)
		}
	}

	// Step 8: margin-aware cash check.
	usable := account.UsableFunds(currency)
	required := price * quantity * (1 + e.cfg.FeePct)
	if usable < e.cfg.MinUsableFunds || usable < required {
		return e.queue.Nack(ctx, sig, errors.New("insufficient usable funds"), false)
	}

	// Step 9: submit, or replace the open same-side order when coalescing.
	var order *models.Order
	if openOrderID != "" {
		order, err = e.gateway.ReplaceOrder(ctx, openOrderID, quantity, price)
	} else {
		order, err = e.gateway.SubmitOrder(ctx, OrderSpec{
			Symbol: sig.Symbol, Side: models.OrderSideBuy, Type: models.OrderTypeLimit,
			Quantity: quantity, Price: price, TimeInForce: "day",
		})
	}
	if err != nil {
		return e.handleSubmitError(ctx, sig, err)
	}

	if err := e.pm.Add(ctx, sig.Symbol, quantity, price, order.ID); err != nil {
		tracing.Logger(ctx).Error().Err(err).Str("symbol", sig.Symbol).Msg("executor: pm.add failed after fill")
	}
	if e.store != nil {
		_ = e.store.SaveOrderRecord(ctx, models.OrderRecord{
			OrderID: order.ID, Symbol: sig.Symbol, Side: models.OrderSideBuy,
			Quantity: quantity, Price: price, Status: order.Status,
			CreatedAt: order.CreatedAt, UpdatedAt: order.UpdatedAt,
		})
		_ = e.store.SavePositionStop(ctx, buildPositionStop(sig, price))
	}

	e.maybeSubmitBackupOrder(ctx, sig, quantity, price)
	e.notifier.Info("Order filled", fmt.Sprintf("BUY %s: %.4f @ %.2f", sig.Symbol, quantity, price))

	// Step 10: ack.
	return e.queue.Ack(ctx, sig)
}

func (e *Executor) processSell(ctx context.Context, sig models.Signal, account models.AccountSnapshot) error {
	_ = account
	detail, ok, err := e.pm.Detail(ctx, sig.Symbol)
	if err != nil {
		return e.nackTransient(ctx, sig, err)
	}
	if !ok {
		return e.queue.Nack(ctx, sig, errors.New("not held"), false)
	}

	fraction := ExitFraction(sig.Type)
	quantity := detail.AvailableQuantity * fraction
	lot := e.boardLot(sig.Symbol)
	quantity = SnapQuantity(sig.Symbol, quantity, lot)
	if quantity <= 0 {
		return e.queue.Nack(ctx, sig, errors.New("sell quantity rounds to zero"), false)
	}
	price := SnapTick(sig.Symbol, sig.Price)

	order, err := e.gateway.SubmitOrder(ctx, OrderSpec{
		Symbol: sig.Symbol, Side: models.OrderSideSell, Type: models.OrderTypeLimit,
		Quantity: quantity, Price: price, TimeInForce: "day",
	})
	if err != nil {
		return e.handleSubmitError(ctx, sig, err)
	}

	if e.store != nil {
		_ = e.store.SaveOrderRecord(ctx, models.OrderRecord{
			OrderID: order.ID, Symbol: sig.Symbol, Side: models.OrderSideSell,
			Quantity: quantity, Price: price, Status: order.Status,
			CreatedAt: order.CreatedAt, UpdatedAt: order.UpdatedAt,
		})
	}

	if quantity >= detail.AvailableQuantity {
		if err := e.pm.Remove(ctx, sig.Symbol); err != nil {
			tracing.Logger(ctx).Error().Err(err).Str("symbol", sig.Symbol).Msg("executor: pm.remove failed after full exit")
		}
		if e.store != nil {
			_ = e.store.ClosePositionStop(ctx, sig.Symbol)
		}
	}

	e.notifier.Info("Order filled", fmt.Sprintf("SELL %s: %.4f @ %.2f", sig.Symbol, quantity, price))
	return e.queue.Ack(ctx, sig)
}

func (e *Executor) handleSubmitError(ctx context.Context, sig models.Signal, err error) error {
	if IsRetryable(err) {
		return e.queue.Nack(ctx, sig, err, true)
	}
	e.notifier.Error("Order rejected", fmt.Sprintf("%s %s: %s", sig.Side, sig.Symbol, err.Error()))
	return e.queue.Nack(ctx, sig, err, false)
}

func (e *Executor) nackTransient(ctx context.Context, sig models.Signal, err error) error {
	return e.queue.Nack(ctx, sig, err, true)
}

// maybeSubmitBackupOrder places a GTC backup stop after a BUY fill when
// the risk assessor's score crosses threshold or the position is high
// value. Failures are logged, not propagated — the primary BUY has
// already been acked.
func (e *Executor) maybeSubmitBackupOrder(ctx context.Context, sig models.Signal, quantity, price float64) {
	if e.assessor == nil {
		return
	}
	// ATR is not a Signal field, so it is always passed as 0 here: the
	// assessor scores 0 for the ATR factor and the risk score comes from
	// the other three factors.
	assessment := e.assessor.Assess(RiskAssessmentInput{
		Symbol: sig.Symbol, ATR: 0, Score: sig.Score,
		StopLoss: sig.StopLoss, EntryPrice: price, Quantity: quantity,
	})
	if !assessment.ShouldBackup {
		return
	}

	stopPrice := sig.StopLoss
	if stopPrice <= 0 {
		stopPrice = price * 0.95
	}
	stopPrice = SnapTick(sig.Symbol, stopPrice)

	_, err := e.gateway.SubmitOrder(ctx, OrderSpec{
		Symbol: sig.Symbol, Side: models.OrderSideSell, Type: models.OrderTypeStop,
		Quantity: quantity, Price: stopPrice, TimeInForce: "gtc",
	})
	if err != nil {
		tracing.Logger(ctx).Warn().Err(err).Str("symbol", sig.Symbol).Msg("executor: backup order rejected")
		e.notifier.Warning("Backup order rejected", fmt.Sprintf("%s: %s", sig.Symbol, err.Error()))
	}
}

// CloseAllPositions flattens every held position via market sell, for use
// during a graceful engine shutdown that opts to close on exit. Each
// position is closed independently; a failure on one symbol does not stop
// the others. It returns the count of positions successfully closed and
// the first error encountered, if any.
func (e *Executor) CloseAllPositions(ctx context.Context) (int, error) {
	details, err := e.pm.AllDetails(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: list positions for closure: %w", err)
	}

	var firstErr error
	closed := 0
	for symbol, detail := range details {
		if detail.AvailableQuantity <= 0 {
			continue
		}
		price := SnapTick(symbol, detail.CostPrice)
		order, err := e.gateway.SubmitOrder(ctx, OrderSpec{
			Symbol: symbol, Side: models.OrderSideSell, Type: models.OrderTypeMarket,
			Quantity: detail.AvailableQuantity, TimeInForce: "day",
		})
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("executor: failed to close position on shutdown")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if e.store != nil {
			_ = e.store.SaveOrderRecord(ctx, models.OrderRecord{
				OrderID: order.ID, Symbol: symbol, Side: models.OrderSideSell,
				Quantity: detail.AvailableQuantity, Price: price, Status: order.Status,
				CreatedAt: order.CreatedAt, UpdatedAt: order.UpdatedAt,
			})
			_ = e.store.ClosePositionStop(ctx, symbol)
		}
		if err := e.pm.Remove(ctx, symbol); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("executor: pm.remove failed after shutdown close")
		}
		closed++
	}
	return closed, firstErr
}

func buildPositionStop(sig models.Signal, entryPrice float64) models.PositionStop {
	stopLoss := sig.StopLoss
	takeProfit := sig.TakeProfit
	if stopLoss <= 0 {
		stopLoss = entryPrice * 0.95
	}
	if takeProfit <= 0 {
		takeProfit = entryPrice * 1.10
	}
	now := time.Now()
	return models.PositionStop{
		Symbol: sig.Symbol, EntryPrice: entryPrice, StopLoss: stopLoss,
		TakeProfit: takeProfit, Status: models.PositionStopActive,
		CreatedAt: now, UpdatedAt: now,
	}
}

// currencyFor derives the settlement currency from a symbol's market
// suffix; HK settles in HKD, everything else (including bare US tickers)
// in USD.
func currencyFor(symbol string) string {
	if IsHK(symbol) {
		return "HKD"
	}
	return "USD"
}

// NewOrderID generates a client-side order reference for gateways that
// require one, distinct from the gateway's own order ID.
func NewOrderID() string {
	return uuid.NewString()
}
