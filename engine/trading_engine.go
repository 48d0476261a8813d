package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sherwood-quant/core/data"
	"github.com/sherwood-quant/core/execution"
	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/queue"
	"github.com/sherwood-quant/core/realtime"
	"github.com/sherwood-quant/core/strategies"
	"github.com/sherwood-quant/core/tracing"
)

// TradingEngine is the per-account pairing of Signal Generator and Order
// Executor. It polls market data on an interval, runs every registered
// strategy over the result, and publishes non-HOLD signals onto the queue;
// a background goroutine drains that same queue through the executor.
// SG and OE never call each other directly — the queue is the only seam.
type TradingEngine struct {
	provider        data.DataProvider
	registry        *strategies.Registry
	queue           *queue.Queue
	executor        *execution.Executor
	wsManager       *realtime.WebSocketManager
	symbols         []string
	interval        time.Duration
	lookback        time.Duration
	execPoll        time.Duration
	closeOnShutdown bool

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewTradingEngine creates a new trading engine instance.
//
// Args:
//   - provider: Data provider for market data
//   - registry: Strategy registry
//   - q: Signal queue shared with the executor
//   - executor: Order Executor consume loop for this account (may be nil to
//     run the engine as a signal-only generator with no OE attached)
//   - wsManager: WebSocket manager for real-time updates (can be nil)
//   - symbols: List of symbols to trade
//   - interval: Signal Generator polling interval
//   - lookback: Historical data lookback period
//   - closeOnShutdown: If true, close all positions on graceful shutdown
//
// Returns:
//   - *TradingEngine: The engine instance
func NewTradingEngine(
	provider data.DataProvider,
	registry *strategies.Registry,
	q *queue.Queue,
	executor *execution.Executor,
	wsManager *realtime.WebSocketManager,
	symbols []string,
	interval time.Duration,
	lookback time.Duration,
	closeOnShutdown bool,
) *TradingEngine {
	return &TradingEngine{
		provider:        provider,
		registry:        registry,
		queue:           q,
		executor:        executor,
		wsManager:       wsManager,
		symbols:         symbols,
		interval:        interval,
		lookback:        lookback,
		execPoll:        2 * time.Second,
		closeOnShutdown: closeOnShutdown,
		stopCh:          make(chan struct{}),
		running:         false,
	}
}

// Start begins the trading loop.
// It runs until the context is cancelled or Stop() is called.
func (e *TradingEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("trading engine already running")
	}
	e.running = true
	// Re-initialize stopCh to allow restart
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	if e.executor != nil {
		if err := e.executor.Startup(ctx); err != nil {
			log.Warn().Err(err).Msg("executor startup recovery failed")
		}
		execCtx, cancelExec := context.WithCancel(ctx)
		stopCh := e.stopCh
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer cancelExec()
			go func() {
				select {
				case <-stopCh:
				case <-execCtx.Done():
				}
				cancelExec()
			}()
			if err := e.executor.Run(execCtx, e.execPoll); err != nil && execCtx.Err() == nil {
				log.Error().Err(err).Msg("order executor loop exited")
			}
		}()
	}

	e.wg.Add(1)
	go e.loop(ctx)

	log.Info().
		Dur("interval", e.interval).
		Int("strategies", len(e.registry.List())).
		Int("symbols", len(e.symbols)).
		Msg("Trading Engine started")

	return nil
}

// IsRunning returns whether the trading engine is currently running.
//
// Returns:
//   - bool: true if the engine is running
func (e *TradingEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop gracefully stops the trading engine loop.
// It signals the loop to exit and waits for the current tick to complete.
func (e *TradingEngine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	log.Info().Msg("Trading Engine stopped")
}

// Shutdown performs a full graceful shutdown of the trading engine.
// It stops the SG loop and the OE consume loop, optionally flattens all
// positions via the executor, and returns the first error encountered.
//
// Shutdown sequence:
//  1. Stop accepting new ticks and cancel the OE consume loop (signal both to exit)
//  2. Wait for in-flight work to complete
//  3. If closeOnShutdown is true, flatten all open positions through the executor
//
// Args:
//   - ctx: Context with deadline for the shutdown process
//
// Returns:
//   - error: First error encountered during shutdown (best-effort)
func (e *TradingEngine) Shutdown(ctx context.Context) error {
	log.Info().Bool("close_positions", e.closeOnShutdown).Msg("Engine graceful shutdown initiated")

	// Step 1-2: Stop the trading loop and wait for in-flight work
	e.Stop()

	// Check if context is already done
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown deadline exceeded before cleanup: %w", ctx.Err())
	default:
	}

	var err error

	// Step 3: Close all positions if configured
	if e.closeOnShutdown && e.executor != nil {
		closed, closeErr := e.executor.CloseAllPositions(ctx)
		if closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close all positions during shutdown")
			err = closeErr
		}
		log.Info().Int("closed", closed).Msg("Position closure complete")
	}

	log.Info().Msg("Engine graceful shutdown complete")
	return err
}

// loop is the main trading loop.
func (e *TradingEngine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			// Generate a unique trace ID for this tick
			tickTraceID := tracing.NewTraceID()
			tickCtx := tracing.WithTraceID(ctx, tickTraceID)
			tickLogger := tracing.Logger(tickCtx)

			tickLogger.Debug().
				Int("symbols", len(e.symbols)).
				Msg("Engine tick started")

			// Process symbols concurrently
			var wg sync.WaitGroup
			for _, symbol := range e.symbols {
				wg.Add(1)
				go func(sym string) {
					defer wg.Done()
					if err := e.processSymbol(tickCtx, sym); err != nil {
						tickLogger.Error().Err(err).Str("symbol", sym).Msg("Error processing symbol")
					}
				}(symbol)
			}
			wg.Wait()

			tickLogger.Debug().Msg("Engine tick completed")
		}
	}
}

// processSymbol handles data fetching and strategy execution for a single symbol.
// The context carries the tick's trace ID for log correlation.
func (e *TradingEngine) processSymbol(ctx context.Context, symbol string) error {
	logger := tracing.Logger(ctx)

	// 1. Fetch latest data
	// Fetch enough candles for strategies
	end := time.Now()
	start := end.Add(-e.lookback)

	// 2. Iterate over strategies, grouping by timeframe would be ideal, but for now we assume a primary timeframe derived from the first available strategy or default to "1d"
	timeframe := "1d"
	strategiesList := e.registry.All()
	if len(strategiesList) > 0 {
		for _, s := range strategiesList {
			timeframe = s.Timeframe()
			break // Use the first strategy's timeframe for now
		}
	}

	// Assume generic timeframe (Daily) for now.
	// In a real system, we'd need to handle multiple timeframes.
	candles, err := e.provider.GetHistoricalData(symbol, start, end, timeframe)
	if err != nil {
		return fmt.Errorf("failed to fetch data: %w", err)
	}

	if len(candles) == 0 {
		return fmt.Errorf("no data returned")
	}

	logger.Debug().
		Str("symbol", symbol).
		Int("candles", len(candles)).
		Msg("Data fetched for symbol")

	// Broadcast latest candle
	if e.wsManager != nil {
		latest := candles[len(candles)-1]
		e.wsManager.Broadcast("market_data", map[string]interface{}{
			"symbol": symbol,
			"candle": latest,
		})
	}

	// 2. Iterate over strategies
	for _, strategy := range e.registry.All() {
		// 3. Generate Signal
		signal := strategy.OnData(candles)

		// 4. Enqueue non-HOLD signals for the executor
		if signal.Type != models.SignalHold {
			logger.Info().
				Str("strategy", strategy.Name()).
				Str("symbol", symbol).
				Str("signal", string(signal.Type)).
				Int("score", signal.Score).
				Msg("Strategy signal generated")

			if err := e.enqueueSignal(ctx, signal); err != nil {
				logger.Error().
					Err(err).
					Str("strategy", strategy.Name()).
					Str("symbol", symbol).
					Msg("Failed to enqueue signal")
			}
		}
	}

	return nil
}

// enqueueSignal publishes a strategy's signal onto the shared queue for the
// executor to pick up. The context carries the tick's trace ID.
func (e *TradingEngine) enqueueSignal(ctx context.Context, signal models.Signal) error {
	if e.queue == nil {
		return fmt.Errorf("engine: no queue configured")
	}
	_, err := e.queue.Publish(ctx, signal, nil)
	if err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}
