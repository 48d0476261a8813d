package strategies

import (
	"fmt"
	"math"

	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/utils/indicators"
)

// MACDStrategy implements a trend following strategy using MACD crossovers.
type MACDStrategy struct {
	*BaseStrategy
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// NewMACDStrategy creates a new MACD strategy.
func NewMACDStrategy() *MACDStrategy {
	return &MACDStrategy{
		BaseStrategy: NewBaseStrategy(
			"macd_trend_follower",
			"MACD Trend Follower - Buy on bullish crossover, Sell on bearish crossover",
		),
		FastPeriod:   12,
		SlowPeriod:   26,
		SignalPeriod: 9,
	}
}

// Init initializes the strategy with configuration.
func (s *MACDStrategy) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}

	if val, ok := config["fastPeriod"].(float64); ok {
		s.FastPeriod = int(val)
	}
	if val, ok := config["slowPeriod"].(float64); ok {
		s.SlowPeriod = int(val)
	}
	if val, ok := config["signalPeriod"].(float64); ok {
		s.SignalPeriod = int(val)
	}

	return nil
}

// Validate checks availability of parameters.
func (s *MACDStrategy) Validate() error {
	if s.FastPeriod <= 0 || s.SlowPeriod <= 0 || s.SignalPeriod <= 0 {
		return fmt.Errorf("all periods must be positive")
	}
	if s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("fast period must be less than slow period")
	}
	return nil
}

// GetParameters returns the strategy parameters.
func (s *MACDStrategy) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"fastPeriod": {
			Description: "Fast EMA Period",
			Type:        "int",
			Default:     12,
		},
		"slowPeriod": {
			Description: "Slow EMA Period",
			Type:        "int",
			Default:     26,
		},
		"signalPeriod": {
			Description: "Signal Line Period",
			Type:        "int",
			Default:     9,
		},
	}
}

// OnData processes new market data and generates signals.
func (s *MACDStrategy) OnData(data []models.OHLCV) models.Signal {
	signal := models.Signal{
		Type:     models.SignalHold,
		Strategy: s.Name(),
		Reasons:  []string{"no crossover"},
	}

	minData := s.SlowPeriod + s.SignalPeriod
	if len(data) < minData {
		signal.Reasons = []string{"not enough data"}
		return signal
	}

	closes := make([]float64, len(data))
	for i, candle := range data {
		closes[i] = candle.Close
	}

	macdLine, signalLine, _ := indicators.MACD(closes, s.FastPeriod, s.SlowPeriod, s.SignalPeriod)

	lastIdx := len(data) - 1
	prevIdx := len(data) - 2

	currentMACD := macdLine[lastIdx]
	currentSignal := signalLine[lastIdx]
	prevMACD := macdLine[prevIdx]
	prevSignal := signalLine[prevIdx]

	if math.IsNaN(currentMACD) || math.IsNaN(currentSignal) || math.IsNaN(prevMACD) || math.IsNaN(prevSignal) {
		signal.Reasons = []string{"indicators not ready"}
		return signal
	}

	signal.Symbol = data[lastIdx].Symbol
	signal.Price = closes[lastIdx]

	// Bullish crossover: MACD crosses above signal line.
	// Bearish crossover: MACD crosses below signal line.
	switch {
	case prevMACD <= prevSignal && currentMACD > currentSignal:
		signal.Type = models.SignalBuy
		signal.Side = models.SignalSideBuy
		signal.Score = 65
		signal.Reasons = []string{fmt.Sprintf("bullish MACD crossover (%.4f > %.4f)", currentMACD, currentSignal)}
	case prevMACD >= prevSignal && currentMACD < currentSignal:
		signal.Type = models.SignalSell
		signal.Side = models.SignalSideSell
		signal.Score = 65
		signal.Reasons = []string{fmt.Sprintf("bearish MACD crossover (%.4f < %.4f)", currentMACD, currentSignal)}
	}

	return signal
}
