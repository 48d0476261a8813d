package strategies

import (
	"fmt"
	"math"

	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/utils/indicators"
)

// BollingerBandsStrategy implements a mean reversion strategy using Bollinger Bands.
type BollingerBandsStrategy struct {
	*BaseStrategy
	Period           int
	StdDevMultiplier float64
}

// NewBollingerBandsStrategy creates a new Bollinger Bands strategy.
func NewBollingerBandsStrategy() *BollingerBandsStrategy {
	return &BollingerBandsStrategy{
		BaseStrategy: NewBaseStrategy(
			"bb_mean_reversion",
			"Bollinger Bands Mean Reversion - Buy at lower band, Sell at upper band",
		),
		Period:           20,
		StdDevMultiplier: 2.0,
	}
}

// Init initializes the strategy with configuration.
func (s *BollingerBandsStrategy) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}

	if val, ok := config["period"].(float64); ok {
		s.Period = int(val)
	}
	if val, ok := config["stdDevMultiplier"].(float64); ok {
		s.StdDevMultiplier = val
	}

	return nil
}

// Validate checks availability of parameters.
func (s *BollingerBandsStrategy) Validate() error {
	if s.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	if s.StdDevMultiplier <= 0 {
		return fmt.Errorf("stdDevMultiplier must be positive")
	}
	return nil
}

// GetParameters returns the strategy parameters.
func (s *BollingerBandsStrategy) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"period": {
			Description: "Moving Average Period",
			Type:        "int",
			Default:     20,
		},
		"stdDevMultiplier": {
			Description: "Standard Deviation Multiplier",
			Type:        "float",
			Default:     2.0,
		},
	}
}

// OnData processes new market data and generates signals.
func (s *BollingerBandsStrategy) OnData(data []models.OHLCV) models.Signal {
	signal := models.Signal{
		Type:     models.SignalHold,
		Strategy: s.Name(),
		Reasons:  []string{"price within bands"},
	}

	if len(data) < s.Period {
		signal.Reasons = []string{"not enough data"}
		return signal
	}

	closes := make([]float64, len(data))
	for i, candle := range data {
		closes[i] = candle.Close
	}

	upper, _, lower := indicators.BollingerBands(closes, s.Period, s.StdDevMultiplier)

	lastIdx := len(data) - 1
	currentPrice := closes[lastIdx]
	currentUpper := upper[lastIdx]
	currentLower := lower[lastIdx]

	if math.IsNaN(currentUpper) || math.IsNaN(currentLower) {
		signal.Reasons = []string{"indicators not ready"}
		return signal
	}

	signal.Symbol = data[lastIdx].Symbol
	signal.Price = currentPrice

	width := currentUpper - currentLower
	switch {
	case currentPrice <= currentLower && width > 0:
		signal.Type = models.SignalBuy
		signal.Side = models.SignalSideBuy
		signal.Score = bandScore(currentLower-currentPrice, width)
		signal.Reasons = []string{fmt.Sprintf("price (%.2f) hit lower band (%.2f)", currentPrice, currentLower)}
	case currentPrice >= currentUpper && width > 0:
		signal.Type = models.SignalSell
		signal.Side = models.SignalSideSell
		signal.Score = bandScore(currentPrice-currentUpper, width)
		signal.Reasons = []string{fmt.Sprintf("price (%.2f) hit upper band (%.2f)", currentPrice, currentUpper)}
	}

	return signal
}

// bandScore scales a band breach's magnitude relative to band width onto
// a 55-95 score band.
func bandScore(breach, width float64) int {
	score := 55 + int(40*breach/width)
	if score > 95 {
		return 95
	}
	if score < 55 {
		return 55
	}
	return score
}
