// Package strategies provides trading strategy implementations.
package strategies

import (
	"fmt"
)

// constructors maps a strategy's configuration name (the string an
// EnabledStrategies entry or CLI flag carries) to the function that
// builds a fresh instance. Keeping this as a map rather than a switch
// means RegisterAll and NewStrategyByName can never drift out of sync on
// which names exist.
var constructors = map[string]func() Strategy{
	"ma_crossover":        func() Strategy { return NewMACrossover() },
	"rsi_momentum":        func() Strategy { return NewRSIStrategy() },
	"bb_mean_reversion":   func() Strategy { return NewBollingerBandsStrategy() },
	"macd_trend_follower": func() Strategy { return NewMACDStrategy() },
	"nyc_close_open":      func() Strategy { return NewNYCCloseOpen() },
}

// NewStrategyByName creates a strategy instance by its configuration name.
//
// Args:
//   - name: Strategy identifier (e.g., "ma_crossover", "rsi_momentum")
//
// Returns:
//   - Strategy: The created strategy instance
//   - error: Error if strategy name is unknown
func NewStrategyByName(name string) (Strategy, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy name: %s (available: %v)", name, AvailableStrategies())
	}
	return ctor(), nil
}

// AvailableStrategies returns the sorted-by-registration list of every
// strategy name NewStrategyByName and RegisterAll recognize.
//
// Returns:
//   - []string: List of available strategy identifiers
func AvailableStrategies() []string {
	names := make([]string, 0, len(constructors))
	for _, name := range []string{
		"ma_crossover",
		"rsi_momentum",
		"bb_mean_reversion",
		"macd_trend_follower",
		"nyc_close_open",
	} {
		if _, ok := constructors[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// RegisterAll builds one instance of every strategy named in enabled and
// registers it into reg, so the engine's signal-generation tick only ever
// runs the account's configured subset rather than every known strategy. A
// nil or empty enabled list registers every known strategy.
func RegisterAll(reg *Registry, enabled []string) error {
	names := enabled
	if len(names) == 0 {
		names = AvailableStrategies()
	}
	for _, name := range names {
		strat, err := NewStrategyByName(name)
		if err != nil {
			return fmt.Errorf("strategies: register %s: %w", name, err)
		}
		if err := reg.Register(strat); err != nil {
			return fmt.Errorf("strategies: register %s: %w", name, err)
		}
	}
	return nil
}
