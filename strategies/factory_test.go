package strategies

import (
	"testing"
)

// TestNewStrategyByName_ValidNames tests creating strategies with valid names.
func TestNewStrategyByName_ValidNames(t *testing.T) {
	testCases := []struct {
		name         string
		expectedType string
	}{
		{"ma_crossover", "*strategies.MACrossover"},
		{"rsi_momentum", "*strategies.RSIStrategy"},
		{"bb_mean_reversion", "*strategies.BollingerBandsStrategy"},
		{"macd_trend_follower", "*strategies.MACDStrategy"},
		{"nyc_close_open", "*strategies.NYCCloseOpen"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			strategy, err := NewStrategyByName(tc.name)
			if err != nil {
				t.Fatalf("Expected no error for valid strategy name %s, got: %v", tc.name, err)
			}
			if strategy == nil {
				t.Fatalf("Expected strategy instance, got nil")
			}
			if strategy.Name() != tc.name {
				t.Errorf("Expected strategy name %s, got %s", tc.name, strategy.Name())
			}
		})
	}
}

// TestNewStrategyByName_InvalidName tests error handling for invalid names.
func TestNewStrategyByName_InvalidName(t *testing.T) {
	invalidNames := []string{
		"invalid_strategy",
		"",
		"unknown",
		"MA_CROSSOVER", // Case sensitive
	}

	for _, name := range invalidNames {
		t.Run(name, func(t *testing.T) {
			strategy, err := NewStrategyByName(name)
			if err == nil {
				t.Errorf("Expected error for invalid strategy name %s, got nil", name)
			}
			if strategy != nil {
				t.Errorf("Expected nil strategy for invalid name, got %v", strategy)
			}
		})
	}
}

// TestAvailableStrategies tests that all available strategies are listed.
func TestAvailableStrategies(t *testing.T) {
	strategies := AvailableStrategies()

	expectedCount := 5
	if len(strategies) != expectedCount {
		t.Errorf("Expected %d strategies, got %d", expectedCount, len(strategies))
	}

	// Verify each listed strategy can be created
	for _, name := range strategies {
		t.Run(name, func(t *testing.T) {
			strategy, err := NewStrategyByName(name)
			if err != nil {
				t.Errorf("Strategy %s is listed but cannot be created: %v", name, err)
			}
			if strategy == nil {
				t.Errorf("Strategy %s returned nil", name)
			}
		})
	}
}

// TestRegisterAll_EmptyListRegistersEverything tests that a nil/empty
// enabled list falls back to registering every known strategy.
func TestRegisterAll_EmptyListRegistersEverything(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterAll(reg, nil); err != nil {
		t.Fatalf("RegisterAll returned error: %v", err)
	}
	for _, name := range AvailableStrategies() {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("expected %s to be registered", name)
		}
	}
}

// TestRegisterAll_SubsetOnly tests that only the named strategies end up
// registered, so an account's config controls which ones the engine runs.
func TestRegisterAll_SubsetOnly(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterAll(reg, []string{"rsi_momentum"}); err != nil {
		t.Fatalf("RegisterAll returned error: %v", err)
	}
	if _, ok := reg.Get("rsi_momentum"); !ok {
		t.Errorf("expected rsi_momentum to be registered")
	}
	if _, ok := reg.Get("ma_crossover"); ok {
		t.Errorf("expected ma_crossover to not be registered")
	}
}

// TestRegisterAll_UnknownNameErrors tests that an unrecognized strategy
// name in the enabled list is a hard failure, not a silent skip.
func TestRegisterAll_UnknownNameErrors(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterAll(reg, []string{"not_a_real_strategy"}); err == nil {
		t.Fatalf("expected error for unknown strategy name")
	}
}
