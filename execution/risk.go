// Package execution provides trade execution, risk-gated order sizing,
// and the Order Executor consume loop.
package execution

import (
	"github.com/sherwood-quant/core/models"
)

// RegimeScale is the budget-notional multiplier applied to the base
// score-derived percentage, by regime.
var RegimeScale = map[models.RegimeState]float64{
	models.RegimeBull:  1.00,
	models.RegimeRange: 0.70,
	models.RegimeBear:  0.40,
}

// RegimeReserve is the fraction of net assets withheld from buying power,
// by regime.
var RegimeReserve = map[models.RegimeState]float64{
	models.RegimeBull:  0.15,
	models.RegimeRange: 0.30,
	models.RegimeBear:  0.50,
}

// KellyConfig gates the optional Kelly-criterion sizing overlay.
type KellyConfig struct {
	Enabled            bool
	MinTrades          int
	MinWinRate         float64
	ConservativeFactor float64
	MaxNetAssetsPct    float64
}

// DefaultKellyConfig returns the policy's default Kelly gate.
func DefaultKellyConfig() KellyConfig {
	return KellyConfig{
		Enabled:            true,
		MinTrades:          15,
		MinWinRate:         0.60,
		ConservativeFactor: 0.4,
		MaxNetAssetsPct:    0.20,
	}
}

// TradeHistory summarizes an account's closed-trade record, used as the
// Kelly overlay's inputs.
type TradeHistory struct {
	TradeCount int
	WinRate    float64 // fraction of winning trades, 0-1
	AvgWin     float64 // average winning trade return, e.g. 0.08 for 8%
	AvgLoss    float64 // average losing trade return, positive magnitude
}

// SizingPolicy computes budget notional for BUY signals: a piecewise
// score→pct base, scaled by regime, capped by the regime cash reserve,
// and optionally capped further by a Kelly overlay.
type SizingPolicy struct {
	Kelly KellyConfig
}

// NewSizingPolicy builds a policy with the given Kelly gate.
func NewSizingPolicy(kelly KellyConfig) *SizingPolicy {
	return &SizingPolicy{Kelly: kelly}
}

// BasePercent computes the piecewise linear score→pct mapping.
func BasePercent(score int) float64 {
	s := float64(score)
	switch {
	case s >= 80:
		return 0.20 + (s-80)/400.0
	case s >= 60:
		return 0.15 + (s-60)*0.07/20.0
	case s >= 45:
		return 0.05 + (s-45)*0.05/14.0
	default:
		return 0.05
	}
}

// kellyFraction computes the conservative, capped Kelly fraction from
// trade history, or 0 if the gate is not met.
func (p *SizingPolicy) kellyFraction(h TradeHistory) (float64, bool) {
	if !p.Kelly.Enabled {
		return 0, false
	}
	if h.TradeCount < p.Kelly.MinTrades || h.WinRate < p.Kelly.MinWinRate {
		return 0, false
	}
	if h.AvgLoss <= 0 || h.AvgWin <= 0 {
		return 0, false
	}

	// f* = W - (1-W)/R, where R is the win/loss payoff ratio.
	payoffRatio := h.AvgWin / h.AvgLoss
	kelly := h.WinRate - (1-h.WinRate)/payoffRatio
	if kelly <= 0 {
		return 0, false
	}

	kelly *= p.Kelly.ConservativeFactor
	if kelly > p.Kelly.MaxNetAssetsPct {
		kelly = p.Kelly.MaxNetAssetsPct
	}
	return kelly, true
}

// BudgetNotional computes the dollar amount to deploy on a BUY: the
// minimum of the regime-scaled base, the regime cash-reserve ceiling,
// and the Kelly ceiling if active.
func (p *SizingPolicy) BudgetNotional(score int, regime models.RegimeState, netAssets float64, history TradeHistory) float64 {
	if netAssets <= 0 {
		return 0
	}

	scale, ok := RegimeScale[regime]
	if !ok {
		scale = RegimeScale[models.RegimeRange]
	}
	reserve, ok := RegimeReserve[regime]
	if !ok {
		reserve = RegimeReserve[models.RegimeRange]
	}

	base := BasePercent(score) * scale * netAssets
	reserveCeiling := netAssets * (1 - reserve)

	notional := base
	if reserveCeiling < notional {
		notional = reserveCeiling
	}

	if kelly, active := p.kellyFraction(history); active {
		kellyCeiling := kelly * netAssets
		if kellyCeiling < notional {
			notional = kellyCeiling
		}
	}

	if notional < 0 {
		return 0
	}
	return notional
}

// ExitFraction returns the fraction of a position's available quantity to
// sell for a given exit signal type: GRADUAL_EXIT sells 25%, PARTIAL_EXIT
// sells 50%, everything else (full stop-loss/take-profit/urgent/rotation
// exits) sells 100%.
func ExitFraction(signalType models.SignalType) float64 {
	switch signalType {
	case models.SignalGradualExit:
		return 0.25
	case models.SignalPartialExit:
		return 0.50
	default:
		return 1.0
	}
}
