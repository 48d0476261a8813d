package execution

import (
	"fmt"
	"strings"
)

// BackupOrderConfig tunes the intelligent backup conditional order
// decision.
type BackupOrderConfig struct {
	RiskThreshold       int
	ATRWeight           int
	ATRRatioHigh        float64
	ATRRatioMedium      float64
	ATRRatioLow         float64
	PriceWeight         int
	SignalWeight        int
	WeakSignalThreshold int
	StopLossWeight      int
	WideStopLossPct     float64
	HighValueThreshold  float64
}

// DefaultBackupOrderConfig returns the policy's default weights and
// thresholds.
func DefaultBackupOrderConfig() BackupOrderConfig {
	return BackupOrderConfig{
		RiskThreshold:       60,
		ATRWeight:           40,
		ATRRatioHigh:        0.03,
		ATRRatioMedium:      0.02,
		ATRRatioLow:         0.015,
		PriceWeight:         20,
		SignalWeight:        20,
		WeakSignalThreshold: 60,
		StopLossWeight:      20,
		WideStopLossPct:     0.05,
		HighValueThreshold:  50000.0,
	}
}

// RiskAssessmentInput is what the backup-order risk assessor needs about
// a submitted BUY to score it.
type RiskAssessmentInput struct {
	Symbol     string
	ATR        float64
	Score      int
	StopLoss   float64
	EntryPrice float64
	Quantity   float64
}

// RiskAssessment is the result of scoring a submitted BUY for whether it
// warrants a backup conditional order.
type RiskAssessment struct {
	ShouldBackup   bool
	RiskScore      int
	Factors        map[string]int
	Reason         string
	PositionValue  float64
}

// RiskAssessor scores a freshly-submitted BUY order 0-100 across four
// weighted risk factors and decides whether it warrants a GTC backup
// stop order.
type RiskAssessor struct {
	config BackupOrderConfig
}

// NewRiskAssessor builds an assessor with the given config.
func NewRiskAssessor(config BackupOrderConfig) *RiskAssessor {
	return &RiskAssessor{config: config}
}

// Assess scores in.
func (a *RiskAssessor) Assess(in RiskAssessmentInput) RiskAssessment {
	factors := make(map[string]int, 4)

	atrScore := a.assessATR(in.ATR, in.EntryPrice)
	factors["atr_ratio"] = atrScore

	priceScore := a.assessPriceLevel(in.Symbol, in.EntryPrice)
	factors["price_level"] = priceScore

	signalScore := a.assessSignalStrength(in.Score)
	factors["signal_strength"] = signalScore

	stopScore := a.assessStopLossWidth(in.EntryPrice, in.StopLoss)
	factors["stop_loss_width"] = stopScore

	riskScore := atrScore + priceScore + signalScore + stopScore
	positionValue := in.Quantity * in.EntryPrice

	shouldBackup := riskScore >= a.config.RiskThreshold
	reason := fmt.Sprintf("risk score %d >= threshold %d", riskScore, a.config.RiskThreshold)
	if !shouldBackup {
		reason = fmt.Sprintf("risk score %d below threshold %d", riskScore, a.config.RiskThreshold)
	}

	if !shouldBackup && positionValue > a.config.HighValueThreshold {
		shouldBackup = true
		reason = fmt.Sprintf("high-value position (%.0f) forces backup protection", positionValue)
	}

	return RiskAssessment{
		ShouldBackup:  shouldBackup,
		RiskScore:     riskScore,
		Factors:       factors,
		Reason:        reason,
		PositionValue: positionValue,
	}
}

func (a *RiskAssessor) assessATR(atr, price float64) int {
	if price <= 0 || atr <= 0 {
		return 0
	}
	ratio := atr / price

	switch {
	case ratio >= a.config.ATRRatioHigh:
		return a.config.ATRWeight
	case ratio >= a.config.ATRRatioMedium:
		return int(float64(a.config.ATRWeight) * 0.625)
	case ratio >= a.config.ATRRatioLow:
		return int(float64(a.config.ATRWeight) * 0.375)
	default:
		return 0
	}
}

func (a *RiskAssessor) assessPriceLevel(symbol string, price float64) int {
	switch {
	case strings.HasSuffix(symbol, ".HK"):
		if price > 100 {
			return a.config.PriceWeight
		}
		if price < 1 {
			return int(float64(a.config.PriceWeight) * 0.75)
		}
	case strings.HasSuffix(symbol, ".US"):
		if price > 500 {
			return a.config.PriceWeight
		}
		if price < 5 {
			return int(float64(a.config.PriceWeight) * 0.75)
		}
	}
	return 0
}

func (a *RiskAssessor) assessSignalStrength(score int) int {
	if score < a.config.WeakSignalThreshold {
		return a.config.SignalWeight
	}
	return 0
}

func (a *RiskAssessor) assessStopLossWidth(price, stopLoss float64) int {
	if price <= 0 || stopLoss <= 0 {
		return 0
	}
	pct := (price - stopLoss) / price
	if pct < 0 {
		pct = -pct
	}
	if pct > a.config.WideStopLossPct {
		return a.config.StopLossWeight
	}
	return 0
}
