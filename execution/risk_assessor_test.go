package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskAssessor_LowRiskNoBackup(t *testing.T) {
	a := NewRiskAssessor(DefaultBackupOrderConfig())
	assessment := a.Assess(RiskAssessmentInput{
		Symbol:     "AAPL.US",
		ATR:        0.5,
		Score:      85,
		StopLoss:   98,
		EntryPrice: 100,
		Quantity:   10,
	})
	assert.False(t, assessment.ShouldBackup)
}

func TestRiskAssessor_HighATRTriggersBackup(t *testing.T) {
	a := NewRiskAssessor(DefaultBackupOrderConfig())
	assessment := a.Assess(RiskAssessmentInput{
		Symbol:     "AAPL.US",
		ATR:        5, // 5% of price -> full ATR weight
		Score:      85,
		StopLoss:   90, // 10% wide stop -> full stop-loss weight
		EntryPrice: 100,
		Quantity:   10,
	})
	assert.Equal(t, 40, assessment.Factors["atr_ratio"])
	assert.Equal(t, 20, assessment.Factors["stop_loss_width"])
	assert.True(t, assessment.ShouldBackup)
}

func TestRiskAssessor_HighValuePositionForcesBackup(t *testing.T) {
	a := NewRiskAssessor(DefaultBackupOrderConfig())
	assessment := a.Assess(RiskAssessmentInput{
		Symbol:     "NVDA.US",
		ATR:        0.5,
		Score:      85,
		StopLoss:   98,
		EntryPrice: 600,
		Quantity:   100, // 60,000 notional > 50,000 threshold
	})
	assert.True(t, assessment.ShouldBackup)
	assert.Contains(t, assessment.Reason, "high-value")
}

func TestRiskAssessor_PriceLevelHK(t *testing.T) {
	a := NewRiskAssessor(DefaultBackupOrderConfig())
	high := a.Assess(RiskAssessmentInput{Symbol: "700.HK", EntryPrice: 150, Score: 90, Quantity: 1})
	assert.Equal(t, 20, high.Factors["price_level"])

	low := a.Assess(RiskAssessmentInput{Symbol: "1398.HK", EntryPrice: 0.5, Score: 90, Quantity: 1})
	assert.Equal(t, 15, low.Factors["price_level"])
}

func TestRiskAssessor_WeakSignalAndWideStop(t *testing.T) {
	a := NewRiskAssessor(DefaultBackupOrderConfig())
	assessment := a.Assess(RiskAssessmentInput{
		Symbol:     "AAPL.US",
		ATR:        5, // crosses the ATR high band too, so the combined score clears threshold
		Score:      40,
		StopLoss:   90,
		EntryPrice: 100,
		Quantity:   1,
	})
	assert.Equal(t, 20, assessment.Factors["signal_strength"])
	assert.Equal(t, 20, assessment.Factors["stop_loss_width"])
	assert.True(t, assessment.ShouldBackup)
}

func TestRiskAssessor_ZeroInputsScoreZero(t *testing.T) {
	a := NewRiskAssessor(DefaultBackupOrderConfig())
	assessment := a.Assess(RiskAssessmentInput{Symbol: "X.US", Score: 90, Quantity: 1, EntryPrice: 100})
	assert.Equal(t, 0, assessment.Factors["atr_ratio"])
	assert.Equal(t, 0, assessment.Factors["stop_loss_width"])
}
