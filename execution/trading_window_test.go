package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sherwood-quant/core/models"
)

func TestMarketOf(t *testing.T) {
	assert.Equal(t, models.MarketHK, MarketOf("700.HK"))
	assert.Equal(t, models.MarketUS, MarketOf("AAPL.US"))
	assert.Equal(t, models.MarketNone, MarketOf("^VIX"))
}

func TestMarketHours_HKSession(t *testing.T) {
	h := MarketHours{}
	loc, _ := time.LoadLocation("Asia/Hong_Kong")

	// Wednesday 10:00 HKT -> morning session open.
	open := time.Date(2026, 8, 5, 10, 0, 0, 0, loc)
	assert.True(t, h.IsOpen(models.MarketHK, open))

	// 12:30 HKT -> lunch break, closed.
	lunch := time.Date(2026, 8, 5, 12, 30, 0, 0, loc)
	assert.False(t, h.IsOpen(models.MarketHK, lunch))

	// Saturday -> closed regardless of time.
	weekend := time.Date(2026, 8, 8, 10, 0, 0, 0, loc)
	assert.False(t, h.IsOpen(models.MarketHK, weekend))
}

func TestMarketHours_USRegularAndAfterhours(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")

	regular := time.Date(2026, 8, 5, 11, 0, 0, 0, loc)
	afterhours := time.Date(2026, 8, 5, 17, 0, 0, 0, loc)

	noAH := MarketHours{AllowAfterhours: false}
	assert.True(t, noAH.IsOpen(models.MarketUS, regular))
	assert.False(t, noAH.IsOpen(models.MarketUS, afterhours))

	withAH := MarketHours{AllowAfterhours: true}
	assert.True(t, withAH.IsOpen(models.MarketUS, afterhours))
}

func TestMarketHours_NextOpenSkipsWeekend(t *testing.T) {
	h := MarketHours{}
	loc, _ := time.LoadLocation("America/New_York")
	// Friday evening after close.
	fri := time.Date(2026, 8, 7, 18, 0, 0, 0, loc)
	next := h.NextOpen("AAPL.US", fri)
	assert.Equal(t, time.Monday, next.Weekday())
}
