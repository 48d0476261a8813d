// Package regime implements the BULL/BEAR/RANGE classifier and the
// supplemented intraday-style classifier that votes TREND/RANGE on the
// current session's opening-range expansion.
package regime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sherwood-quant/core/data"
	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/utils/indicators"
)

// MarketHours decides which market is currently active and whether a
// symbol belongs to it; the regime classifier uses this to restrict
// voting to symbols whose home market is currently open.
type MarketHours interface {
	ActiveMarket(now time.Time) models.ActiveMarket
	BelongsToMarket(symbol string, market models.ActiveMarket) bool
}

// Config holds the classifier's tunable inputs.
type Config struct {
	IndexSymbols   []string // e.g. []string{"QQQ.US", "HSI.HK"}
	InverseSymbols []string // e.g. []string{"^VIX"}
	MAPeriod       int      // default 200

	// BullThreshold/BearThreshold are the vote-percentage cutoffs:
	// >=60% bullish -> BULL, <=40% -> BEAR, else RANGE.
	BullThreshold float64
	BearThreshold float64

	// Intraday style inputs (supplemented feature, from
	// classify_intraday_style).
	OpeningRangeMinutes int
	ExpandThreshold     float64
	BreakoutBuffer      float64
}

// DefaultConfig fills in the classifier's baseline index/MA/threshold defaults.
func DefaultConfig() Config {
	return Config{
		MAPeriod:            200,
		BullThreshold:       0.60,
		BearThreshold:       0.40,
		OpeningRangeMinutes: 30,
		ExpandThreshold:     1.5,
		BreakoutBuffer:      0.001,
	}
}

// Classifier computes Regime and IntradayStyle results from a quote
// gateway's historical candles.
type Classifier struct {
	provider data.DataProvider
	hours    MarketHours
	cfg      Config
}

// New constructs a Classifier.
func New(provider data.DataProvider, hours MarketHours, cfg Config) *Classifier {
	if cfg.MAPeriod == 0 {
		cfg = DefaultConfig()
	}
	return &Classifier{provider: provider, hours: hours, cfg: cfg}
}

func (c *Classifier) parseSymbols(list []string, market models.ActiveMarket, filterByMarket bool) []string {
	var out []string
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if filterByMarket && c.hours != nil && !c.hours.BelongsToMarket(s, market) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Classify runs one classification pass: normal index symbols vote
// bullish when last_close >= MA, inverse symbols (e.g. VIX) vote bullish
// when last_close < MA, and the aggregate percentage decides the regime.
// Symbols with unobtainable data are skipped; if none produced data the
// result defaults to RANGE with an explanatory note.
func (c *Classifier) Classify(ctx context.Context, now time.Time, filterByMarket bool) models.Regime {
	market := models.MarketNone
	if c.hours != nil {
		market = c.hours.ActiveMarket(now)
	}

	normals := c.parseSymbols(c.cfg.IndexSymbols, market, filterByMarket)
	inverses := c.parseSymbols(c.cfg.InverseSymbols, market, filterByMarket)
	if filterByMarket && market == models.MarketNone {
		normals = nil
		inverses = nil
	}

	ups, total := 0, 0
	var details []string

	vote := func(symbol string, inverse bool) {
		closes, err := c.fetchCloses(ctx, symbol, now)
		if err != nil || len(closes) == 0 {
			return
		}
		last := closes[len(closes)-1]
		window := closes
		if len(window) > c.cfg.MAPeriod {
			window = window[len(window)-c.cfg.MAPeriod:]
		}
		ma := indicators.SMA(window, len(window))
		if len(ma) == 0 {
			return
		}
		maLast := ma[len(ma)-1]

		total++
		bullish := last >= maLast
		if inverse {
			bullish = last < maLast
		}
		if bullish {
			ups++
		}
		details = append(details, fmt.Sprintf("%s last=%.2f ma=%.2f bullish=%v", symbol, last, maLast, bullish))
	}

	for _, s := range normals {
		vote(s, false)
	}
	for _, s := range inverses {
		vote(s, true)
	}

	if total == 0 {
		return models.Regime{State: models.RegimeRange, Details: "insufficient index data", ActiveMarket: market}
	}

	pct := float64(ups) / float64(total)
	state := models.RegimeRange
	switch {
	case pct >= c.cfg.BullThreshold:
		state = models.RegimeBull
	case pct <= c.cfg.BearThreshold:
		state = models.RegimeBear
	}

	return models.Regime{
		State:        state,
		Details:      fmt.Sprintf("%d/%d bullish (%.0f%%): %s", ups, total, pct*100, strings.Join(details, "; ")),
		ActiveMarket: market,
	}
}

func (c *Classifier) fetchCloses(ctx context.Context, symbol string, now time.Time) ([]float64, error) {
	_ = ctx
	count := c.cfg.MAPeriod + 10
	if count < 210 {
		count = 210
	}
	candles, err := c.provider.GetHistoricalData(symbol, now.AddDate(0, 0, -count*2), now, "1d")
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}
	return closes, nil
}

// ClassifyIntradayStyle is the supplemented opening-range/daily-range
// expansion classifier: it votes TREND when the daily range has expanded
// past the opening range by ExpandThreshold and price has broken out
// beyond it by BreakoutBuffer.
func (c *Classifier) ClassifyIntradayStyle(points []models.OHLCV) (models.IntradayStyle, string) {
	if len(points) == 0 {
		return models.IntradayRange, "no intraday data"
	}

	openCount := c.cfg.OpeningRangeMinutes
	if openCount > len(points) {
		openCount = len(points)
	}
	orHigh, orLow := points[0].High, points[0].Low
	for _, p := range points[:openCount] {
		if p.High > orHigh {
			orHigh = p.High
		}
		if p.Low < orLow {
			orLow = p.Low
		}
	}

	drHigh, drLow := points[0].High, points[0].Low
	for _, p := range points {
		if p.High > drHigh {
			drHigh = p.High
		}
		if p.Low < drLow {
			drLow = p.Low
		}
	}

	orWidth := orHigh - orLow
	drWidth := drHigh - drLow
	if orWidth <= 0 {
		return models.IntradayRange, "degenerate opening range"
	}
	expandRatio := drWidth / orWidth

	last := points[len(points)-1].Close
	brokeOut := last > orHigh*(1+c.cfg.BreakoutBuffer) || last < orLow*(1-c.cfg.BreakoutBuffer)

	details := fmt.Sprintf("expand_ratio=%.2f broke_out=%v or=[%.2f,%.2f] dr=[%.2f,%.2f]", expandRatio, brokeOut, orLow, orHigh, drLow, drHigh)

	if expandRatio >= c.cfg.ExpandThreshold && brokeOut {
		return models.IntradayTrend, details
	}
	return models.IntradayRange, details
}
