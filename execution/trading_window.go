package execution

import (
	"strings"
	"time"

	"github.com/sherwood-quant/core/models"
)

// sessionWindow is one open/close time-of-day pair within a single trading
// day, evaluated in a specific IANA zone.
type sessionWindow struct {
	open, close time.Duration // minutes-of-day, as a duration since midnight
}

func minutes(h, m int) time.Duration { return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute }

var (
	hkZone          = mustLoadLocation("Asia/Hong_Kong")
	usZone          = mustLoadLocation("America/New_York")
	hkSessions      = []sessionWindow{{minutes(9, 30), minutes(12, 0)}, {minutes(13, 0), minutes(16, 0)}}
	usRegular       = sessionWindow{minutes(9, 30), minutes(16, 0)}
	usAfterhours    = sessionWindow{minutes(16, 0), minutes(20, 0)}
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MarketHours implements the regime classifier's MarketHours interface and
// the OE consume loop's trading-window gate: HK regular session
// 09:30-12:00 and 13:00-16:00 HKT, US regular 09:30-16:00 ET, US
// afterhours 16:00-20:00 ET.
type MarketHours struct {
	AllowAfterhours bool
}

// MarketOf returns the market a symbol belongs to by suffix.
func MarketOf(symbol string) models.ActiveMarket {
	switch {
	case strings.HasSuffix(symbol, ".HK"):
		return models.MarketHK
	case strings.HasSuffix(symbol, ".US"):
		return models.MarketUS
	default:
		return models.MarketNone
	}
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

func inSession(t time.Time, windows ...sessionWindow) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	tod := timeOfDay(t)
	for _, w := range windows {
		if tod >= w.open && tod <= w.close {
			return true
		}
	}
	return false
}

// IsOpen reports whether market is currently in a tradeable session at
// wall-clock now (interpreted in UTC and converted to each market's zone).
func (h MarketHours) IsOpen(market models.ActiveMarket, now time.Time) bool {
	switch market {
	case models.MarketHK:
		return inSession(now.In(hkZone), hkSessions...)
	case models.MarketUS:
		windows := []sessionWindow{usRegular}
		if h.AllowAfterhours {
			windows = append(windows, usAfterhours)
		}
		return inSession(now.In(usZone), windows...)
	default:
		return false
	}
}

// ActiveMarket satisfies regime.MarketHours: HK takes priority when both
// happen to overlap (they do not in practice), else US, else None.
func (h MarketHours) ActiveMarket(now time.Time) models.ActiveMarket {
	if h.IsOpen(models.MarketHK, now) {
		return models.MarketHK
	}
	if h.IsOpen(models.MarketUS, now) {
		return models.MarketUS
	}
	return models.MarketNone
}

// BelongsToMarket satisfies regime.MarketHours.
func (h MarketHours) BelongsToMarket(symbol string, market models.ActiveMarket) bool {
	return MarketOf(symbol) == market
}

// NextOpen computes the next session-open instant for symbol's market at
// or after now. Used by the trading-window gate to compute retry_after.
func (h MarketHours) NextOpen(symbol string, now time.Time) time.Time {
	switch MarketOf(symbol) {
	case models.MarketHK:
		next := nextOpenIn(now, hkZone, hkSessions[0].open)
		if alt := nextOpenIn(now, hkZone, hkSessions[1].open); alt.Before(next) {
			next = alt
		}
		return next
	case models.MarketUS:
		return nextOpenIn(now, usZone, usRegular.open)
	default:
		return now
	}
}

func nextOpenIn(now time.Time, loc *time.Location, open time.Duration) time.Time {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	candidate := day.Add(open)
	for candidate.Before(local) || candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
		candidate = day.Add(open)
	}
	return candidate
}
