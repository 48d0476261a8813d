package execution

import (
	"strings"

	"github.com/shopspring/decimal"
)

// tickBand is one row of the HK price-band -> tick-size table.
type tickBand struct {
	ceiling decimal.Decimal
	tick    decimal.Decimal
}

var hkTickTable = buildHKTickTable()

func buildHKTickTable() []tickBand {
	rows := [][2]string{
		{"0.25", "0.001"},
		{"0.50", "0.005"},
		{"10", "0.01"},
		{"20", "0.02"},
		{"100", "0.05"},
		{"200", "0.10"},
		{"500", "0.20"},
		{"1000", "0.50"},
		{"2000", "1.00"},
	}
	bands := make([]tickBand, len(rows))
	for i, r := range rows {
		bands[i] = tickBand{ceiling: decimal.RequireFromString(r[0]), tick: decimal.RequireFromString(r[1])}
	}
	return bands
}

// IsHK reports whether symbol trades on the HK market by suffix.
func IsHK(symbol string) bool { return strings.HasSuffix(symbol, ".HK") }

// HKTick returns the tick size for price per the HK price-band table,
// falling back to the widest tick for prices beyond the table.
func HKTick(price float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	for _, band := range hkTickTable {
		if p.LessThanOrEqual(band.ceiling) {
			return band.tick
		}
	}
	return hkTickTable[len(hkTickTable)-1].tick
}

// SnapTick rounds price to the nearest valid tick for symbol, using
// round-half-away-from-zero. US symbols always use a $0.01 tick.
func SnapTick(symbol string, price float64) float64 {
	p := decimal.NewFromFloat(price)
	var tick decimal.Decimal
	if IsHK(symbol) {
		tick = HKTick(price)
	} else {
		tick = decimal.RequireFromString("0.01")
	}
	if tick.IsZero() {
		return price
	}

	units := p.Div(tick).Round(0)
	snapped := units.Mul(tick)
	f, _ := snapped.Round(6).Float64()
	return f
}

// BoardLot returns the round-lot size for symbol. HK board lots are
// instrument-specific and must be supplied by the caller's static-info
// lookup (boardLot); absent that, 100 is the conservative HK fallback.
// US (and any non-HK) symbols trade in lots of 1.
func BoardLot(symbol string, boardLot int) int {
	if !IsHK(symbol) {
		return 1
	}
	if boardLot <= 0 {
		return 100
	}
	return boardLot
}

// SnapQuantity rounds quantity down to a whole multiple of the board lot.
// Returns 0 if the result would be less than one lot.
func SnapQuantity(symbol string, quantity float64, boardLot int) float64 {
	lot := BoardLot(symbol, boardLot)
	if lot <= 1 {
		q := decimal.NewFromFloat(quantity).Floor()
		f, _ := q.Float64()
		return f
	}

	q := decimal.NewFromFloat(quantity)
	lotDec := decimal.NewFromInt(int64(lot))
	lots := q.Div(lotDec).Floor()
	snapped := lots.Mul(lotDec)
	f, _ := snapped.Float64()
	return f
}

// PriceDeviationExceeded reports whether price deviates from reference by
// more than maxDeviation (e.g. 0.01 for 1%). Returns false (no check) when
// reference is non-positive — the reference side was unavailable.
func PriceDeviationExceeded(price, reference, maxDeviation float64) bool {
	if reference <= 0 {
		return false
	}
	dev := (price - reference) / reference
	if dev < 0 {
		dev = -dev
	}
	return dev > maxDeviation
}
