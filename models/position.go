package models

import (
	"time"
)

// Position represents a current holding in a symbol.
type Position struct {
	// Symbol is the ticker symbol.
	Symbol string `json:"symbol" db:"symbol"`
	// Quantity is the number of units held.
	Quantity float64 `json:"quantity" db:"quantity"`
	// AverageCost is the average cost basis per unit.
	AverageCost float64 `json:"average_cost" db:"average_cost"`
	// CurrentPrice is the current market price.
	CurrentPrice float64 `json:"current_price" db:"current_price"`
	// MarketValue is the current market value (Quantity * CurrentPrice).
	MarketValue float64 `json:"market_value" db:"market_value"`
	// UnrealizedPL is the unrealized profit/loss.
	UnrealizedPL float64 `json:"unrealized_pl" db:"unrealized_pl"`
	// UpdatedAt is when the position was last updated.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Balance represents account balance information.
type Balance struct {
	// Cash is the available cash balance.
	Cash float64 `json:"cash" db:"cash"`
	// Equity is the total account equity.
	Equity float64 `json:"equity" db:"equity"`
	// BuyingPower is the available buying power.
	BuyingPower float64 `json:"buying_power" db:"buying_power"`
	// PortfolioValue is the total portfolio value.
	PortfolioValue float64 `json:"portfolio_value" db:"portfolio_value"`
	// UpdatedAt is when the balance was last updated.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PMPosition is the Position Manager's holding record: the minimal state
// PM tracks for a symbol it believes the account holds. It is distinct
// from the broker-reported Position above — PM is the authoritative,
// cross-process view; Position is a point-in-time broker snapshot.
type PMPosition struct {
	Symbol            string    `json:"symbol"`
	Quantity          float64   `json:"quantity"`
	AvailableQuantity float64   `json:"available_quantity"`
	CostPrice         float64   `json:"cost_price"`
	Currency          string    `json:"currency"`
	EntryTime         time.Time `json:"entry_time"`
	OrderID           string    `json:"order_id"`
}

// PositionStopStatus is the lifecycle state of a PositionStop.
type PositionStopStatus string

const (
	PositionStopActive PositionStopStatus = "active"
	PositionStopClosed PositionStopStatus = "closed"
)

// PositionStop is the per-symbol stop/target record created on fill and
// maintained by trailing logic until the position is closed.
type PositionStop struct {
	Symbol     string             `json:"symbol" db:"symbol"`
	EntryPrice float64            `json:"entry_price" db:"entry_price"`
	StopLoss   float64            `json:"stop_loss" db:"stop_loss"`
	TakeProfit float64            `json:"take_profit" db:"take_profit"`
	ATR        float64            `json:"atr" db:"atr"`
	Status     PositionStopStatus `json:"status" db:"status"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`
}

// AccountSnapshot is the brokerage account state fetched fresh for every
// OE decision; it is never cached beyond a single decision.
type AccountSnapshot struct {
	CashByCurrency              map[string]float64 `json:"cash_by_currency"`
	BuyPowerByCurrency          map[string]float64 `json:"buy_power_by_currency"`
	RemainingFinanceByCurrency  map[string]float64 `json:"remaining_finance_by_currency"`
	NetAssetsByCurrency         map[string]float64 `json:"net_assets_by_currency"`
	Positions                   []Position         `json:"positions"`
}

// UsableFunds determines the funds usable for a buy in the given
// currency: margin debt (negative cash) uses remaining finance rather
// than buying power, since buying power may also be negative for the
// same reason.
func (a AccountSnapshot) UsableFunds(currency string) float64 {
	if cash, ok := a.CashByCurrency[currency]; ok && cash < 0 {
		return a.RemainingFinanceByCurrency[currency]
	}
	return a.CashByCurrency[currency]
}
