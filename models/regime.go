package models

// RegimeState is the high-level market state the regime classifier
// derives from index moving-average alignment.
type RegimeState string

const (
	RegimeBull  RegimeState = "BULL"
	RegimeBear  RegimeState = "BEAR"
	RegimeRange RegimeState = "RANGE"
)

// ActiveMarket is which market's trading session is live when a regime
// classification ran; it determines which index/inverse symbols were
// eligible to vote.
type ActiveMarket string

const (
	MarketHK   ActiveMarket = "HK"
	MarketUS   ActiveMarket = "US"
	MarketNone ActiveMarket = "NONE"
)

// Regime is the result of one classification pass.
type Regime struct {
	State        RegimeState  `json:"regime"`
	Details      string       `json:"details"`
	ActiveMarket ActiveMarket `json:"active_market"`
}

// IntradayStyle is the opening-range/daily-range expansion verdict from
// the supplemented intraday classifier.
type IntradayStyle string

const (
	IntradayTrend IntradayStyle = "TREND"
	IntradayRange IntradayStyle = "RANGE"
)
