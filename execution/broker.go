// Package execution provides trade execution, risk-gated order sizing,
// and the Order Executor consume loop.
package execution

import (
	"context"
	"errors"

	"github.com/sherwood-quant/core/models"
)

// ErrorKind classifies a gateway error so the executor knows whether to
// retry, fail terminally, or surface it unrecovered.
type ErrorKind string

const (
	ErrRateLimited       ErrorKind = "rate_limited"
	ErrInsufficientFunds ErrorKind = "insufficient_funds"
	ErrInvalidQuantity   ErrorKind = "invalid_quantity"
	ErrInvalidPrice      ErrorKind = "invalid_price"
	ErrNotFound          ErrorKind = "not_found"
	ErrTransient         ErrorKind = "transient"
	ErrPermanent         ErrorKind = "permanent"
)

// GatewayError wraps an underlying error with the classification the
// executor needs to decide retry policy.
type GatewayError struct {
	Kind ErrorKind
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError builds a GatewayError of the given kind.
func NewGatewayError(kind ErrorKind, err error) *GatewayError {
	return &GatewayError{Kind: kind, Err: err}
}

// IsRetryable reports whether err should be retried via nack(retry=true):
// transient and rate-limited errors recover, validation/permanent errors
// do not.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		switch ge.Kind {
		case ErrTransient, ErrRateLimited:
			return true
		default:
			return false
		}
	}
	return false
}

// OrderSpec is what the executor hands the gateway to place an order; it
// intentionally omits anything broker-protocol-specific: the core calls
// an abstract trading gateway, not the wire protocol.
type OrderSpec struct {
	Symbol      string
	Side        models.OrderSide
	Type        models.OrderType
	Quantity    float64
	Price       float64
	TimeInForce string
}

// TradingGateway is the abstract brokerage interface: the only component
// permitted to call it is the Order Executor. Concrete
// adapters (paper, or a real broker SDK wrapper) satisfy this without the
// core depending on any wire protocol.
type TradingGateway interface {
	Name() string

	// AccountBalance fetches a fresh account snapshot; it must never be
	// cached beyond a single decision.
	AccountBalance(ctx context.Context) (models.AccountSnapshot, error)

	// StockPositions fetches the broker's authoritative position list,
	// used to cold-sync PM at OE startup and to detect state
	// inconsistencies.
	StockPositions(ctx context.Context) ([]models.Position, error)

	// TodayOrders fetches today's orders for symbol, filled ones included,
	// used by the duplicate-same-side-order gate and the same-side daily cap.
	TodayOrders(ctx context.Context, symbol string) ([]models.Order, error)

	SubmitOrder(ctx context.Context, spec OrderSpec) (*models.Order, error)
	ReplaceOrder(ctx context.Context, orderID string, quantity, price float64) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelOrdersBatch(ctx context.Context, orderIDs []string) error

	// OnOrderChanged registers a callback invoked on order status
	// transitions (submitted/filled/cancelled); used for the post-fill
	// step.
	OnOrderChanged(callback func(models.Order))
}
