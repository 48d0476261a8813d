package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sherwood-quant/core/models"
)

// PaperGateway simulates a TradingGateway for paper trading and tests. No
// real money is at risk — every order fills instantly against a latest-
// price table the caller maintains via SetPrice.
type PaperGateway struct {
	name         string
	currency     string
	mu           sync.RWMutex
	cash         float64
	positions    map[string]models.Position
	orders       map[string]models.Order
	orderCounter int
	latestPrices map[string]float64
	onChanged    func(models.Order)
}

// NewPaperGateway creates a paper gateway seeded with initialCash in currency.
func NewPaperGateway(initialCash float64, currency string) *PaperGateway {
	return &PaperGateway{
		name:         "paper",
		currency:     currency,
		cash:         initialCash,
		positions:    make(map[string]models.Position),
		orders:       make(map[string]models.Order),
		latestPrices: make(map[string]float64),
	}
}

func (g *PaperGateway) Name() string { return g.name }

// SetPrice sets the latest simulated price for symbol.
func (g *PaperGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latestPrices[symbol] = price
}

func (g *PaperGateway) AccountBalance(_ context.Context) (models.AccountSnapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	positions := make([]models.Position, 0, len(g.positions))
	for _, p := range g.positions {
		positions = append(positions, p)
	}

	return models.AccountSnapshot{
		CashByCurrency:             map[string]float64{g.currency: g.cash},
		BuyPowerByCurrency:         map[string]float64{g.currency: g.cash},
		RemainingFinanceByCurrency: map[string]float64{g.currency: g.cash},
		NetAssetsByCurrency:        map[string]float64{g.currency: g.netAssets()},
		Positions:                  positions,
	}, nil
}

func (g *PaperGateway) netAssets() float64 {
	total := g.cash
	for _, p := range g.positions {
		total += p.MarketValue
	}
	return total
}

func (g *PaperGateway) StockPositions(_ context.Context) ([]models.Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	positions := make([]models.Position, 0, len(g.positions))
	for _, p := range g.positions {
		positions = append(positions, p)
	}
	return positions, nil
}

func (g *PaperGateway) TodayOrders(_ context.Context, symbol string) ([]models.Order, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.Order
	today := time.Now().Truncate(24 * time.Hour)
	for _, o := range g.orders {
		if o.Symbol == symbol && o.CreatedAt.After(today) && o.Status != models.OrderStatusCancelled {
			out = append(out, o)
		}
	}
	return out, nil
}

func (g *PaperGateway) SubmitOrder(_ context.Context, spec OrderSpec) (*models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if spec.Quantity <= 0 {
		return nil, NewGatewayError(ErrInvalidQuantity, fmt.Errorf("quantity must be positive, got %v", spec.Quantity))
	}

	price := spec.Price
	if spec.Type == models.OrderTypeMarket {
		latest, ok := g.latestPrices[spec.Symbol]
		if !ok {
			return nil, NewGatewayError(ErrTransient, fmt.Errorf("no price available for %s", spec.Symbol))
		}
		price = latest
	}

	g.orderCounter++
	order := models.Order{
		ID:        fmt.Sprintf("paper-%06d", g.orderCounter),
		Symbol:    spec.Symbol,
		Side:      spec.Side,
		Type:      spec.Type,
		Quantity:  spec.Quantity,
		Price:     price,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if spec.Side == models.OrderSideBuy {
		cost := price * spec.Quantity
		if cost > g.cash {
			order.Status = models.OrderStatusRejected
			g.orders[order.ID] = order
			return &order, NewGatewayError(ErrInsufficientFunds, fmt.Errorf("need %.2f, have %.2f", cost, g.cash))
		}
	}

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = spec.Quantity
	order.AveragePrice = price
	order.UpdatedAt = time.Now()

	if spec.Side == models.OrderSideBuy {
		g.executeBuy(spec.Symbol, spec.Quantity, price)
	} else {
		g.executeSell(spec.Symbol, spec.Quantity, price)
	}
	g.orders[order.ID] = order

	log.Info().Str("order_id", order.ID).Str("symbol", order.Symbol).
		Str("side", string(order.Side)).Float64("quantity", order.Quantity).
		Float64("price", price).Msg("paper order filled")

	if g.onChanged != nil {
		go g.onChanged(order)
	}
	return &order, nil
}

func (g *PaperGateway) executeBuy(symbol string, quantity, price float64) {
	cost := quantity * price
	g.cash -= cost

	pos, exists := g.positions[symbol]
	if exists {
		totalQty := pos.Quantity + quantity
		totalCost := pos.AverageCost*pos.Quantity + cost
		pos.AverageCost = totalCost / totalQty
		pos.Quantity = totalQty
	} else {
		pos = models.Position{Symbol: symbol, Quantity: quantity, AverageCost: price}
	}
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = pos.MarketValue - pos.Quantity*pos.AverageCost
	pos.UpdatedAt = time.Now()
	g.positions[symbol] = pos
}

func (g *PaperGateway) executeSell(symbol string, quantity, price float64) {
	proceeds := quantity * price
	g.cash += proceeds

	pos, exists := g.positions[symbol]
	if !exists {
		return
	}
	pos.Quantity -= quantity
	if pos.Quantity <= 0 {
		delete(g.positions, symbol)
		return
	}
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = pos.MarketValue - pos.Quantity*pos.AverageCost
	pos.UpdatedAt = time.Now()
	g.positions[symbol] = pos
}

func (g *PaperGateway) ReplaceOrder(_ context.Context, orderID string, quantity, price float64) (*models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return nil, NewGatewayError(ErrNotFound, fmt.Errorf("order %s not found", orderID))
	}
	if quantity > 0 {
		order.Quantity = quantity
	}
	if price > 0 {
		order.Price = price
	}
	order.UpdatedAt = time.Now()
	g.orders[orderID] = order
	return &order, nil
}

func (g *PaperGateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return NewGatewayError(ErrNotFound, fmt.Errorf("order %s not found", orderID))
	}
	if order.Status == models.OrderStatusFilled {
		return NewGatewayError(ErrPermanent, fmt.Errorf("order %s already filled", orderID))
	}
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	g.orders[orderID] = order
	return nil
}

func (g *PaperGateway) CancelOrdersBatch(ctx context.Context, orderIDs []string) error {
	for _, id := range orderIDs {
		if err := g.CancelOrder(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (g *PaperGateway) OnOrderChanged(callback func(models.Order)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChanged = callback
}
