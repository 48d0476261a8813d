// Package position implements the cross-process authoritative Position
// Manager: which symbols the system believes it holds, shared across all
// signal-generation/order-execution processes for an account via a
// SET+HASH+pub/sub store.
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sherwood-quant/core/models"
)

// Update is the message published on add/remove.
type Update struct {
	Action string             `json:"action"` // "add" or "remove"
	Symbol string             `json:"symbol"`
	Data   *models.PMPosition `json:"data,omitempty"`
	At     time.Time          `json:"timestamp"`
}

// Store is the durable backend a Manager is built on: a per-account SET of
// symbols, a HASH of symbol->detail JSON, and a pub/sub channel. A Redis
// implementation (RedisStore) and an in-memory test double both satisfy it.
type Store interface {
	SAdd(ctx context.Context, account, symbol string) error
	SRem(ctx context.Context, account, symbol string) error
	SIsMember(ctx context.Context, account, symbol string) (bool, error)
	SMembers(ctx context.Context, account string) ([]string, error)
	HSet(ctx context.Context, account, symbol string, detail []byte) error
	HDel(ctx context.Context, account, symbol string) error
	HGet(ctx context.Context, account, symbol string) ([]byte, bool, error)
	HGetAll(ctx context.Context, account string) (map[string][]byte, error)
	Publish(ctx context.Context, account string, update Update) error
	// Subscribe delivers updates published for account until ctx is
	// cancelled; it is the long-lived listener callers run in a goroutine.
	Subscribe(ctx context.Context, account string) (<-chan Update, error)
}

// Config tunes PM's failure-mode behaviour.
type Config struct {
	Account string
	// FailClosed forces has(symbol) to report an aborted decision on any
	// store failure, rather than the default safe-open mode of returning
	// false when a local cache confirms the symbol is unknown.
	FailClosed bool
}

// Manager is the per-account Position Manager.
type Manager struct {
	store Store
	cfg   Config

	// localCache mirrors the last known membership so has() can apply the
	// safe-open failure mode without hitting the store a second time.
	localCache map[string]bool
}

// New constructs a Manager bound to store for the account in cfg.
func New(store Store, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg, localCache: make(map[string]bool)}
}

// Add inserts symbol into the position set, overwrites its detail, and
// publishes an add notification. Idempotent: adding an existing symbol
// just updates its detail.
func (m *Manager) Add(ctx context.Context, symbol string, quantity, costPrice float64, orderID string) error {
	detail := models.PMPosition{
		Symbol:            symbol,
		Quantity:          quantity,
		AvailableQuantity: quantity,
		CostPrice:         costPrice,
		EntryTime:         time.Now(),
		OrderID:           orderID,
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("position: marshal detail: %w", err)
	}

	if err := m.store.SAdd(ctx, m.cfg.Account, symbol); err != nil {
		return fmt.Errorf("position: sadd: %w", err)
	}
	if err := m.store.HSet(ctx, m.cfg.Account, symbol, payload); err != nil {
		return fmt.Errorf("position: hset: %w", err)
	}
	m.localCache[symbol] = true

	return m.publish(ctx, "add", symbol, &detail)
}

// Remove deletes symbol from both structures and publishes a remove
// notification. Idempotent.
func (m *Manager) Remove(ctx context.Context, symbol string) error {
	if err := m.store.SRem(ctx, m.cfg.Account, symbol); err != nil {
		return fmt.Errorf("position: srem: %w", err)
	}
	if err := m.store.HDel(ctx, m.cfg.Account, symbol); err != nil {
		return fmt.Errorf("position: hdel: %w", err)
	}
	m.localCache[symbol] = false

	return m.publish(ctx, "remove", symbol, nil)
}

func (m *Manager) publish(ctx context.Context, action, symbol string, detail *models.PMPosition) error {
	return m.store.Publish(ctx, m.cfg.Account, Update{Action: action, Symbol: symbol, Data: detail, At: time.Now()})
}

// HasResult distinguishes "confirmed not held" from "could not determine",
// since the latter must abort the caller's decision rather than silently
// proceed as if the symbol were free.
type HasResult struct {
	Held    bool
	Aborted bool
}

// Has reports whether symbol is currently held. On transient store
// failure it returns the safe-open result (Held=false, Aborted=false)
// only when the local cache already confirms the symbol unknown;
// otherwise, or when FailClosed is set, it reports Aborted=true and the
// caller must treat the decision as failed.
func (m *Manager) Has(ctx context.Context, symbol string) (HasResult, error) {
	held, err := m.store.SIsMember(ctx, m.cfg.Account, symbol)
	if err == nil {
		m.localCache[symbol] = held
		return HasResult{Held: held}, nil
	}

	if m.cfg.FailClosed {
		return HasResult{Aborted: true}, err
	}
	if known, ok := m.localCache[symbol]; ok && !known {
		return HasResult{Held: false}, nil
	}
	return HasResult{Aborted: true}, err
}

// All returns every symbol currently held.
func (m *Manager) All(ctx context.Context) ([]string, error) {
	symbols, err := m.store.SMembers(ctx, m.cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("position: smembers: %w", err)
	}
	return symbols, nil
}

// Detail returns the stored detail for symbol, or ok=false if not held.
func (m *Manager) Detail(ctx context.Context, symbol string) (models.PMPosition, bool, error) {
	raw, ok, err := m.store.HGet(ctx, m.cfg.Account, symbol)
	if err != nil {
		return models.PMPosition{}, false, fmt.Errorf("position: hget: %w", err)
	}
	if !ok {
		return models.PMPosition{}, false, nil
	}
	var detail models.PMPosition
	if err := json.Unmarshal(raw, &detail); err != nil {
		return models.PMPosition{}, false, fmt.Errorf("position: unmarshal detail: %w", err)
	}
	return detail, true, nil
}

// AllDetails returns every held symbol's detail.
func (m *Manager) AllDetails(ctx context.Context) (map[string]models.PMPosition, error) {
	raw, err := m.store.HGetAll(ctx, m.cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("position: hgetall: %w", err)
	}
	out := make(map[string]models.PMPosition, len(raw))
	for symbol, payload := range raw {
		var detail models.PMPosition
		if err := json.Unmarshal(payload, &detail); err != nil {
			continue
		}
		out[symbol] = detail
	}
	return out, nil
}

// SyncFromBroker reconciles PM with an authoritative broker snapshot:
// symbols present in snapshot but not PM are added, symbols present in PM
// but absent from snapshot are removed, and neither path publishes a
// notification (batch reconciliation is silent).
func (m *Manager) SyncFromBroker(ctx context.Context, snapshot []models.Position) error {
	apiSymbols := make(map[string]models.Position, len(snapshot))
	for _, p := range snapshot {
		apiSymbols[p.Symbol] = p
	}

	current, err := m.All(ctx)
	if err != nil {
		return err
	}
	currentSet := make(map[string]bool, len(current))
	for _, s := range current {
		currentSet[s] = true
	}

	for symbol, p := range apiSymbols {
		if currentSet[symbol] {
			continue
		}
		detail := models.PMPosition{
			Symbol:            symbol,
			Quantity:          p.Quantity,
			AvailableQuantity: p.Quantity,
			CostPrice:         p.AverageCost,
			EntryTime:         time.Now(),
		}
		payload, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("position: marshal sync detail: %w", err)
		}
		if err := m.store.SAdd(ctx, m.cfg.Account, symbol); err != nil {
			return fmt.Errorf("position: sync sadd: %w", err)
		}
		if err := m.store.HSet(ctx, m.cfg.Account, symbol, payload); err != nil {
			return fmt.Errorf("position: sync hset: %w", err)
		}
		m.localCache[symbol] = true
	}

	for symbol := range currentSet {
		if _, ok := apiSymbols[symbol]; ok {
			continue
		}
		if err := m.store.SRem(ctx, m.cfg.Account, symbol); err != nil {
			return fmt.Errorf("position: sync srem: %w", err)
		}
		if err := m.store.HDel(ctx, m.cfg.Account, symbol); err != nil {
			return fmt.Errorf("position: sync hdel: %w", err)
		}
		m.localCache[symbol] = false
	}
	return nil
}

// Subscribe starts the long-lived pub/sub listener and invokes callback
// for every update until ctx is cancelled.
func (m *Manager) Subscribe(ctx context.Context, callback func(Update)) error {
	updates, err := m.store.Subscribe(ctx, m.cfg.Account)
	if err != nil {
		return fmt.Errorf("position: subscribe: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				callback(u)
			}
		}
	}()
	return nil
}

// StatsResult is the Manager's operational visibility surface.
type StatsResult struct {
	Account       string
	PositionCount int
	Symbols       []string
}

// Stats reports position count and symbol list for operational visibility.
func (m *Manager) Stats(ctx context.Context) (StatsResult, error) {
	symbols, err := m.All(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{Account: m.cfg.Account, PositionCount: len(symbols), Symbols: symbols}, nil
}
