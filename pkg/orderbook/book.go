package orderbook

import (
	"fmt"
	"sort"
	"sync"
)

// Book is the process-local store of orders, keyed for lookup both by the
// local id a strategy assigned at submission time and by the system id
// the broker assigns on first confirmation. A single mutex guards all
// three indexes; it is never held across a broker call.
type Book struct {
	mu          sync.RWMutex
	byLocal     map[string]*Order
	bySystem    map[string]*Order
	bySymbol    map[string]map[string]*Order // symbol -> local id -> order
}

// New creates an empty Book.
func New() *Book {
	return &Book{
		byLocal:  make(map[string]*Order),
		bySystem: make(map[string]*Order),
		bySymbol: make(map[string]map[string]*Order),
	}
}

// Add registers a newly-submitted order under its local id. The system
// id is not yet known and is attached later via BindSystemID.
func (b *Book) Add(o *Order) error {
	if o.LocalID == "" {
		return fmt.Errorf("orderbook: order for %s has empty local id", o.Symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byLocal[o.LocalID]; exists {
		return fmt.Errorf("orderbook: local id %s already registered", o.LocalID)
	}
	b.byLocal[o.LocalID] = o
	if o.SystemID != "" {
		b.bySystem[o.SystemID] = o
	}
	bucket, ok := b.bySymbol[o.Symbol]
	if !ok {
		bucket = make(map[string]*Order)
		b.bySymbol[o.Symbol] = bucket
	}
	bucket[o.LocalID] = o
	return nil
}

// BindSystemID attaches the broker-assigned system id to an order already
// known by local id, the correlation made on first Accepted confirmation.
func (b *Book) BindSystemID(localID, systemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.byLocal[localID]
	if !ok {
		return fmt.Errorf("orderbook: unknown local id %s", localID)
	}
	if existing, bound := b.bySystem[systemID]; bound && existing.LocalID != localID {
		return fmt.Errorf("orderbook: system id %s already bound to local id %s", systemID, existing.LocalID)
	}
	o.SystemID = systemID
	b.bySystem[systemID] = o
	return nil
}

// FindByLocal returns the order registered under localID, if any.
func (b *Book) FindByLocal(localID string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byLocal[localID]
	return o, ok
}

// FindBySystem returns the order registered under systemID, if any.
func (b *Book) FindBySystem(systemID string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.bySystem[systemID]
	return o, ok
}

// EnsureExternal returns the order known for systemID, creating an
// external (IsLocal=false) record if the first confirmation this process
// observes for an order did not originate from a local submission — the
// case a limit-up guard watches for on the order book of other market
// participants.
func (b *Book) EnsureExternal(systemID, symbol string, side Side, typ OrderType, price float64, volume int64) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	if o, ok := b.bySystem[systemID]; ok {
		return o
	}
	o := &Order{
		LocalID:  "ext-" + systemID,
		SystemID: systemID,
		Symbol:   symbol,
		Side:     side,
		Type:     typ,
		Price:    price,
		Volume:   volume,
		Status:   StatusAccepted,
		IsLocal:  false,
	}
	b.byLocal[o.LocalID] = o
	b.bySystem[systemID] = o
	bucket, ok := b.bySymbol[symbol]
	if !ok {
		bucket = make(map[string]*Order)
		b.bySymbol[symbol] = bucket
	}
	bucket[o.LocalID] = o
	return o
}

// ActiveOrdersFor returns every non-terminal order on symbol, sorted by
// local id for deterministic iteration (e.g. cancellation sweeps).
func (b *Book) ActiveOrdersFor(symbol string) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bucket := b.bySymbol[symbol]
	out := make([]*Order, 0, len(bucket))
	for _, o := range bucket {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

// PendingSellQty sums the outstanding (unfilled) quantity of every active
// sell order on symbol, the figure the over-sell invariant checks against
// available inventory before a new sell is placed.
func (b *Book) PendingSellQty(symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	for _, o := range b.bySymbol[symbol] {
		if o.Side == SideSell && !o.Status.IsTerminal() {
			total += o.Volume - o.FilledVolume
		}
	}
	return total
}

// UpdateFromEvent applies a broker-reported status/fill change to the
// order identified by systemID, validating the transition.
func (b *Book) UpdateFromEvent(systemID string, newStatus Status, fillQty int64, fillPrice float64) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.bySystem[systemID]
	if !ok {
		return nil, fmt.Errorf("orderbook: no order for system id %s", systemID)
	}
	if fillQty > 0 {
		if err := o.ApplyFill(fillQty, fillPrice); err != nil {
			return nil, err
		}
		return o, nil
	}
	if err := o.SetStatus(newStatus); err != nil {
		return nil, err
	}
	return o, nil
}
