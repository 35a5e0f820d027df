// Package gateway serializes every call into the order-routing session
// behind a single dedicated worker, matching the broker's expectation
// that calls arrive from one thread in submission order, and applies the
// dry-run transform that turns a would-be sell into a harmless probe.
package gateway

import (
	"context"
	"time"

	"github.com/wangharden/sell/pkg/orderbook"
)

// OrderRequest is what a strategy asks the gateway to place.
type OrderRequest struct {
	AccountID string
	Symbol    string
	Side      orderbook.Side
	Price     float64
	Volume    int64
	IsMarket  bool
	Remark    string
}

// OrderEvent is a broker push delivered to the gateway's registered
// callback: an acceptance, a fill, a cancellation, or a rejection. An
// event for an order this process never placed (no known local id)
// carries Symbol/Side/OrderType/Price/Volume so the book can register it
// as an external order on first sight, the way the limit-up guard needs
// to see another participant's queue position.
type OrderEvent struct {
	SystemID  string
	LocalID   string
	Symbol    string
	Side      orderbook.Side
	OrderType orderbook.OrderType
	Price     float64
	Volume    int64
	Status    orderbook.Status
	FillQty   int64
	FillPrice float64
	Message   string
}

// Session is the capability contract a broker SDK binding must satisfy.
// It says nothing about wire format or transport; the gateway treats it
// as an opaque collaborator.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	PlaceOrder(ctx context.Context, req OrderRequest) (localID string, err error)
	CancelOrder(ctx context.Context, localID string) (bool, error)

	QueryPositions(ctx context.Context) ([]orderbook.Position, error)
	QueryOrders(ctx context.Context) ([]*orderbook.Order, error)
	QueryOrder(ctx context.Context, localID string) (*orderbook.Order, error)
	WaitOrder(ctx context.Context, localID string, timeout time.Duration) (*orderbook.Order, error)

	SetDryRun(bool)
	SetOrderCallback(func(OrderEvent))
}
