package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"

	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/orderbook"
)

// NATSSessionConfig configures a NATSSession.
type NATSSessionConfig struct {
	URL       string
	AccountID string

	// Subjects the broker bridge listens on and publishes to. Left at
	// their zero value they default to "ors.<place|cancel|positions|orders>"
	// and "order.<account_id>.>".
	PlaceSubject     string
	CancelSubject    string
	PositionsSubject string
	OrdersSubject    string
	EventSubjectBase string

	RequestTimeout time.Duration
}

// NATSSession is a gateway.Session bound to a NATS request/reply broker
// bridge: orders go out as JSON requests on a subject the bridge
// answers synchronously, and fills/acks arrive as pushes on a
// per-account wildcard subject this session subscribes once at Connect.
type NATSSession struct {
	cfg NATSSessionConfig

	mu        sync.RWMutex
	conn      *nats.Conn
	sub       *nats.Subscription
	connected bool
	dryRun    bool
	onUpdate  func(gateway.OrderEvent)

	orderSeq int64
}

// NewNATSSession builds a session that dials lazily on Connect.
func NewNATSSession(cfg NATSSessionConfig) *NATSSession {
	if cfg.PlaceSubject == "" {
		cfg.PlaceSubject = "ors.place"
	}
	if cfg.CancelSubject == "" {
		cfg.CancelSubject = "ors.cancel"
	}
	if cfg.PositionsSubject == "" {
		cfg.PositionsSubject = "ors.positions"
	}
	if cfg.OrdersSubject == "" {
		cfg.OrdersSubject = "ors.orders"
	}
	if cfg.EventSubjectBase == "" {
		cfg.EventSubjectBase = "order." + cfg.AccountID + ".>"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return &NATSSession{cfg: cfg}
}

// Connect dials the broker bridge and subscribes to the account's order
// event subject.
func (s *NATSSession) Connect(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL,
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("transport: connect to ORS bridge: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	sub, err := conn.Subscribe(s.cfg.EventSubjectBase, func(msg *nats.Msg) {
		ev, err := decodeOrderEvent(msg.Data)
		if err != nil {
			return
		}
		s.mu.RLock()
		cb := s.onUpdate
		s.mu.RUnlock()
		if cb != nil {
			cb(ev)
		}
	})
	if err != nil {
		conn.Close()
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		return fmt.Errorf("transport: subscribe %s: %w", s.cfg.EventSubjectBase, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Disconnect unsubscribes and closes the NATS connection.
func (s *NATSSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	return nil
}

// IsConnected reports whether Connect has succeeded and Disconnect has
// not since been called.
func (s *NATSSession) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetDryRun tags every outgoing place request with dry_run so the bridge can
// route it to a paper account instead of the live venue.
func (s *NATSSession) SetDryRun(on bool) {
	s.mu.Lock()
	s.dryRun = on
	s.mu.Unlock()
}

// SetOrderCallback registers the consumer invoked for every push on the
// account's event subject.
func (s *NATSSession) SetOrderCallback(cb func(gateway.OrderEvent)) {
	s.mu.Lock()
	s.onUpdate = cb
	s.mu.Unlock()
}

type placeRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	AccountID     string  `json:"account_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Volume        int64   `json:"volume"`
	IsMarket      bool    `json:"is_market"`
	Remark        string  `json:"remark"`
	DryRun        bool    `json:"dry_run"`
}

// PlaceOrder round-trips req through the place subject and returns the
// bridge-assigned local order id from the reply.
func (s *NATSSession) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	s.mu.RLock()
	conn, dryRun := s.conn, s.dryRun
	s.mu.RUnlock()
	if conn == nil {
		return "", fmt.Errorf("transport: not connected")
	}

	side := "sell"
	if req.Side == orderbook.SideBuy {
		side = "buy"
	}
	payload := placeRequest{
		ClientOrderID: fmt.Sprintf("ORD_%d_%06d", time.Now().UnixMilli(), atomic.AddInt64(&s.orderSeq, 1)),
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		Side:          side,
		Price:         req.Price,
		Volume:        req.Volume,
		IsMarket:      req.IsMarket,
		Remark:        req.Remark,
		DryRun:        dryRun,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("transport: marshal place request: %w", err)
	}

	reply, err := conn.RequestWithContext(ctx, s.cfg.PlaceSubject, body)
	if err != nil {
		return "", fmt.Errorf("transport: place order request: %w", err)
	}
	v := gjson.ParseBytes(reply.Data)
	if errMsg := v.Get("error").String(); errMsg != "" {
		return "", fmt.Errorf("transport: bridge rejected order: %s", errMsg)
	}
	localID := v.Get("local_id").String()
	if localID == "" {
		return "", fmt.Errorf("transport: bridge reply missing local_id")
	}
	return localID, nil
}

// CancelOrder round-trips a cancel request through the cancel subject.
func (s *NATSSession) CancelOrder(ctx context.Context, localID string) (bool, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return false, fmt.Errorf("transport: not connected")
	}

	body, _ := json.Marshal(map[string]string{"local_id": localID, "account_id": s.cfg.AccountID})
	reply, err := conn.RequestWithContext(ctx, s.cfg.CancelSubject, body)
	if err != nil {
		return false, fmt.Errorf("transport: cancel order request: %w", err)
	}
	v := gjson.ParseBytes(reply.Data)
	if errMsg := v.Get("error").String(); errMsg != "" {
		return false, fmt.Errorf("transport: bridge rejected cancel: %s", errMsg)
	}
	return v.Get("ok").Bool(), nil
}

// QueryPositions fetches the account's current position book.
func (s *NATSSession) QueryPositions(ctx context.Context) ([]orderbook.Position, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("transport: not connected")
	}

	body, _ := json.Marshal(map[string]string{"account_id": s.cfg.AccountID})
	reply, err := conn.RequestWithContext(ctx, s.cfg.PositionsSubject, body)
	if err != nil {
		return nil, fmt.Errorf("transport: positions request: %w", err)
	}

	var positions []orderbook.Position
	gjson.ParseBytes(reply.Data).Get("positions").ForEach(func(_, item gjson.Result) bool {
		positions = append(positions, orderbook.Position{
			Symbol:    item.Get("symbol").String(),
			Total:     item.Get("total").Int(),
			Available: item.Get("available").Int(),
		})
		return true
	})
	return positions, nil
}

// QueryOrders fetches every order the bridge currently has open for the
// account.
func (s *NATSSession) QueryOrders(ctx context.Context) ([]*orderbook.Order, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("transport: not connected")
	}

	body, _ := json.Marshal(map[string]string{"account_id": s.cfg.AccountID})
	reply, err := conn.RequestWithContext(ctx, s.cfg.OrdersSubject, body)
	if err != nil {
		return nil, fmt.Errorf("transport: orders request: %w", err)
	}

	var orders []*orderbook.Order
	gjson.ParseBytes(reply.Data).Get("orders").ForEach(func(_, item gjson.Result) bool {
		orders = append(orders, decodeOrderFromJSON(item))
		return true
	})
	return orders, nil
}

// QueryOrder fetches a single order by local id, filtering QueryOrders.
func (s *NATSSession) QueryOrder(ctx context.Context, localID string) (*orderbook.Order, error) {
	orders, err := s.QueryOrders(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.LocalID == localID {
			return o, nil
		}
	}
	return nil, fmt.Errorf("transport: order %s not found", localID)
}

// WaitOrder polls QueryOrder until the order leaves the submitted state
// or timeout elapses. A full binding would instead wait on the push
// subject for this order id, but the sell strategies never call
// WaitOrder on the hot path, so polling keeps this binding simple.
func (s *NATSSession) WaitOrder(ctx context.Context, localID string, timeout time.Duration) (*orderbook.Order, error) {
	deadline := time.Now().Add(timeout)
	for {
		order, err := s.QueryOrder(ctx, localID)
		if err == nil && order.Status != orderbook.StatusSubmitted {
			return order, nil
		}
		if time.Now().After(deadline) {
			return order, fmt.Errorf("transport: wait order %s: timeout", localID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func decodeOrderFromJSON(v gjson.Result) *orderbook.Order {
	side := orderbook.SideSell
	if v.Get("side").String() == "buy" {
		side = orderbook.SideBuy
	}
	return &orderbook.Order{
		LocalID:  v.Get("local_id").String(),
		SystemID: v.Get("system_id").String(),
		Symbol:   v.Get("symbol").String(),
		Side:     side,
		Price:    v.Get("price").Float(),
		Volume:   v.Get("volume").Int(),
		Remark:   v.Get("remark").String(),
		Status:   decodeStatus(v.Get("status").String()),
	}
}

func decodeOrderEvent(data []byte) (gateway.OrderEvent, error) {
	if !gjson.ValidBytes(data) {
		return gateway.OrderEvent{}, fmt.Errorf("invalid json")
	}
	v := gjson.ParseBytes(data)
	side := orderbook.SideSell
	if v.Get("side").String() == "buy" {
		side = orderbook.SideBuy
	}
	orderType := orderbook.OrderTypeLimit
	if v.Get("order_type").String() == "market" {
		orderType = orderbook.OrderTypeMarket
	}
	return gateway.OrderEvent{
		SystemID:  v.Get("system_id").String(),
		LocalID:   v.Get("local_id").String(),
		Symbol:    v.Get("symbol").String(),
		Side:      side,
		OrderType: orderType,
		Price:     v.Get("price").Float(),
		Volume:    v.Get("volume").Int(),
		Status:    decodeStatus(v.Get("status").String()),
		FillQty:   v.Get("fill_qty").Int(),
		FillPrice: v.Get("fill_price").Float(),
		Message:   v.Get("message").String(),
	}, nil
}

func decodeStatus(s string) orderbook.Status {
	switch s {
	case "accepted":
		return orderbook.StatusAccepted
	case "partially_filled":
		return orderbook.StatusPartialFilled
	case "filled":
		return orderbook.StatusFilled
	case "cancelled", "canceled":
		return orderbook.StatusCancelled
	case "rejected":
		return orderbook.StatusRejected
	default:
		return orderbook.StatusSubmitted
	}
}
