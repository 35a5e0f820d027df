package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wangharden/sell/pkg/orderbook"
)

type fakeSession struct {
	mu          sync.Mutex
	connected   bool
	dryRun      bool
	nextID      int
	placed      []OrderRequest
	cancelled   []string
	callOrder   []string
	placeErr    error
	cancelOK    bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{cancelOK: true}
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.callOrder = append(f.callOrder, "connect")
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "place")
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.nextID++
	id := "L" + string(rune('0'+f.nextID))
	f.placed = append(f.placed, req)
	return id, nil
}

func (f *fakeSession) CancelOrder(ctx context.Context, localID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callOrder = append(f.callOrder, "cancel")
	f.cancelled = append(f.cancelled, localID)
	return f.cancelOK, nil
}

func (f *fakeSession) QueryPositions(ctx context.Context) ([]orderbook.Position, error) {
	return nil, nil
}

func (f *fakeSession) QueryOrders(ctx context.Context) ([]*orderbook.Order, error) {
	return nil, nil
}

func (f *fakeSession) QueryOrder(ctx context.Context, localID string) (*orderbook.Order, error) {
	return nil, nil
}

func (f *fakeSession) WaitOrder(ctx context.Context, localID string, timeout time.Duration) (*orderbook.Order, error) {
	return nil, nil
}

func (f *fakeSession) SetDryRun(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dryRun = on
}

func (f *fakeSession) SetOrderCallback(cb func(OrderEvent)) {}

func TestPlaceOrderPassesThroughWhenNotDryRun(t *testing.T) {
	fs := newFakeSession()
	g := New(fs, 8)
	defer g.Shutdown()

	req := OrderRequest{Symbol: "600519.SH", Side: orderbook.SideSell, Price: 1900, Volume: 300, Remark: "x"}
	id, err := g.PlaceOrder(context.Background(), req, 1620.00)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty local id")
	}
	if len(fs.placed) != 1 || fs.placed[0].Side != orderbook.SideSell {
		t.Fatalf("expected a single pass-through sell, got %+v", fs.placed)
	}
}

func TestPlaceOrderDryRunTransformsSellIntoProbeBuy(t *testing.T) {
	fs := newFakeSession()
	g := New(fs, 8)
	defer g.Shutdown()
	g.SetDryRun(true)

	req := OrderRequest{Symbol: "600519.SH", Side: orderbook.SideSell, Price: 1900, Volume: 300, Remark: "x"}
	_, err := g.PlaceOrder(context.Background(), req, 1620.00)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(fs.placed) != 1 {
		t.Fatalf("expected one placed order, got %d", len(fs.placed))
	}
	probe := fs.placed[0]
	if probe.Side != orderbook.SideBuy || probe.Volume != 100 || probe.Price != 1620.00 {
		t.Errorf("dry-run probe = %+v, want buy 100 @ 1620.00", probe)
	}
	if len(fs.cancelled) != 1 {
		t.Fatalf("expected the probe to be cancelled, got %d cancels", len(fs.cancelled))
	}
}

func TestPlaceOrderFailurePropagatesWithoutLocalID(t *testing.T) {
	fs := newFakeSession()
	fs.placeErr = errPlaceFailed
	g := New(fs, 8)
	defer g.Shutdown()

	req := OrderRequest{Symbol: "600519.SH", Side: orderbook.SideSell, Price: 1900, Volume: 300, Remark: "x"}
	id, err := g.PlaceOrder(context.Background(), req, 1620.00)
	if err == nil {
		t.Fatal("expected error")
	}
	if id != "" {
		t.Errorf("expected empty local id on failure, got %q", id)
	}
}

func TestShutdownRefusesNewTasks(t *testing.T) {
	fs := newFakeSession()
	g := New(fs, 8)
	g.Shutdown()

	_, err := g.PlaceOrder(context.Background(), OrderRequest{}, 0)
	if err == nil {
		t.Fatal("expected submit after shutdown to fail")
	}
}

func TestCancelOrderReturnsFalseWithoutStateChange(t *testing.T) {
	fs := newFakeSession()
	fs.cancelOK = false
	g := New(fs, 8)
	defer g.Shutdown()

	ok, err := g.CancelOrder(context.Background(), "L1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if ok {
		t.Fatal("expected false when broker rejects the cancel request")
	}
}

var errPlaceFailed = &placeError{"broker rejected order"}

type placeError struct{ msg string }

func (e *placeError) Error() string { return e.msg }
