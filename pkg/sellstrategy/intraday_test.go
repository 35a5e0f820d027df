package sellstrategy

import (
	"context"
	"testing"
	"time"

	"github.com/wangharden/sell/pkg/appctx"
	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/market"
	"github.com/wangharden/sell/pkg/orderbook"
	"github.com/wangharden/sell/pkg/watchlist"
)

type intradayFakeSession struct {
	placed        []gateway.OrderRequest
	cancelled     []string
	positions     []orderbook.Position
	positionErr   error
	positionCalls int
}

func (f *intradayFakeSession) Connect(ctx context.Context) error { return nil }
func (f *intradayFakeSession) Disconnect() error                 { return nil }
func (f *intradayFakeSession) IsConnected() bool                 { return true }
func (f *intradayFakeSession) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	f.placed = append(f.placed, req)
	return "L1", nil
}
func (f *intradayFakeSession) CancelOrder(ctx context.Context, localID string) (bool, error) {
	f.cancelled = append(f.cancelled, localID)
	return true, nil
}
func (f *intradayFakeSession) QueryPositions(ctx context.Context) ([]orderbook.Position, error) {
	f.positionCalls++
	return f.positions, f.positionErr
}
func (f *intradayFakeSession) QueryOrders(ctx context.Context) ([]*orderbook.Order, error) {
	return nil, nil
}
func (f *intradayFakeSession) QueryOrder(ctx context.Context, localID string) (*orderbook.Order, error) {
	return nil, nil
}
func (f *intradayFakeSession) WaitOrder(ctx context.Context, localID string, timeout time.Duration) (*orderbook.Order, error) {
	return nil, nil
}
func (f *intradayFakeSession) SetDryRun(bool)                        {}
func (f *intradayFakeSession) SetOrderCallback(func(gateway.OrderEvent)) {}

func newIntradayTestCtx(fs *intradayFakeSession) *appctx.Context {
	gw := gateway.New(fs, 8)
	mc := market.New()
	book := orderbook.New()
	cfg := &config.Config{Strategy: config.StrategyConfig{AccountID: "acct1", HoldVol: 300, InputAmt: 1000000}}
	wl := watchlist.New()
	return appctx.NewContext(gw, mc, book, wl, cfg)
}

func TestIntradayLatchBaselineSetsOpenPriceOnce(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	ctx.Market.OnTick(market.Tick{
		Symbol: "600519.SH", Timestamp: 92650000,
		Open: 101000, PreClose: 100000, Turnover: 5e7,
	})

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH", AvailVol: 10000, PreClose: 10.0}}

	s.latchBaseline("600519.SH", stock)
	if !stock.Runtime.BaselineLatched() {
		t.Fatal("expected baseline to latch")
	}
	if stock.Runtime.OpenPrice != 10.1 {
		t.Errorf("OpenPrice = %v, want 10.1", stock.Runtime.OpenPrice)
	}
	if stock.Runtime.AvailAfterAuction != 10000 {
		t.Errorf("AvailAfterAuction = %d, want 10000", stock.Runtime.AvailAfterAuction)
	}

	// a second tick must not overwrite the latched open price
	ctx.Market.OnTick(market.Tick{Symbol: "600519.SH", Timestamp: 92700000, Open: 999000, PreClose: 100000})
	s.latchBaseline("600519.SH", stock)
	if stock.Runtime.OpenPrice != 10.1 {
		t.Errorf("OpenPrice changed after latch: got %v, want 10.1", stock.Runtime.OpenPrice)
	}
}

func TestIntradayMaybeSellSkipsWithoutOpenPrice(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH", AvailVol: 10000, PreClose: 10.0, FBFlag: true}}
	s.maybeSell("600519.SH", stock, 110000)

	if len(fs.placed) != 0 {
		t.Fatalf("expected no orders before the baseline latches, got %d", len(fs.placed))
	}
}

func TestIntradayMaybeSellSkipsWhenConditionEmpty(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH", AvailVol: 10000, PreClose: 10.0}}
	stock.Runtime.OpenPrice = 10.1
	stock.Runtime.LatchAvailAfterAuction(10000)

	s.maybeSell("600519.SH", stock, 110000)
	if len(fs.placed) != 0 {
		t.Fatalf("expected no orders when the symbol carries no fb/zb/hf/lb condition, got %d", len(fs.placed))
	}
}

func TestIntradayMaybeSellSkipsOutsideAnyWindow(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH", AvailVol: 10000, PreClose: 10.0, FBFlag: true}}
	stock.Runtime.OpenPrice = 10.1
	stock.Runtime.JJAmt = 0
	stock.Runtime.LatchAvailAfterAuction(10000)

	// fb/jjamt=0/openRatio=1.01 resolves to the minRatio=0 bucket, whose
	// windows start no earlier than 105920; 100000 falls in none of them.
	s.maybeSell("600519.SH", stock, 100000)
	if len(fs.placed) != 0 {
		t.Fatalf("expected no orders outside any matched window, got %d", len(fs.placed))
	}
}

func TestIntradayCancelSweepOnlyCancelsMatchingPrefix(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	_ = ctx.Book.Add(&orderbook.Order{LocalID: "own1", Symbol: "600519.SH", Remark: intradayRemarkPrefix + "600519.SH", Status: orderbook.StatusSubmitted})
	_ = ctx.Book.Add(&orderbook.Order{LocalID: "other1", Symbol: "600519.SH", Remark: "close_sell_600519.SH", Status: orderbook.StatusSubmitted})

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH"}}
	s.cancelSweep("600519.SH", stock)

	if len(fs.cancelled) != 1 || fs.cancelled[0] != "own1" {
		t.Fatalf("expected only the intraday-owned order to be cancelled, got %v", fs.cancelled)
	}

	st := s.state("600519.SH")
	if st.cancelAttempts != 1 {
		t.Errorf("cancelAttempts = %d, want 1", st.cancelAttempts)
	}
}

func TestIntradayCancelSweepStopsAfterMaxAttempts(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	st := s.state("600519.SH")
	st.cancelAttempts = intradayMaxCancelAttempts

	_ = ctx.Book.Add(&orderbook.Order{LocalID: "own1", Symbol: "600519.SH", Remark: intradayRemarkPrefix + "600519.SH", Status: orderbook.StatusSubmitted})

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH"}}
	s.cancelSweep("600519.SH", stock)

	if len(fs.cancelled) != 0 {
		t.Fatalf("expected no cancels once max attempts is reached, got %v", fs.cancelled)
	}
}

func TestIntradayPositionPrefersLiveRefreshOverStaticParams(t *testing.T) {
	fs := &intradayFakeSession{positions: []orderbook.Position{
		{Symbol: "600519.SH", Total: 10000, Available: 500},
	}}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	// static Params.AvailVol claims far more than the live position; the
	// sizing source must reflect the refreshed live position, not the
	// CSV-loaded value, once a refresh has happened.
	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH", AvailVol: 10000, TotalVol: 10000}}

	before := s.position(stock)
	if before.Available != 10000 {
		t.Fatalf("expected the pre-refresh fallback to read the static AvailVol 10000, got %d", before.Available)
	}

	s.refreshPositions(time.Now())
	after := s.position(stock)
	if after.Available != 500 {
		t.Fatalf("expected the post-refresh position to read the live Available 500, got %d", after.Available)
	}
	if fs.positionCalls != 1 {
		t.Fatalf("expected exactly one position query, got %d", fs.positionCalls)
	}
}

func TestIntradayRefreshPositionsThrottledToOncePerSecond(t *testing.T) {
	fs := &intradayFakeSession{positions: []orderbook.Position{{Symbol: "600519.SH", Available: 500}}}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	now := time.Now()
	s.refreshPositions(now)
	s.refreshPositions(now.Add(200 * time.Millisecond))
	if fs.positionCalls != 1 {
		t.Fatalf("expected the second refresh within one second to be throttled, got %d calls", fs.positionCalls)
	}

	s.refreshPositions(now.Add(1100 * time.Millisecond))
	if fs.positionCalls != 2 {
		t.Fatalf("expected a refresh past the one-second throttle window to query again, got %d calls", fs.positionCalls)
	}
}

func TestIntradayHandleAccumulatesSoldVol(t *testing.T) {
	fs := &intradayFakeSession{}
	ctx := newIntradayTestCtx(fs)
	s := NewIntradaySellStrategy(ctx, 1)

	stock := &watchlist.Stock{Params: watchlist.Params{Symbol: "600519.SH"}}
	ctx.Watchlist.Add(stock)

	order := &orderbook.Order{Symbol: "600519.SH", IsLocal: true}
	s.Handle(gateway.OrderEvent{FillQty: 200}, order)
	s.Handle(gateway.OrderEvent{FillQty: 150}, order)

	if stock.Runtime.SoldVol != 350 {
		t.Fatalf("expected accumulated sold_vol 350, got %d", stock.Runtime.SoldVol)
	}

	s.Handle(gateway.OrderEvent{FillQty: 0}, order)
	if stock.Runtime.SoldVol != 350 {
		t.Fatalf("expected zero-fill event to be ignored, sold_vol changed to %d", stock.Runtime.SoldVol)
	}
}
