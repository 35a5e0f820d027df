package sellstrategy

import (
	"log"
	"time"

	"github.com/wangharden/sell/pkg/appctx"
	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/orderbook"
	"github.com/wangharden/sell/pkg/randgen"
	"github.com/wangharden/sell/pkg/session"
	"github.com/wangharden/sell/pkg/symbol"
	"github.com/wangharden/sell/pkg/watchlist"
)

const intradayRemarkPrefix = "qh2h_sell_"

const (
	intradayBaselineStart = 92600
	intradayBaselineEnd   = 112810

	intradayActiveStartAM = 93003
	intradayActiveEndAM   = 113000
	intradayActiveStartPM = 130000
	intradayActiveEndPM   = 144855

	intradayCancelStart = 144900
	intradayCancelEnd   = 145100

	intradaySellTriggerProbability = 0.16
	intradayMaxCancelAttempts      = 3
)

type intradayPerSymbol struct {
	baselineLatched bool
	cancelAttempts  int
}

// IntradaySellStrategy works the continuous-session windows looked up
// from the fb/zb/hf/lb table by each symbol's prior-day condition.
type IntradaySellStrategy struct {
	ctx     *appctx.Context
	pacing  config.PacingParams
	rng     *randgen.Source
	scratch map[string]*intradayPerSymbol

	posCache   map[string]orderbook.Position
	posCacheAt time.Time
}

// NewIntradaySellStrategy builds the strategy over ctx's capability set.
func NewIntradaySellStrategy(ctx *appctx.Context, seed int64) *IntradaySellStrategy {
	return &IntradaySellStrategy{
		ctx:     ctx,
		pacing:  ctx.Config.IntradayPacing(),
		rng:     randgen.New(seed),
		scratch: make(map[string]*intradayPerSymbol),
	}
}

func (s *IntradaySellStrategy) state(sym string) *intradayPerSymbol {
	st, ok := s.scratch[sym]
	if !ok {
		st = &intradayPerSymbol{}
		s.scratch[sym] = st
	}
	return st
}

// TickInterval is the cadence the orchestrator drives Tick at; the
// window boundaries tolerate anything from 1s to 3s.
func (s *IntradaySellStrategy) TickInterval() time.Duration { return 3 * time.Second }

// Tick refreshes positions, latches the auction baseline once, and then
// either offers sells in the active session or sweeps stale cancels.
func (s *IntradaySellStrategy) Tick(now time.Time) {
	hhmmss := session.HHMMSS(now)
	s.refreshPositions(now)

	for _, sym := range s.ctx.Watchlist.Symbols() {
		stock, ok := s.ctx.Watchlist.Get(sym)
		if !ok {
			continue
		}

		if session.InRange(hhmmss, intradayBaselineStart, intradayBaselineEnd) {
			s.latchBaseline(sym, stock)
		}

		active := session.InRange(hhmmss, intradayActiveStartAM, intradayActiveEndAM) ||
			session.InRange(hhmmss, intradayActiveStartPM, intradayActiveEndPM)
		if active {
			s.maybeSell(sym, stock, hhmmss)
		}

		if session.InRange(hhmmss, intradayCancelStart, intradayCancelEnd) {
			s.cancelSweep(sym, stock)
		}
	}
}

// refreshPositions re-queries the gateway for this account's positions
// at most once a second; maybeSell sizes off the cached result instead
// of the static CSV-loaded AvailVol so it reconciles against what is
// actually still available rather than drifting from pending sells.
func (s *IntradaySellStrategy) refreshPositions(now time.Time) {
	if !s.posCacheAt.IsZero() && now.Sub(s.posCacheAt) < time.Second {
		return
	}
	positions, err := s.ctx.Gateway.QueryPositions(s.ctx.Background())
	if err != nil {
		log.Printf("[IntradaySell] query positions: %v", err)
		return
	}
	cache := make(map[string]orderbook.Position, len(positions))
	for _, p := range positions {
		cache[p.Symbol] = p
	}
	s.posCache = cache
	s.posCacheAt = now
}

// position returns the cached live position for stock, falling back to
// the static CSV-loaded figures before the first successful refresh.
func (s *IntradaySellStrategy) position(stock *watchlist.Stock) orderbook.Position {
	if pos, ok := s.posCache[stock.Params.Symbol]; ok {
		return pos
	}
	return orderbook.Position{Symbol: stock.Params.Symbol, Total: stock.Params.TotalVol, Available: stock.Params.AvailVol}
}

func (s *IntradaySellStrategy) latchBaseline(sym string, stock *watchlist.Stock) {
	st := s.state(sym)
	if st.baselineLatched {
		return
	}
	open, turnover := s.ctx.Market.Auction(sym, 92700)
	if open == 0 {
		return
	}
	if stock.Runtime.OpenPrice == 0 {
		stock.Runtime.OpenPrice = open
		stock.Runtime.JJAmt = turnover
	}
	stock.Runtime.LatchAvailAfterAuction(s.position(stock).Available)
	st.baselineLatched = true
}

func (s *IntradaySellStrategy) maybeSell(sym string, stock *watchlist.Stock, now int) {
	if stock.Runtime.OpenPrice == 0 || !stock.Runtime.BaselineLatched() {
		return
	}
	condition := stock.Params.Condition()
	if condition == "" {
		return
	}
	openRatio := stock.Runtime.OpenPrice / stock.Params.PreClose
	windows := WindowsFor(condition, stock.Runtime.JJAmt, openRatio)
	if len(windows) == 0 {
		return
	}

	var matched *Window
	for i := range windows {
		if session.InRange(now, windows[i].Start, windows[i].End) {
			matched = &windows[i]
			break
		}
	}
	if matched == nil {
		return
	}

	if s.rng.Uniform() >= intradaySellTriggerProbability {
		return
	}

	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	zt, _ := s.ctx.Market.Limits(sym)
	if snap.BidPrice[0] == zt {
		return
	}

	available := s.position(stock).Available

	if stock.Runtime.AvailAfterAuction > 0 {
		ratio := float64(available) / float64(stock.Runtime.AvailAfterAuction)
		if ratio <= matched.Keep {
			// already sold down to this window's required retention
			return
		}
	}

	surplus := available - s.pacing.HoldVol - stock.Runtime.SoldVol
	if surplus <= 0 {
		return
	}

	price := symbol.CeilTick((snap.BidPrice[0]+snap.AskPrice[0])/2 - 1e-6)
	amt := s.rng.RandomVolumeAmount(s.pacing.SingleAmt, s.pacing.RandAmt1, s.pacing.RandAmt2)
	qty := floorLot(int64(amt / price))
	if qty <= 0 {
		return
	}
	if qty > surplus {
		qty = floorLot(surplus)
	}
	if qty <= 0 {
		return
	}

	_, dt := s.ctx.Market.Limits(sym)
	remark := intradayRemarkPrefix + sym
	req := gateway.OrderRequest{
		AccountID: s.ctx.Config.Strategy.AccountID,
		Symbol:    sym,
		Side:      orderbook.SideSell,
		Price:     price,
		Volume:    qty,
		Remark:    remark,
	}
	localID, err := s.ctx.Gateway.PlaceOrder(s.ctx.Background(), req, dt)
	if err != nil {
		log.Printf("[IntradaySell] place order for %s failed: %v", sym, err)
		return
	}
	_ = s.ctx.Book.Add(&orderbook.Order{
		LocalID: localID, Symbol: sym, Side: orderbook.SideSell, Price: price,
		Volume: qty, Remark: remark, Status: orderbook.StatusSubmitted, IsLocal: true,
	})
	stock.Runtime.TotalSell += qty
}

func (s *IntradaySellStrategy) cancelSweep(sym string, stock *watchlist.Stock) {
	st := s.state(sym)
	if st.cancelAttempts >= intradayMaxCancelAttempts {
		return
	}
	active := s.ctx.Book.ActiveOrdersFor(sym)
	found := false
	for _, o := range active {
		if !hasPrefix(o.Remark, intradayRemarkPrefix) {
			continue
		}
		found = true
		if _, err := s.ctx.Gateway.CancelOrder(s.ctx.Background(), o.LocalID); err != nil {
			log.Printf("[IntradaySell] cancel %s failed: %v", o.LocalID, err)
		}
	}
	if found {
		st.cancelAttempts++
	}
}

// Handle implements dispatch.Handler, reconciling sold_vol from fills.
func (s *IntradaySellStrategy) Handle(ev gateway.OrderEvent, order *orderbook.Order) {
	if order == nil || ev.FillQty <= 0 {
		return
	}
	stock, ok := s.ctx.Watchlist.Get(order.Symbol)
	if !ok {
		return
	}
	stock.Runtime.SoldVol += ev.FillQty
}
